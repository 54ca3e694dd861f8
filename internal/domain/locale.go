package domain

import "strings"

// Locale selects the language of prompts and canned replies.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleID Locale = "id"
)

// ParseLocale returns LocaleID for "id" and LocaleEN for anything else.
func ParseLocale(s string) Locale {
	if strings.EqualFold(strings.TrimSpace(s), string(LocaleID)) {
		return LocaleID
	}
	return LocaleEN
}
