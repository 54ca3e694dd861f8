package usecase

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

const defaultImageMIME = "image/jpeg"

// decodeImage decodes a base64 payload, accepting a data URL prefix. The MIME
// type from the data URL, if any, is returned as a hint.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if strings.HasPrefix(s, "data:") {
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hint = meta[:semi]
			} else {
				hint = meta
			}
			s = s[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, hint, nil
	}
	if alt, altErr := base64.URLEncoding.DecodeString(s); altErr == nil {
		return alt, hint, nil
	}
	if alt, altErr := base64.RawStdEncoding.DecodeString(s); altErr == nil {
		return alt, hint, nil
	}
	return nil, "", fmt.Errorf("usecase: decode image: %w", err)
}

// pickMIME prefers the declared type, then the data URL hint, then sniffing.
func pickMIME(explicit, hint string, data []byte) string {
	if exp := strings.TrimSpace(explicit); exp != "" {
		return exp
	}
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	if len(data) > 0 {
		if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
			return sniffed
		}
	}
	return defaultImageMIME
}
