package usecase

import (
	"regexp"
	"strings"

	"heritage-guide/internal/domain"
)

// ObjectFacts are the locale-appropriate texts the client sends along with a
// chat question.
type ObjectFacts struct {
	Description     string `json:"description"`
	History         string `json:"history"`
	Philosophy      string `json:"philosophy"`
	CulturalMeaning string `json:"culturalMeaning"`
}

type fallbackRule struct {
	pattern  *regexp.Regexp
	template string
}

// Rules are tested in order and the first match wins.
var fallbackRules = map[domain.Locale][]fallbackRule{
	domain.LocaleEN: {
		{regexp.MustCompile(`philosophy|meaning|symbol`), "The philosophy of {name} is fascinating! {philosophy} Would you like to know more?"},
		{regexp.MustCompile(`history|origin|when|old`), "Regarding the history of {name}: {history} It remains important cultural heritage."},
		{regexp.MustCompile(`make|made|create|how`), "{name} involves a complex creation process passed down through generations. {culturalMeaning}"},
		{regexp.MustCompile(`buy|shop|souvenir|where`), "For authentic {name}, visit galleries around Malioboro Street, Kotagede, or near the Yogyakarta Palace."},
	},
	domain.LocaleID: {
		{regexp.MustCompile(`filosofi|makna|arti`), "Filosofi dari {name} sangat menarik! {philosophy} Apakah ada aspek tertentu yang ingin Anda ketahui lebih lanjut?"},
		{regexp.MustCompile(`sejarah|asal|kapan`), "Mengenai sejarah {name}: {history} Ini merupakan bagian penting dari warisan budaya Yogyakarta."},
		{regexp.MustCompile(`buat|cara|proses`), "{name} memiliki proses pembuatan yang kompleks dan diwariskan turun-temurun. {culturalMeaning}"},
		{regexp.MustCompile(`beli|toko|souvenir`), "Untuk {name}, Anda bisa mengunjungi galeri dan toko kerajinan di Malioboro, Kotagede, atau area Keraton Yogyakarta."},
	},
}

var fallbackDefault = map[domain.Locale]string{
	domain.LocaleEN: "Great question about {name}! {description} Anything else you'd like to know?",
	domain.LocaleID: "Pertanyaan bagus tentang {name}! {description} Ada yang lain yang ingin ditanyakan?",
}

var emptyReply = map[domain.Locale]string{
	domain.LocaleEN: "Sorry, please try again.",
	domain.LocaleID: "Maaf, coba lagi.",
}

// FallbackReply builds the canned answer used when the upstream model is not
// configured or fails. It is pure: the same inputs always give the same reply.
func FallbackReply(question, objectName string, facts ObjectFacts, loc domain.Locale) string {
	loc = domain.ParseLocale(string(loc))
	q := strings.ToLower(question)

	template := fallbackDefault[loc]
	for _, rule := range fallbackRules[loc] {
		if rule.pattern.MatchString(q) {
			template = rule.template
			break
		}
	}

	return strings.NewReplacer(
		"{name}", objectName,
		"{description}", facts.Description,
		"{history}", facts.History,
		"{philosophy}", facts.Philosophy,
		"{culturalMeaning}", facts.CulturalMeaning,
	).Replace(template)
}
