package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"heritage-guide/internal/catalog"
	"heritage-guide/internal/domain"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 250
	scanTemperature = 0.1
	scanMaxTokens   = 100

	scanDescriptionLimit = 100
)

func buildChatSystemPrompt(objectName string, facts ObjectFacts, loc domain.Locale) string {
	if loc == domain.LocaleID {
		return fmt.Sprintf(
			"Kamu ahli budaya Yogyakarta. Objek: %q. Info: %s Sejarah: %s Filosofi: %s Makna: %s. Jawab Bahasa Indonesia, ramah, ringkas (2-3 kalimat).",
			objectName, facts.Description, facts.History, facts.Philosophy, facts.CulturalMeaning,
		)
	}
	return fmt.Sprintf(
		"You are a Yogyakarta cultural expert. Object: %q. Info: %s History: %s Philosophy: %s Meaning: %s. Be friendly, concise (2-3 sentences).",
		objectName, facts.Description, facts.History, facts.Philosophy, facts.CulturalMeaning,
	)
}

// buildChatMessages keeps the most recent window of history turns and appends
// the new question.
func buildChatMessages(history []domain.ChatTurn, window int, message string) []domain.ChatMessage {
	if window >= 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, domain.ChatMessage{
			Role:    turn.UpstreamRole(),
			Content: turn.Content,
		})
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})
}

func buildScanPrompt(objects []catalog.Object) string {
	var b strings.Builder
	b.WriteString("You are a Yogyakarta cultural object classifier. Analyze this image and identify which object it matches:\n\n")
	for _, o := range objects {
		fmt.Fprintf(&b, "- id:%q = %s (%s): %s\n", o.ID, o.Name.EN, o.Category, truncateRunes(o.Description.EN, scanDescriptionLimit))
	}
	b.WriteString("\nRules:\n")
	for _, o := range objects {
		if cue := strings.TrimSpace(o.VisualCue); cue != "" {
			fmt.Fprintf(&b, "- %s = %s\n", cue, o.ID)
		}
	}
	b.WriteString("- Set confidence 0.8-1.0 if sure, 0.4-0.7 if uncertain, below 0.3 if no match\n\n")
	b.WriteString(`Respond ONLY with JSON: {"id":"object-id","name":"Name","confidence":0.9}`)
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type classification struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Confidence json.RawMessage `json:"confidence"`
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseClassification(raw string) (classification, error) {
	body := stripCodeFences(raw)
	if body == "" {
		return classification{}, errors.New("usecase: decode classification: empty body")
	}
	if !strings.HasPrefix(body, "{") {
		return classification{}, errors.New("usecase: decode classification: reply is not a JSON object")
	}
	var out classification
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&out); err != nil {
		return classification{}, fmt.Errorf("usecase: decode classification: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return classification{}, errors.New("usecase: decode classification: trailing data after object")
	}
	return out, nil
}

// confidenceOr returns the numeric confidence clamped to [0,1], or def when
// the value is absent or not a JSON number. def is clamped too.
func confidenceOr(raw json.RawMessage, def float64) float64 {
	v := def
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var f float64
		if err := json.Unmarshal(trimmed, &f); err == nil {
			v = f
		}
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
