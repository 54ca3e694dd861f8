// Package gemini adapts Google Gemini to the completion contract used by the
// chat and scan use cases.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"heritage-guide/internal/domain"
)

const roleModel = "model"

// StatusError is a non-2xx answer from the Gemini API.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Client holds one long-lived genai client. Models are cheap views over it and
// are created per call so concurrent requests never share config.
type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: cl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Complete replays all but the last message as chat history and sends the
// last one.
func (c *Client) Complete(ctx context.Context, in domain.CompletionRequest) (string, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	history, last := toContents(in.Messages)
	if len(last) == 0 {
		return "", errors.New("gemini: no message to send")
	}

	m := c.client.GenerativeModel(model)
	m.GenerationConfig = generationConfig(in)
	if system := strings.TrimSpace(in.System); system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := m.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return "", wrapError(err)
	}
	return responseText(resp), nil
}

func generationConfig(in domain.CompletionRequest) genai.GenerationConfig {
	cfg := genai.GenerationConfig{
		Temperature: ptrFloat32(float32(in.Temperature)),
	}
	if in.MaxTokens > 0 {
		cfg.MaxOutputTokens = ptrInt32(int32(in.MaxTokens))
	}
	if in.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// toContents splits messages into replayed history and the parts of the final
// message. Empty turns are dropped since the API rejects empty parts.
func toContents(messages []domain.ChatMessage) ([]*genai.Content, []genai.Part) {
	var history []*genai.Content
	for i, msg := range messages {
		parts := toParts(msg)
		if i == len(messages)-1 {
			return history, parts
		}
		if len(parts) == 0 {
			continue
		}
		history = append(history, &genai.Content{Role: toRole(msg.Role), Parts: parts})
	}
	return history, nil
}

func toParts(msg domain.ChatMessage) []genai.Part {
	var parts []genai.Part
	if strings.TrimSpace(msg.Content) != "" {
		parts = append(parts, genai.Text(msg.Content))
	}
	for _, img := range msg.Images {
		parts = append(parts, &genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	return parts
}

func toRole(role string) string {
	if role == domain.RoleAssistant {
		return roleModel
	}
	return domain.RoleUser
}

// responseText joins the text parts of the first candidate that has any.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
