package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"heritage-guide/internal/domain"
)

const (
	defaultHistoryWindow = 6
	defaultMaxRetries    = 2
	defaultRetryBackoff  = time.Second
)

// LLMClient is a single upstream completion call. Implementations return an
// error exposing HTTPStatusCode() for non-2xx responses.
type LLMClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Waiter spaces out upstream calls.
type Waiter interface {
	Wait(ctx context.Context) error
}

type ChatConfig struct {
	Model         string
	HistoryWindow int
	// MaxRetries is the number of extra attempts after a rate-limited call.
	MaxRetries   int
	RetryBackoff time.Duration
}

type ChatService struct {
	llm      LLMClient
	throttle Waiter
	cfg      ChatConfig
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

type ChatInput struct {
	Message    string
	ObjectName string
	Object     ObjectFacts
	Locale     domain.Locale
	History    []domain.ChatTurn
}

type ChatOutput struct {
	Reply string
	Mode  string
}

// NewChatService wires the chat use case. A nil llm means no upstream
// credential is configured and every reply comes from FallbackReply.
func NewChatService(llm LLMClient, throttle Waiter, cfg ChatConfig, logger *slog.Logger) (*ChatService, error) {
	if throttle == nil {
		return nil, errors.New("usecase: throttle must not be nil")
	}
	if llm != nil && strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: chat model must not be empty")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		llm:      llm,
		throttle: throttle,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}, nil
}

// Reply answers a question about a catalog object. It never fails: upstream
// problems degrade to the fallback reply in mock mode.
func (s *ChatService) Reply(ctx context.Context, in ChatInput) ChatOutput {
	loc := domain.ParseLocale(string(in.Locale))
	fallback := func() ChatOutput {
		return ChatOutput{
			Reply: FallbackReply(in.Message, in.ObjectName, in.Object, loc),
			Mode:  domain.ChatModeMock,
		}
	}

	if s.llm == nil {
		return fallback()
	}

	text, err := s.complete(ctx, domain.CompletionRequest{
		Model:       s.cfg.Model,
		System:      buildChatSystemPrompt(in.ObjectName, in.Object, loc),
		Messages:    buildChatMessages(in.History, s.cfg.HistoryWindow, in.Message),
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "chat upstream failed, using fallback",
			"code", err.Code,
			"reason", err.Reason,
			"error", err.Err,
		)
		return fallback()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = emptyReply[loc]
	}
	return ChatOutput{Reply: text, Mode: domain.ChatModeUpstream}
}

// complete calls upstream, retrying rate-limited attempts. Every attempt,
// retries included, takes its turn on the shared throttle.
func (s *ChatService) complete(ctx context.Context, req domain.CompletionRequest) (string, *Error) {
	var lastErr *Error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * s.cfg.RetryBackoff
			s.logger.InfoContext(ctx, "chat upstream rate limited, retrying",
				"attempt", attempt,
				"backoff", backoff,
			)
			if err := s.sleep(ctx, backoff); err != nil {
				return "", newError(ErrorUpstream, "chat_retry_cancelled", err)
			}
		}
		if err := s.throttle.Wait(ctx); err != nil {
			return "", newError(ErrorUpstream, "chat_throttle_wait", err)
		}

		text, err := s.llm.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = classifyUpstream("chat", err)
		if lastErr.Code != ErrorRateLimited {
			return "", lastErr
		}
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
