package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"heritage-guide/internal/catalog"
	"heritage-guide/internal/domain"
)

const (
	defaultExactConfidence = 0.5
	defaultNameConfidence  = 0.4
	recordTimeout          = 3 * time.Second
)

// ScanRecorder stores classification outcomes. Failures are logged only.
type ScanRecorder interface {
	RecordScan(ctx context.Context, ev domain.ScanEvent) error
}

type ScanConfig struct {
	Model    string
	Provider string
}

type ScanService struct {
	llm      LLMClient
	throttle Waiter
	catalog  *catalog.Catalog
	recorder ScanRecorder
	cfg      ScanConfig
	logger   *slog.Logger
	prompt   string
	pending  sync.WaitGroup
}

type ScanInput struct {
	Image    string
	MIMEType string
	Locale   domain.Locale
}

type ScanOutput struct {
	ID         string
	Name       string
	Confidence float64
	Mode       string
}

// NewScanService builds the classifier. llm and recorder may be nil: without
// an llm every request reports no-key, without a recorder nothing is logged.
func NewScanService(llm LLMClient, throttle Waiter, cat *catalog.Catalog, recorder ScanRecorder, cfg ScanConfig, logger *slog.Logger) (*ScanService, error) {
	if throttle == nil {
		return nil, errors.New("usecase: throttle must not be nil")
	}
	if cat == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	if llm != nil && strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: vision model must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanService{
		llm:      llm,
		throttle: throttle,
		catalog:  cat,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		prompt:   buildScanPrompt(cat.All()),
	}, nil
}

// Prompt returns the classification instruction sent with every image.
func (s *ScanService) Prompt() string {
	return s.prompt
}

// Classify identifies the catalog object in an image. It never fails: every
// upstream problem is reported through the result mode. The outcome is
// recorded in the background.
func (s *ScanService) Classify(ctx context.Context, in ScanInput) ScanOutput {
	out := s.classify(ctx, in)
	s.record(ctx, out)
	return out
}

// Close waits for outstanding event writes.
func (s *ScanService) Close() {
	s.pending.Wait()
}

func (s *ScanService) classify(ctx context.Context, in ScanInput) ScanOutput {
	if s.llm == nil || strings.TrimSpace(in.Image) == "" {
		return ScanOutput{Mode: domain.ScanModeNoKey}
	}

	data, hint, err := decodeImage(in.Image)
	if err != nil {
		s.logger.WarnContext(ctx, "scan image rejected", "code", ErrorInvalidInput, "error", err)
		return ScanOutput{Mode: domain.ScanModeError}
	}
	if len(data) == 0 {
		return ScanOutput{Mode: domain.ScanModeNoKey}
	}

	text, uerr := s.complete(ctx, domain.CompletionRequest{
		Model: s.cfg.Model,
		Messages: []domain.ChatMessage{{
			Role:    domain.RoleUser,
			Content: s.prompt,
			Images:  []domain.Image{{MIMEType: pickMIME(in.MIMEType, hint, data), Data: data}},
		}},
		Temperature: scanTemperature,
		MaxTokens:   scanMaxTokens,
		JSON:        true,
	})
	if uerr != nil {
		s.logger.WarnContext(ctx, "scan upstream failed",
			"code", uerr.Code,
			"reason", uerr.Reason,
			"error", uerr.Err,
		)
		return ScanOutput{Mode: domain.ScanModeError}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ScanOutput{Mode: domain.ScanModeEmpty}
	}

	parsed, err := parseClassification(text)
	if err != nil {
		s.logger.WarnContext(ctx, "scan reply unparseable",
			"code", ErrorMalformedResponse,
			"error", err,
		)
		return ScanOutput{Mode: domain.ScanModeError}
	}
	return s.resolve(parsed, domain.ParseLocale(string(in.Locale)))
}

func (s *ScanService) complete(ctx context.Context, req domain.CompletionRequest) (string, *Error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return "", newError(ErrorUpstream, "scan_throttle_wait", err)
	}
	text, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", classifyUpstream("scan", err)
	}
	return text, nil
}

// resolve maps the model's answer onto the catalog. Unknown ids fall back to
// a name match; anything else is a legitimate "no identification".
func (s *ScanService) resolve(c classification, loc domain.Locale) ScanOutput {
	if obj, ok := s.catalog.ByID(strings.TrimSpace(c.ID)); ok {
		return ScanOutput{
			ID:         obj.ID,
			Name:       obj.Name.Get(loc),
			Confidence: confidenceOr(c.Confidence, defaultExactConfidence),
			Mode:       domain.ScanModeUpstream,
		}
	}
	if obj, ok := s.catalog.MatchName(c.Name); ok {
		return ScanOutput{
			ID:         obj.ID,
			Name:       obj.Name.Get(loc),
			Confidence: confidenceOr(c.Confidence, defaultNameConfidence),
			Mode:       domain.ScanModeUpstream,
		}
	}
	return ScanOutput{Mode: domain.ScanModeUpstream}
}

func (s *ScanService) record(ctx context.Context, out ScanOutput) {
	if s.recorder == nil {
		return
	}
	ev := domain.ScanEvent{
		ObjectID:   out.ID,
		Confidence: out.Confidence,
		Mode:       out.Mode,
		Provider:   s.cfg.Provider,
	}
	// The write outlives the request, so it gets its own deadline.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.recorder.RecordScan(rctx, ev); err != nil {
			s.logger.WarnContext(rctx, "scan event not recorded", "error", err)
		}
	}()
}
