package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"heritage-guide/internal/catalog"
	"heritage-guide/internal/config"
	"heritage-guide/internal/domain"
	"heritage-guide/internal/integrations/openai"
)

func TestNewLLMClient_NoKeyIsNil(t *testing.T) {
	llm, cleanup, err := newLLMClient(context.Background(), config.Config{Provider: config.ProviderGroq}, "")
	require.NoError(t, err)
	require.Nil(t, llm)
	cleanup()
}

func TestNewLLMClient_OpenAICompatible(t *testing.T) {
	for _, provider := range []string{config.ProviderGroq, config.ProviderOpenAI} {
		llm, cleanup, err := newLLMClient(context.Background(), config.Config{Provider: provider, UpstreamTimeout: time.Second}, "key")
		require.NoError(t, err)
		require.IsType(t, &openai.Client{}, llm)
		cleanup()
	}
}

func TestBuildHandler_WithoutCredentialOrAWS(t *testing.T) {
	cfg := config.Config{
		Provider:          config.ProviderGroq,
		ChatHistoryWindow: 6,
		MaxBodyBytes:      1 << 20,
		LogLevel:          "info",
	}
	h, cleanup, err := buildHandler(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, h)
}

func TestPrintCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printCatalog(&buf, catalog.Default(), "batik"))
	out := buf.String()
	require.Contains(t, out, "batik-parang")
	require.Contains(t, out, "batik-kawung")
	require.NotContains(t, out, "gamelan")

	err := printCatalog(&buf, catalog.Default(), "pottery")
	require.ErrorContains(t, err, "unknown category")
}

func TestCatalogCommand(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"catalog", "--category", "instrument"})
	require.NoError(t, root.Execute())
	require.Contains(t, buf.String(), "gamelan")
}

type fakeScanLog struct {
	stats     domain.ScanStats
	events    []domain.ScanEvent
	statsErr  error
	recentErr error
	limit     int
}

func (f *fakeScanLog) DailyStats(context.Context, time.Time) (domain.ScanStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeScanLog) RecentScans(_ context.Context, _ time.Time, limit int) ([]domain.ScanEvent, error) {
	f.limit = limit
	return f.events, f.recentErr
}

func TestPrintScans(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	log := &fakeScanLog{
		stats: domain.ScanStats{
			Day:      "2026-03-14",
			Total:    3,
			ByMode:   map[string]int{"upstream": 2, "no-key": 1},
			ByObject: map[string]int{"gamelan": 2},
		},
		events: []domain.ScanEvent{
			{ObjectID: "gamelan", Confidence: 0.9, Mode: "upstream", Provider: "groq", CreatedAt: day.Add(9 * time.Hour)},
			{Mode: "no-key", CreatedAt: day.Add(8 * time.Hour)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printScans(context.Background(), &buf, log, day, 5))
	require.Equal(t, 5, log.limit)

	out := buf.String()
	require.Contains(t, out, "Scans on 2026-03-14: 3")
	require.Contains(t, out, "no-key")
	require.Contains(t, out, "0.90")
	require.Contains(t, out, "09:00:00")
}

func TestPrintScans_Errors(t *testing.T) {
	var buf bytes.Buffer
	err := printScans(context.Background(), &buf, &fakeScanLog{statsErr: errors.New("boom")}, time.Now(), 1)
	require.ErrorContains(t, err, "boom")

	err = printScans(context.Background(), &buf, &fakeScanLog{recentErr: errors.New("bust")}, time.Now(), 1)
	require.ErrorContains(t, err, "bust")
}
