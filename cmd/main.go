package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"heritage-guide/handler"
	"heritage-guide/internal/catalog"
	"heritage-guide/internal/config"
	"heritage-guide/internal/integrations/gemini"
	"heritage-guide/internal/integrations/openai"
	"heritage-guide/internal/integrations/paramstore"
	"heritage-guide/internal/repository"
	"heritage-guide/internal/throttle"
	"heritage-guide/internal/usecase"
)

var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "heritage",
		Short:        "Cultural heritage guide: chat and image recognition API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.UnderLambda() {
				return runLambda(cmd.Context(), cfg, logger)
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file to load before reading the environment")

	root.AddCommand(newServeCmd(), newLambdaCmd(), newCatalogCmd(), newScansCmd())
	return root
}

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve API Gateway proxy events on AWS Lambda",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runLambda(cmd.Context(), cfg, logger)
		},
	}
}

func runLambda(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	h, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	lambda.Start(h.Handle)
	return nil
}

// loadConfig reads the environment and installs the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		return config.Config{}, nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSONLogs() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// buildHandler wires the services. Missing credentials are not fatal: the
// guide then answers from fallback replies and reports no-key for scans.
func buildHandler(ctx context.Context, cfg config.Config, logger *slog.Logger) (*handler.Handler, func(), error) {
	cleanup := func() {}

	// ---- AWS SDK config ----
	var awsCfg aws.Config
	if cfg.UsesAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			return nil, cleanup, err
		}
	}

	// ---- Upstream credential ----
	apiKey := cfg.ProviderAPIKey()
	if apiKey == "" && cfg.ParamPrefix != "" {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, cleanup, err
		}
		apiKey, err = paramstore.FetchAPIKey(ctx, ps, cfg.ParamPrefix)
		if err != nil {
			logger.Error("failed to fetch upstream api key; continuing without upstream", "err", err)
			apiKey = ""
		}
	}

	llm, closeLLM, err := newLLMClient(ctx, cfg, apiKey)
	if err != nil {
		logger.Error("failed to create upstream client", "provider", cfg.Provider, "err", err)
		return nil, cleanup, err
	}
	cleanup = closeLLM
	if llm == nil {
		logger.Warn("no upstream credential configured; chat uses fallback replies", "provider", cfg.Provider)
	}

	// ---- Scan event log ----
	var recorder usecase.ScanRecorder
	if cfg.ScanEventsTable != "" {
		repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.ScanEventsTable)
		if err != nil {
			return nil, cleanup, err
		}
		recorder = repo
	}

	// ---- Services ----
	cat := catalog.Default()
	chat, err := usecase.NewChatService(llm, throttle.New(cfg.ChatMinInterval), usecase.ChatConfig{
		Model:         cfg.ChatModelName(),
		HistoryWindow: cfg.ChatHistoryWindow,
		MaxRetries:    cfg.ChatMaxRetries,
		RetryBackoff:  cfg.ChatRetryBackoff,
	}, logger)
	if err != nil {
		logger.Error("failed to create chat service", "err", err)
		return nil, cleanup, err
	}
	scan, err := usecase.NewScanService(llm, throttle.New(cfg.ScanMinInterval), cat, recorder, usecase.ScanConfig{
		Model:    cfg.VisionModelName(),
		Provider: cfg.Provider,
	}, logger)
	if err != nil {
		logger.Error("failed to create scan service", "err", err)
		return nil, cleanup, err
	}
	cleanup = func() {
		scan.Close()
		closeLLM()
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chat, scan, cat,
		handler.WithLogger(logger),
		handler.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		handler.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		return nil, cleanup, err
	}
	return h, cleanup, nil
}

// newLLMClient returns a nil client when apiKey is blank.
func newLLMClient(ctx context.Context, cfg config.Config, apiKey string) (usecase.LLMClient, func(), error) {
	noop := func() {}
	if apiKey == "" {
		return nil, noop, nil
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, apiKey)
		if err != nil {
			return nil, noop, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		c, err := openai.NewClient(apiKey,
			openai.WithBaseURL(cfg.UpstreamBaseURL()),
			openai.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
		)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	}
}
