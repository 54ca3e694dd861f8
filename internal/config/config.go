// Package config reads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"heritage-guide/internal/integrations/openai"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type providerDefaults struct {
	baseURL     string
	chatModel   string
	visionModel string
}

var defaults = map[string]providerDefaults{
	ProviderGroq: {
		baseURL:     openai.GroqBaseURL,
		chatModel:   "llama-3.3-70b-versatile",
		visionModel: "meta-llama/llama-4-scout-17b-16e-instruct",
	},
	ProviderOpenAI: {
		baseURL:     openai.DefaultBaseURL,
		chatModel:   "gpt-4o-mini",
		visionModel: "gpt-4o-mini",
	},
	ProviderGemini: {
		chatModel:   "gemini-2.5-flash",
		visionModel: "gemini-2.5-flash",
	},
}

type Config struct {
	Provider     string `env:"UPSTREAM_PROVIDER" envDefault:"groq"`
	APIKey       string `env:"UPSTREAM_API_KEY"`
	GroqAPIKey   string `env:"GROQ_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	ParamPrefix  string `env:"PARAM_PREFIX"`

	BaseURL         string        `env:"UPSTREAM_BASE_URL"`
	ChatModel       string        `env:"CHAT_MODEL"`
	VisionModel     string        `env:"VISION_MODEL"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`

	ChatMinInterval   time.Duration `env:"CHAT_MIN_INTERVAL" envDefault:"2s"`
	ScanMinInterval   time.Duration `env:"SCAN_MIN_INTERVAL" envDefault:"2s"`
	ChatMaxRetries    int           `env:"CHAT_MAX_RETRIES" envDefault:"2"`
	ChatRetryBackoff  time.Duration `env:"CHAT_RETRY_BACKOFF" envDefault:"1s"`
	ChatHistoryWindow int           `env:"CHAT_HISTORY_WINDOW" envDefault:"6"`

	ScanEventsTable string `env:"SCAN_EVENTS_TABLE"`

	Port               string   `env:"PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	MaxBodyBytes       int64    `env:"MAX_BODY_BYTES" envDefault:"10485760"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"`

	// Set by the Lambda runtime.
	LambdaRuntimeAPI string `env:"AWS_LAMBDA_RUNTIME_API"`
}

// LoadEnvFile loads a .env file into the process environment. A blank path
// is a no-op.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load env file %q: %w", path, err)
	}
	return nil
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, ok := defaults[c.Provider]; !ok {
		return fmt.Errorf("config: unknown UPSTREAM_PROVIDER %q", c.Provider)
	}
	if c.ChatHistoryWindow <= 0 {
		return errors.New("config: CHAT_HISTORY_WINDOW must be positive")
	}
	if c.ChatMaxRetries < 0 {
		return errors.New("config: CHAT_MAX_RETRIES must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("config: MAX_BODY_BYTES must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// ProviderAPIKey returns UPSTREAM_API_KEY, or the provider-specific key when
// that is blank. An empty result means no credential is configured in the
// environment.
func (c Config) ProviderAPIKey() string {
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return k
	}
	switch c.Provider {
	case ProviderGroq:
		return strings.TrimSpace(c.GroqAPIKey)
	case ProviderOpenAI:
		return strings.TrimSpace(c.OpenAIAPIKey)
	case ProviderGemini:
		return strings.TrimSpace(c.GeminiAPIKey)
	}
	return ""
}

// UpstreamBaseURL is the OpenAI-compatible endpoint for the provider.
func (c Config) UpstreamBaseURL() string {
	if u := strings.TrimSpace(c.BaseURL); u != "" {
		return u
	}
	return defaults[c.Provider].baseURL
}

func (c Config) ChatModelName() string {
	if m := strings.TrimSpace(c.ChatModel); m != "" {
		return m
	}
	return defaults[c.Provider].chatModel
}

func (c Config) VisionModelName() string {
	if m := strings.TrimSpace(c.VisionModel); m != "" {
		return m
	}
	return defaults[c.Provider].visionModel
}

func (c Config) UnderLambda() bool {
	return c.LambdaRuntimeAPI != ""
}

// UsesAWS reports whether any AWS-backed component is configured.
func (c Config) UsesAWS() bool {
	return c.ScanEventsTable != "" || (c.ProviderAPIKey() == "" && c.ParamPrefix != "")
}

func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// JSONLogs picks JSON output under Lambda unless LOG_FORMAT says otherwise.
func (c Config) JSONLogs() bool {
	if c.LogFormat == "" {
		return c.UnderLambda()
	}
	return c.LogFormat == "json"
}
