// Package config loads the service configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (REAGENT_* plus provider API keys)
//  2. Config file (reagent.yaml in the working directory or ~/.reagent/)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

var (
	// ErrMissingAuthToken indicates no WebSocket auth token is configured.
	ErrMissingAuthToken = errors.New("missing auth token")

	// ErrMissingAPIKey indicates the configured provider has no API key.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidMaxIterations indicates the iteration budget is out of range.
	ErrInvalidMaxIterations = errors.New("invalid max iterations")

	// ErrInvalidRunTimeout indicates the run timeout is out of range.
	ErrInvalidRunTimeout = errors.New("invalid run timeout")
)

// Config stores the full service configuration.
type Config struct {
	// HTTP server
	Addr      string `mapstructure:"addr"`
	AuthToken string `mapstructure:"auth_token"` // SENSITIVE: never logged

	// Model provider
	Provider        string `mapstructure:"provider"`
	Model           string `mapstructure:"model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`    // SENSITIVE
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"` // SENSITIVE

	// Reasoning loop
	MaxIterations int           `mapstructure:"max_iterations"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`

	// Storage
	SQLitePath string `mapstructure:"sqlite_path"`

	// Retrieval (optional; disabled when DatabaseURL is empty)
	RAG RAGConfig `mapstructure:"rag"`
}

// RAGConfig configures the pgvector-backed knowledge search tool.
type RAGConfig struct {
	DatabaseURL    string `mapstructure:"database_url"` // SENSITIVE
	EmbeddingModel string `mapstructure:"embedding_model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TopK           int    `mapstructure:"top_k"`
}

// Enabled reports whether knowledge search should be wired up.
func (r RAGConfig) Enabled() bool {
	return r.DatabaseURL != ""
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

// Load reads configuration from file, environment, and defaults, then validates it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("reagent")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".reagent"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")

	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model", "gpt-4o")

	v.SetDefault("max_iterations", 5)
	v.SetDefault("run_timeout", 2*time.Minute)

	v.SetDefault("sqlite_path", "reagent.db")

	v.SetDefault("rag.embedding_model", "text-embedding-3-small")
	v.SetDefault("rag.dimensions", 1536)
	v.SetDefault("rag.top_k", 5)
}

func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "REAGENT_ADDR")
	mustBind("auth_token", "REAGENT_AUTH_TOKEN")
	mustBind("provider", "REAGENT_PROVIDER")
	mustBind("model", "REAGENT_MODEL")
	mustBind("max_iterations", "REAGENT_MAX_ITERATIONS")
	mustBind("run_timeout", "REAGENT_RUN_TIMEOUT")
	mustBind("sqlite_path", "REAGENT_SQLITE_PATH")
	mustBind("rag.database_url", "DATABASE_URL")
	mustBind("rag.embedding_model", "REAGENT_EMBEDDING_MODEL")

	// Provider keys follow the SDK conventions.
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("anthropic_api_key", "ANTHROPIC_API_KEY")
}

// Validate checks the configuration and fails fast on bad values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return fmt.Errorf("%w: %q (supported: openai, anthropic, mock)", ErrInvalidProvider, c.Provider)
	}

	if c.Provider != ProviderMock && c.APIKey() == "" {
		return fmt.Errorf("%w for provider %q", ErrMissingAPIKey, c.Provider)
	}

	if c.AuthToken == "" {
		return fmt.Errorf("%w: set REAGENT_AUTH_TOKEN", ErrMissingAuthToken)
	}

	if c.MaxIterations < 1 || c.MaxIterations > 50 {
		return fmt.Errorf("%w: %d (must be between 1 and 50)", ErrInvalidMaxIterations, c.MaxIterations)
	}

	if c.RunTimeout < time.Second {
		return fmt.Errorf("%w: %s (must be at least 1s)", ErrInvalidRunTimeout, c.RunTimeout)
	}

	return nil
}
