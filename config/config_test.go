package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Addr:          ":8080",
		AuthToken:     "secret",
		Provider:      ProviderOpenAI,
		Model:         "gpt-4o",
		OpenAIAPIKey:  "sk-test",
		MaxIterations: 5,
		RunTimeout:    2 * time.Minute,
		SQLitePath:    "reagent.db",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Provider = "cohere"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestValidateRequiresAPIKeyForProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Provider = ProviderAnthropic
	cfg.AnthropicAPIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestValidateMockProviderNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	cfg.Provider = ProviderMock
	cfg.OpenAIAPIKey = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresAuthToken(t *testing.T) {
	cfg := validConfig()
	cfg.AuthToken = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAuthToken)
}

func TestValidateIterationBounds(t *testing.T) {
	cfg := validConfig()

	cfg.MaxIterations = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidMaxIterations)

	cfg.MaxIterations = 51
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidMaxIterations)

	cfg.MaxIterations = 50
	assert.NoError(t, cfg.Validate())
}

func TestValidateRunTimeoutBound(t *testing.T) {
	cfg := validConfig()
	cfg.RunTimeout = 500 * time.Millisecond

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRunTimeout)
}

func TestAPIKeySelectsProvider(t *testing.T) {
	cfg := validConfig()
	cfg.AnthropicAPIKey = "ak-test"

	assert.Equal(t, "sk-test", cfg.APIKey())

	cfg.Provider = ProviderAnthropic
	assert.Equal(t, "ak-test", cfg.APIKey())

	cfg.Provider = ProviderMock
	assert.Empty(t, cfg.APIKey())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("REAGENT_AUTH_TOKEN", "env-secret")
	t.Setenv("REAGENT_PROVIDER", ProviderMock)
	t.Setenv("REAGENT_MAX_ITERATIONS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.AuthToken)
	assert.Equal(t, ProviderMock, cfg.Provider)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)
}

func TestRAGEnabledByDatabaseURL(t *testing.T) {
	var r RAGConfig
	assert.False(t, r.Enabled())

	r.DatabaseURL = "postgres://localhost/reagent"
	assert.True(t, r.Enabled())
}
