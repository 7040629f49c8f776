package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDatabaseURL = "postgres://localhost:5432/newsbrief_test"

func clearRequiredEnvVars(t *testing.T) {
	t.Helper()

	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("POSTGRES_DSN")
}

func TestLoad_MissingRequired(t *testing.T) {
	clearRequiredEnvVars(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	clearRequiredEnvVars(t)
	t.Setenv("DATABASE_URL", testDatabaseURL)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, testDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, 30, cfg.IngestionIntervalMinutes)
	assert.Equal(t, 100, cfg.MaxItemsPerSource)
	assert.Equal(t, 1000, cfg.MaxEmbeddingsPerHour)
	assert.Equal(t, 50, cfg.MaxLLMCallsPerUserDay)
	assert.True(t, cfg.AIScoringEnabled)
	assert.Equal(t, 500, cfg.BriefingTargetWords)
	assert.Equal(t, 10, cfg.BriefingNumItems)
	assert.Equal(t, "06:50", cfg.BriefingTimeUTC)
	assert.Equal(t, "07:00", cfg.EmailTimeUTC)
	assert.InDelta(t, 0.92, cfg.DedupSimilarity, 1e-9)
	assert.InDelta(t, 0.6, cfg.HighSignalThreshold, 1e-9)
	assert.Equal(t, "text-embedding-ada-002", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDimensions)
}

func TestLoad_PostgresDSNAlias(t *testing.T) {
	clearRequiredEnvVars(t)
	t.Setenv("POSTGRES_DSN", testDatabaseURL)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testDatabaseURL, cfg.DatabaseURL)
}

func TestLoad_RejectsBadClockTime(t *testing.T) {
	clearRequiredEnvVars(t)
	t.Setenv("DATABASE_URL", testDatabaseURL)
	t.Setenv("BRIEFING_TIME_UTC", "6:50am")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsSoftTimeoutAboveHard(t *testing.T) {
	clearRequiredEnvVars(t)
	t.Setenv("DATABASE_URL", testDatabaseURL)
	t.Setenv("TASK_SOFT_TIMEOUT", "11m")

	_, err := Load()
	require.Error(t, err)
}

func TestDomainViews(t *testing.T) {
	clearRequiredEnvVars(t)
	t.Setenv("DATABASE_URL", testDatabaseURL)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SMTP_HOST", "mail.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testDatabaseURL, cfg.DatabaseCfg().URL)
	assert.Equal(t, "sk-test", cfg.EmbeddingCfg().APIKey)
	assert.Equal(t, "sk-test", cfg.LLMCfg().OpenAIAPIKey)
	assert.Equal(t, "mail.example.com", cfg.EmailCfg().Host)
	assert.Equal(t, 8080, cfg.ServerCfg().HealthPort)
	assert.Equal(t, 8000, cfg.ServerCfg().APIPort)
}
