package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1024, cfg.LLM.EmbeddingDimension)
	assert.Equal(t, 30, cfg.LLM.BedrockTimeoutSeconds)
	assert.Equal(t, 3, cfg.LLM.BedrockMaxRetries)
	assert.Equal(t, 8000, cfg.Pipeline.MaxTextLength)
	assert.Equal(t, 100000, cfg.Pipeline.MaxTokensPerExecution)
	assert.Equal(t, 100, cfg.Query.MaxRequestsPerHour)
	assert.Equal(t, 500000, cfg.Query.MaxTokensPerSession)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown provider", func(c *AppConfig) { c.LLM.Provider = "openai" }},
		{"zero dimension", func(c *AppConfig) { c.LLM.EmbeddingDimension = 0 }},
		{"negative retries", func(c *AppConfig) { c.LLM.BedrockMaxRetries = -1 }},
		{"zero timeout", func(c *AppConfig) { c.LLM.BedrockTimeoutSeconds = 0 }},
		{"zero batch", func(c *AppConfig) { c.Pipeline.BatchSize = 0 }},
		{"too many workers", func(c *AppConfig) { c.Pipeline.WorkerCount = 11 }},
		{"single worker", func(c *AppConfig) { c.Pipeline.WorkerCount = 1 }},
		{"zero token budget", func(c *AppConfig) { c.Pipeline.MaxTokensPerExecution = 0 }},
		{"max below default search size", func(c *AppConfig) { c.Query.MaxSearchSize = 5 }},
		{"zero query length", func(c *AppConfig) { c.Query.MaxQueryLength = 0 }},
		{"zero hourly window", func(c *AppConfig) { c.Query.MaxRequestsPerHour = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://example:27017")
	t.Setenv("MONGO_DB_NAME", "lograg_test")
	t.Setenv("REDIS_ADDR", "localhost:6380")

	cfg := defaultConfig()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "mongodb://example:27017", cfg.Mongo.URI)
	assert.Equal(t, "lograg_test", cfg.Mongo.DBName)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
}
