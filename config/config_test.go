package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// clearEnv removes every variable Load reads so each test starts from a
// clean slate regardless of the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL", "EMBED_PROVIDER", "EMBED_MODEL", "EMBED_API_KEY",
		"GENERATE_PROVIDER", "GENERATE_MODEL", "GENERATE_API_KEY",
		"RAG_TOP_K", "MIN_RELEVANCE_SCORE",
		"CHUNK_TOKENS", "CHUNK_OVERLAP_TOKENS",
		"EMBED_BATCH_SIZE", "EMBED_BATCH_DELAY_MS",
		"MODEL_CLIENT_QUEUE_CAPACITY", "MODEL_CLIENT_MIN_INTERVAL_MS", "MODEL_CLIENT_REQUEST_TIMEOUT_MS",
		"GEN_TEMPERATURE", "GEN_MAX_OUTPUT_TOKENS",
		"LOG_LEVEL",
		"VECTOR_INDEX_BACKEND", "MILVUS_ADDRESS",
	}
	for _, k := range keys {
		original, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, original)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "postgres://localhost:5432/onboardrag?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "openai", cfg.EmbedProvider)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbedModel)
	assert.Equal(t, "gollm", cfg.GenerateProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.GenerateModel)
	assert.Equal(t, 5, cfg.RAGTopK)
	assert.InDelta(t, 0.3, cfg.MinRelevanceScore, 1e-9)
	assert.Equal(t, 512, cfg.ChunkTokens)
	assert.Equal(t, 50, cfg.ChunkOverlapTokens)
	assert.Equal(t, 5, cfg.EmbedBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.EmbedBatchDelay)
	assert.Equal(t, 50, cfg.ModelClientQueueCapacity)
	assert.Equal(t, 6500*time.Millisecond, cfg.ModelClientMinInterval)
	assert.Equal(t, 300000*time.Millisecond, cfg.ModelClientRequestTimeout)
	assert.InDelta(t, 0.2, cfg.GenTemperature, 1e-9)
	assert.Equal(t, 1024, cfg.GenMaxOutputTokens)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "scan", cfg.VectorIndexBackend)
	assert.Equal(t, "localhost:19530", cfg.MilvusAddress)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://db.internal:5432/prod")
	os.Setenv("EMBED_PROVIDER", "openai")
	os.Setenv("RAG_TOP_K", "8")
	os.Setenv("MIN_RELEVANCE_SCORE", "0.45")
	os.Setenv("CHUNK_TOKENS", "256")
	os.Setenv("EMBED_BATCH_DELAY_MS", "1000")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("VECTOR_INDEX_BACKEND", "milvus")
	os.Setenv("MILVUS_ADDRESS", "milvus.internal:19530")

	cfg := Load()
	assert.Equal(t, "postgres://db.internal:5432/prod", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.RAGTopK)
	assert.InDelta(t, 0.45, cfg.MinRelevanceScore, 1e-9)
	assert.Equal(t, 256, cfg.ChunkTokens)
	assert.Equal(t, 1000*time.Millisecond, cfg.EmbedBatchDelay)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "milvus", cfg.VectorIndexBackend)
	assert.Equal(t, "milvus.internal:19530", cfg.MilvusAddress)
}

func TestLoad_MalformedNumericFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	os.Setenv("RAG_TOP_K", "not-a-number")
	os.Setenv("MIN_RELEVANCE_SCORE", "also-not-a-number")
	os.Setenv("EMBED_BATCH_DELAY_MS", "nope")

	cfg := Load()
	assert.Equal(t, 5, cfg.RAGTopK)
	assert.InDelta(t, 0.3, cfg.MinRelevanceScore, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.EmbedBatchDelay)
}
