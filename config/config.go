// Package config loads the RAG core's runtime settings from environment
// variables, falling back to the defaults the core itself assumes when a
// variable is unset.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable enumerated for the onboarding RAG core: the
// retrieval thresholds, chunking budget, embedder batching, Model Client
// queue discipline, and generation bounds.
type Config struct {
	// DatabaseURL is the Postgres DSN the Store connects with.
	DatabaseURL string

	// EmbedProvider selects the registered embedder ("openai").
	EmbedProvider string
	// EmbedModel is the provider-specific embedding model name.
	EmbedModel string
	// EmbedAPIKey authenticates against the embedding provider.
	EmbedAPIKey string

	// GenerateProvider selects the registered generator ("gollm").
	GenerateProvider string
	// GenerateModel is the provider-specific generation model name.
	GenerateModel string
	// GenerateAPIKey authenticates against the generation provider.
	GenerateAPIKey string

	// RAGTopK is the maximum number of sources per answer.
	RAGTopK int
	// MinRelevanceScore is the similarity floor a chunk must clear to be
	// considered for an answer.
	MinRelevanceScore float64

	// ChunkTokens is the target chunk token budget.
	ChunkTokens int
	// ChunkOverlapTokens is the overlap token budget between chunks.
	ChunkOverlapTokens int

	// EmbedBatchSize is how many chunks the Embedder sends concurrently
	// per batch.
	EmbedBatchSize int
	// EmbedBatchDelay is the pause between Embedder batches.
	EmbedBatchDelay time.Duration

	// ModelClientQueueCapacity bounds the Model Client's FIFO queue.
	ModelClientQueueCapacity int
	// ModelClientMinInterval is the minimum spacing between requests
	// leaving the Model Client's queue.
	ModelClientMinInterval time.Duration
	// ModelClientRequestTimeout is the deadline for a caller's request,
	// covering both its wait in the queue and its execution; on expiry the
	// caller observes ModelTimeout.
	ModelClientRequestTimeout time.Duration

	// GenTemperature is the generation temperature used when a call sets
	// none; the Model Client clamps it to its fixed 0.2 ceiling.
	GenTemperature float64
	// GenMaxOutputTokens is the generation output length ceiling.
	GenMaxOutputTokens int

	// LogLevel sets the core's logging verbosity ("off", "error", "warn",
	// "info", "debug").
	LogLevel string

	// VectorIndexBackend selects "scan" (default) or "milvus".
	VectorIndexBackend string
	// MilvusAddress is the Milvus endpoint when VectorIndexBackend is
	// "milvus".
	MilvusAddress string
}

// Load builds a Config from environment variables, applying the defaults
// enumerated for the onboarding RAG core wherever a variable is unset or
// malformed.
func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/onboardrag?sslmode=disable"),

		EmbedProvider: getEnv("EMBED_PROVIDER", "openai"),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedAPIKey:   getEnv("EMBED_API_KEY", ""),

		GenerateProvider: getEnv("GENERATE_PROVIDER", "gollm"),
		GenerateModel:    getEnv("GENERATE_MODEL", "gpt-4o-mini"),
		GenerateAPIKey:   getEnv("GENERATE_API_KEY", ""),

		RAGTopK:           getEnvInt("RAG_TOP_K", 5),
		MinRelevanceScore: getEnvFloat("MIN_RELEVANCE_SCORE", 0.3),

		ChunkTokens:        getEnvInt("CHUNK_TOKENS", 512),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 50),

		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 5),
		EmbedBatchDelay: getEnvDuration("EMBED_BATCH_DELAY_MS", 500*time.Millisecond),

		ModelClientQueueCapacity:  getEnvInt("MODEL_CLIENT_QUEUE_CAPACITY", 50),
		ModelClientMinInterval:    getEnvDuration("MODEL_CLIENT_MIN_INTERVAL_MS", 6500*time.Millisecond),
		ModelClientRequestTimeout: getEnvDuration("MODEL_CLIENT_REQUEST_TIMEOUT_MS", 300000*time.Millisecond),

		GenTemperature:     getEnvFloat("GEN_TEMPERATURE", 0.2),
		GenMaxOutputTokens: getEnvInt("GEN_MAX_OUTPUT_TOKENS", 1024),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		VectorIndexBackend: getEnv("VECTOR_INDEX_BACKEND", "scan"),
		MilvusAddress:      getEnv("MILVUS_ADDRESS", "localhost:19530"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// getEnvDuration reads an environment variable expressed in milliseconds
// and returns it as a time.Duration, falling back to def.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
