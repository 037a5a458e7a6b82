// Package config loads Chronofact's process-wide configuration from
// environment variables, following the fail-fast-on-required / default-the-
// rest convention of the teacher's config loader.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port        int
	Environment string

	// Vector store (C2)
	VectorStoreMode    string // memory | local | docker | cloud
	VectorStoreURL     string
	VectorStoreAPIKey  string
	VectorStoragePath  string

	// Embedder (C1)
	GCPProject        string
	EmbedderLocation  string
	EmbedderTextModel string
	EmbedderMMModel   string
	EmbeddingDimText  int
	EmbeddingDimImage int

	// Generator (C4)
	GeneratorProvider string
	GeneratorLocation string
	GeneratorModel    string
	GeneratorAPIKey   string

	// Limits
	RequestDeadlineMs int
	LLMRatePerMin     int
	ImageMaxBytes     int64

	// Retrieval weights (C3)
	WeightDense       float64
	WeightSparse      float64
	WeightMultimodal  float64
	WeightCredibility float64
	RRFK              int

	// Memory (C7)
	DecayRateInteraction float64
	DecayRateFact        float64
	DecayRatePreference  float64
	TauDelete            float64
	ReinforceBeta        float64
	ConsolidateThreshold float64
	SweepInterval        int // seconds

	// Ambient
	FrontendURL string

	// Redis-backed LLM token bucket (A5)
	RedisURL string

	// Pub/Sub sweep trigger (A6)
	PubSubProjectID      string
	PubSubSweepSubscription string
}

// Load reads configuration from environment variables. A Qdrant connection
// target is required unless VECTOR_STORE_MODE is memory/local;
// GOOGLE_CLOUD_PROJECT is required whenever ENVIRONMENT is not development.
func Load() (*Config, error) {
	mode := envStr("VECTOR_STORE_MODE", "memory")

	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),

		VectorStoreMode:   mode,
		VectorStoreURL:    envStr("VECTOR_STORE_URL", ""),
		VectorStoreAPIKey: envStr("VECTOR_STORE_API_KEY", ""),
		VectorStoragePath: envStr("VECTOR_STORAGE_PATH", "./data/vectorstore"),

		GCPProject:        envStr("GOOGLE_CLOUD_PROJECT", ""),
		EmbedderLocation:  envStr("EMBEDDER_LOCATION", "global"),
		EmbedderTextModel: envStr("EMBEDDER_TEXT_MODEL", "text-embedding-004"),
		EmbedderMMModel:   envStr("EMBEDDER_MULTIMODAL_MODEL", "multimodalembedding@001"),
		EmbeddingDimText:  envInt("EMBEDDING_DIM_TEXT", 768),
		EmbeddingDimImage: envInt("EMBEDDING_DIM_IMAGE", 1408),

		GeneratorProvider: envStr("GENERATOR_PROVIDER", "vertexai"),
		GeneratorLocation: envStr("GENERATOR_LOCATION", "global"),
		GeneratorModel:    envStr("GENERATOR_MODEL", "gemini-3-pro-preview"),
		GeneratorAPIKey:   envStr("GENERATOR_API_KEY", ""),

		RequestDeadlineMs: envInt("REQUEST_DEADLINE_MS", 30_000),
		LLMRatePerMin:     envInt("LLM_RATE_PER_MIN", 60),
		ImageMaxBytes:     int64(envInt("IMAGE_MAX_BYTES", 8*1024*1024)),

		WeightDense:       envFloat("RETRIEVAL_WEIGHT_DENSE", 0.55),
		WeightSparse:      envFloat("RETRIEVAL_WEIGHT_SPARSE", 0.25),
		WeightMultimodal:  envFloat("RETRIEVAL_WEIGHT_MULTIMODAL", 0.15),
		WeightCredibility: envFloat("RETRIEVAL_WEIGHT_CREDIBILITY", 0.05),
		RRFK:              envInt("RETRIEVAL_RRF_K", 60),

		DecayRateInteraction: envFloat("MEMORY_DECAY_INTERACTION", 0.02),
		DecayRateFact:        envFloat("MEMORY_DECAY_FACT", 0.005),
		DecayRatePreference:  envFloat("MEMORY_DECAY_PREFERENCE", 0.01),
		TauDelete:            envFloat("MEMORY_TAU_DELETE", 0.2),
		ReinforceBeta:        envFloat("MEMORY_REINFORCE_BETA", 0.1),
		ConsolidateThreshold: envFloat("MEMORY_CONSOLIDATE_THRESHOLD", 0.85),
		SweepInterval:        envInt("MEMORY_SWEEP_INTERVAL_SECONDS", 3600),

		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),

		RedisURL: envStr("REDIS_URL", ""),

		PubSubProjectID:         envStr("PUBSUB_PROJECT_ID", ""),
		PubSubSweepSubscription: envStr("PUBSUB_SWEEP_SUBSCRIPTION", ""),
	}

	if cfg.VectorStoreMode != "memory" && cfg.VectorStoreMode != "local" && cfg.VectorStoreURL == "" {
		return nil, fmt.Errorf("config.Load: VECTOR_STORE_URL is required when VECTOR_STORE_MODE=%s", cfg.VectorStoreMode)
	}
	if cfg.Environment != "development" && cfg.GCPProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
