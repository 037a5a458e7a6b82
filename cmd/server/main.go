package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/chronofact/chronofact/internal/cache"
	"github.com/chronofact/chronofact/internal/config"
	"github.com/chronofact/chronofact/internal/embedder"
	"github.com/chronofact/chronofact/internal/generator"
	"github.com/chronofact/chronofact/internal/handler"
	"github.com/chronofact/chronofact/internal/imagecontext"
	"github.com/chronofact/chronofact/internal/memory"
	"github.com/chronofact/chronofact/internal/middleware"
	"github.com/chronofact/chronofact/internal/pipeline"
	"github.com/chronofact/chronofact/internal/ratelimit"
	"github.com/chronofact/chronofact/internal/retriever"
	"github.com/chronofact/chronofact/internal/router"
	"github.com/chronofact/chronofact/internal/sweep"
	"github.com/chronofact/chronofact/internal/vectorstore"
)

const Version = "0.1.0"

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildVectorStore(cfg)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if err := ensureCollections(ctx, store, cfg); err != nil {
		return fmt.Errorf("ensure collections: %w", err)
	}

	vertexEmbedder, err := embedder.New(ctx, cfg.GCPProject, cfg.EmbedderLocation, cfg.EmbedderTextModel, cfg.EmbedderMMModel)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	textEmbedder := cache.NewCachingTextEmbedder(vertexEmbedder)
	defer textEmbedder.Stop()

	vertexClient, err := generator.NewVertexClient(ctx, cfg.GCPProject, cfg.GeneratorLocation, cfg.GeneratorModel)
	if err != nil {
		return fmt.Errorf("generator client: %w", err)
	}

	var genClient generator.Client = vertexClient
	if cfg.RedisURL != "" {
		redisClient, rerr := newRedisClient(cfg.RedisURL)
		if rerr != nil {
			return fmt.Errorf("redis: %w", rerr)
		}
		limiter := ratelimit.New(redisClient, ratelimit.Config{
			BucketKey:       "chronofact:llm:" + cfg.GeneratorModel,
			Capacity:        float64(cfg.LLMRatePerMin),
			RefillPerSecond: float64(cfg.LLMRatePerMin) / 60,
		})
		genClient = ratelimit.Wrap(vertexClient, limiter)
	}
	gen := generator.New(genClient)

	imageAnalyzer := imagecontext.New(gen)

	vocab := retriever.NewVocabulary()
	ret := retriever.New(store, textEmbedder, retriever.Weights{
		Dense:       cfg.WeightDense,
		Sparse:      cfg.WeightSparse,
		Multimodal:  cfg.WeightMultimodal,
		Credibility: cfg.WeightCredibility,
		RRFK:        cfg.RRFK,
	}, vocab)

	memEngine := memory.New(store, vertexEmbedder, memory.DecayRates{
		Interaction: cfg.DecayRateInteraction,
		Fact:        cfg.DecayRateFact,
		Preference:  cfg.DecayRatePreference,
	})

	pipe := pipeline.New(pipeline.Deps{
		ImageAnalyzer:      imageAnalyzer,
		QueryProcessor:     gen,
		Retriever:          ret,
		TimelineGen:        gen,
		MisinfoDetector:    gen,
		FollowUpGen:        gen,
		Memory:             memEngine,
		TextEmbedder:       textEmbedder,
		MultimodalEmbedder: vertexEmbedder,
		Deadline:           time.Duration(cfg.RequestDeadlineMs) * time.Millisecond,
	})
	defer pipe.Close()

	scheduler, err := sweep.New(ctx, memEngine, sweep.Config{
		ConsolidateThreshold: cfg.ConsolidateThreshold,
		Interval:             time.Duration(cfg.SweepInterval) * time.Second,
		ProjectID:            cfg.PubSubProjectID,
		Subscription:         cfg.PubSubSweepSubscription,
	})
	if err != nil {
		return fmt.Errorf("sweep scheduler: %w", err)
	}
	go scheduler.Run(ctx)
	defer scheduler.Stop()

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: cfg.LLMRatePerMin,
		Window:      time.Minute,
	})
	defer rl.Stop()

	mux := router.New(&router.Dependencies{
		Pipeline:      pipe,
		ImageMaxBytes: cfg.ImageMaxBytes,

		EmbedderPinger:    handler.PingerFunc(vertexEmbedder.HealthCheck),
		VectorStorePinger: handler.PingerFunc(store.Ping),
		GeneratorPinger:   handler.PingerFunc(vertexClient.HealthCheck),

		CredibilityAssessor: gen,
		MisinfoDetector:     gen,
		FollowUpGenerator:   gen,
		RecommendationGen:   gen,

		FrontendURL: cfg.FrontendURL,
		Metrics:     metrics,
		MetricsReg:  reg,
		RateLimiter: rl,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.RequestDeadlineMs)*time.Millisecond + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("chronofact starting", "version", Version, "port", cfg.Port, "vector_store_mode", cfg.VectorStoreMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func buildVectorStore(cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStoreMode {
	case "memory", "local":
		return vectorstore.NewMemoryStore(), nil
	case "docker", "cloud":
		u, err := url.Parse(cfg.VectorStoreURL)
		if err != nil {
			return nil, fmt.Errorf("parse VECTOR_STORE_URL: %w", err)
		}
		port := 6334
		if u.Port() != "" {
			fmt.Sscanf(u.Port(), "%d", &port)
		}
		useTLS := cfg.VectorStoreMode == "cloud"
		return vectorstore.NewQdrantStore(u.Hostname(), port, cfg.VectorStoreAPIKey, useTLS)
	default:
		return nil, fmt.Errorf("unknown vector_store.mode %q", cfg.VectorStoreMode)
	}
}

func ensureCollections(ctx context.Context, store vectorstore.Store, cfg *config.Config) error {
	textVec := []vectorstore.VectorSpec{{Name: "text", Dim: cfg.EmbeddingDimText}}
	multimodalVec := []vectorstore.VectorSpec{
		{Name: "text", Dim: cfg.EmbeddingDimText},
		{Name: "image", Dim: cfg.EmbeddingDimImage},
		{Name: "multimodal", Dim: cfg.EmbeddingDimImage},
	}
	indexes := []vectorstore.PayloadIndexSpec{{Field: "session_id", Kind: vectorstore.FieldKeyword}}

	if err := store.EnsureCollection(ctx, vectorstore.CollectionPosts, multimodalVec, nil); err != nil {
		return err
	}
	if err := store.EnsureCollection(ctx, vectorstore.CollectionFacts, textVec, nil); err != nil {
		return err
	}
	return store.EnsureCollection(ctx, vectorstore.CollectionMemories, textVec, indexes)
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
