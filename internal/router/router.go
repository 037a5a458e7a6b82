package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronofact/chronofact/internal/handler"
	"github.com/chronofact/chronofact/internal/middleware"
	"github.com/chronofact/chronofact/internal/pipeline"
)

// Dependencies holds all injected services needed by the router.
type Dependencies struct {
	Pipeline      *pipeline.Pipeline
	ImageMaxBytes int64

	EmbedderPinger    handler.Pinger
	VectorStorePinger handler.Pinger
	GeneratorPinger   handler.Pinger

	CredibilityAssessor handler.CredibilityAssessor
	MisinfoDetector     handler.MisinfoDetector
	FollowUpGenerator   handler.FollowUpGenerator
	RecommendationGen   handler.RecommendationGenerator

	FrontendURL string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry

	RateLimiter *middleware.RateLimiter
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}
	if deps.RateLimiter != nil {
		r.Use(middleware.RateLimit(deps.RateLimiter))
	}

	r.Get("/health", handler.Health(deps.EmbedderPinger, deps.VectorStorePinger, deps.GeneratorPinger))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	timeout := middleware.Timeout(30 * time.Second)

	r.With(timeout).Post("/api/timeline", handler.NewTimeline(deps.Pipeline, deps.ImageMaxBytes, deps.Metrics))
	r.With(timeout).Post("/api/verify", handler.Verify(deps.CredibilityAssessor))
	r.With(timeout).Post("/api/detect", handler.Detect(deps.MisinfoDetector, deps.Metrics))
	r.With(timeout).Post("/api/followup", handler.FollowUp(deps.FollowUpGenerator))
	r.With(timeout).Post("/api/recommend", handler.Recommend(deps.RecommendationGen))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
