package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/middleware"
	"github.com/chronofact/chronofact/internal/model"
)

// MisinfoDetector is C4's /api/detect capability.
type MisinfoDetector interface {
	DetectMisinformation(ctx context.Context, text string) (model.MisinfoAnalysis, error)
}

type detectRequest struct {
	Text string `json:"text"`
}

// Detect handles POST /api/detect. metrics is optional — nil disables the
// misinformation-risk counter.
func Detect(detector MisinfoDetector, metrics *middleware.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "malformed JSON body"))
			return
		}
		if req.Text == "" {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "text is required"))
			return
		}

		result, err := detector.DetectMisinformation(r.Context(), req.Text)
		if err != nil {
			respondError(w, err)
			return
		}
		if metrics != nil && result.RiskLevel == model.RiskHigh {
			metrics.IncrementMisinfoHighRisk()
		}
		respondJSON(w, http.StatusOK, result)
	}
}
