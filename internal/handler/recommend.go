package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/model"
)

const defaultRecommendLimit = 5

// RecommendationGenerator is C4's /api/recommend capability.
type RecommendationGenerator interface {
	GenerateRecommendations(ctx context.Context, query string, limit int) ([]model.FollowUpQuestion, error)
}

type recommendRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type recommendResponse struct {
	Query           string                    `json:"query"`
	Count           int                       `json:"count"`
	Recommendations []model.FollowUpQuestion  `json:"recommendations"`
}

// Recommend handles POST /api/recommend, a thin wrapper re-running
// GenerateRecommendations with a recommendation-flavored prompt rather than
// the timeline-scoped follow-up prompt /api/followup uses.
func Recommend(gen RecommendationGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "malformed JSON body"))
			return
		}
		if req.Query == "" {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "query is required"))
			return
		}
		limit := req.Limit
		if limit <= 0 {
			limit = defaultRecommendLimit
		}

		recommendations, err := gen.GenerateRecommendations(r.Context(), req.Query, limit)
		if err != nil {
			respondError(w, err)
			return
		}
		if recommendations == nil {
			recommendations = []model.FollowUpQuestion{}
		}

		respondJSON(w, http.StatusOK, recommendResponse{
			Query:           req.Query,
			Count:           len(recommendations),
			Recommendations: recommendations,
		})
	}
}
