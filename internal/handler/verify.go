package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/model"
)

// CredibilityAssessor is C4's /api/verify capability.
type CredibilityAssessor interface {
	AssessCredibility(ctx context.Context, text, author string, engagement int) (model.CredibilityAssessment, error)
}

type verifyRequest struct {
	Text       string `json:"text"`
	Author     string `json:"author,omitempty"`
	Engagement int    `json:"engagement,omitempty"`
}

// Verify handles POST /api/verify.
func Verify(assessor CredibilityAssessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "malformed JSON body"))
			return
		}
		if req.Text == "" {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "text is required"))
			return
		}

		result, err := assessor.AssessCredibility(r.Context(), req.Text, req.Author, req.Engagement)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}
