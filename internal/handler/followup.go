package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/model"
)

// FollowUpGenerator is C4's /api/followup capability.
type FollowUpGenerator interface {
	GenerateFollowUpQuestions(ctx context.Context, originalQuery, timelineSummary string, priorQuestions []string) ([]model.FollowUpQuestion, error)
}

type followUpRequest struct {
	OriginalQuery     string   `json:"original_query"`
	TimelineTopic     string   `json:"timeline_topic"`
	EventsSummary     []string `json:"events_summary"`
	AvgCredibility    float64  `json:"avg_credibility"`
	TotalEvents       int      `json:"total_events"`
	TotalSources      int      `json:"total_sources"`
	PreviousQuestions []string `json:"previous_questions,omitempty"`
}

type followUpResponse struct {
	Query     string                     `json:"query"`
	Count     int                        `json:"count"`
	Questions []model.FollowUpQuestion   `json:"questions"`
}

// FollowUp handles POST /api/followup.
func FollowUp(gen FollowUpGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req followUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "malformed JSON body"))
			return
		}
		if req.OriginalQuery == "" || req.TimelineTopic == "" {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "original_query and timeline_topic are required"))
			return
		}

		summary := buildTimelineSummary(req)
		questions, err := gen.GenerateFollowUpQuestions(r.Context(), req.OriginalQuery, summary, req.PreviousQuestions)
		if err != nil {
			respondError(w, err)
			return
		}
		if questions == nil {
			questions = []model.FollowUpQuestion{}
		}

		respondJSON(w, http.StatusOK, followUpResponse{
			Query:     req.OriginalQuery,
			Count:     len(questions),
			Questions: questions,
		})
	}
}

// buildTimelineSummary flattens a /api/followup request's summary fields
// into the single-string shape GenerateFollowUpQuestions expects, since
// that function was built for the in-process pipeline call (C6) where a
// Timeline is available to summarize directly.
func buildTimelineSummary(req followUpRequest) string {
	var sb strings.Builder
	sb.WriteString(req.TimelineTopic)
	for _, s := range req.EventsSummary {
		sb.WriteString(" | ")
		sb.WriteString(s)
	}
	sb.WriteString(fmt.Sprintf(" (avg_credibility=%.2f, total_events=%d, total_sources=%d)",
		req.AvgCredibility, req.TotalEvents, req.TotalSources))
	return sb.String()
}
