package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chronofact/chronofact/internal/model"
)

type fakeFollowUpGenHandler struct {
	lastSummary string
	questions   []model.FollowUpQuestion
	err         error
}

func (f *fakeFollowUpGenHandler) GenerateFollowUpQuestions(ctx context.Context, originalQuery, timelineSummary string, priorQuestions []string) ([]model.FollowUpQuestion, error) {
	f.lastSummary = timelineSummary
	return f.questions, f.err
}

func TestFollowUp_ReturnsQuestionsAndEchoesQuery(t *testing.T) {
	gen := &fakeFollowUpGenHandler{questions: []model.FollowUpQuestion{
		{Question: "What happened next?", Category: model.CategoryDeepDive, Priority: 4},
	}}
	h := FollowUp(gen)

	body, _ := json.Marshal(map[string]any{
		"original_query":  "Mumbai floods",
		"timeline_topic":  "Mumbai floods",
		"events_summary":  []string{"flooding begins", "evacuations ordered"},
		"avg_credibility": 0.85,
		"total_events":    2,
		"total_sources":   5,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/followup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp followUpResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Query != "Mumbai floods" || resp.Count != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gen.lastSummary == "" {
		t.Error("expected events_summary to be folded into the summary passed downstream")
	}
}

func TestFollowUp_RejectsMissingRequiredFields(t *testing.T) {
	h := FollowUp(&fakeFollowUpGenHandler{})

	body, _ := json.Marshal(map[string]any{"original_query": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/followup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
