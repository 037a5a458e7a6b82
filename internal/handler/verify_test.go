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

type fakeCredibilityAssessor struct {
	result model.CredibilityAssessment
	err    error
}

func (f fakeCredibilityAssessor) AssessCredibility(ctx context.Context, text, author string, engagement int) (model.CredibilityAssessment, error) {
	return f.result, f.err
}

func TestVerify_ReturnsAssessment(t *testing.T) {
	h := Verify(fakeCredibilityAssessor{result: model.CredibilityAssessment{Score: 0.7, RiskLevel: model.RiskMedium}})

	body, _ := json.Marshal(map[string]any{"text": "a claim worth checking"})
	req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp model.CredibilityAssessment
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Score != 0.7 || resp.RiskLevel != model.RiskMedium {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestVerify_RejectsEmptyText(t *testing.T) {
	h := Verify(fakeCredibilityAssessor{})

	body, _ := json.Marshal(map[string]any{"text": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
