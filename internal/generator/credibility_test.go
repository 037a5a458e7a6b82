package generator

import (
	"context"
	"testing"

	"github.com/chronofact/chronofact/internal/model"
)

func TestAssessCredibility_ParsesScoreAndRisk(t *testing.T) {
	client := &FakeClient{Responses: []string{`{
		"score": 0.82,
		"risk_level": "low",
		"signals": ["specific dates cited", "named primary source"],
		"suggestion": "cross-check the cited figures against the original report"
	}`}}
	g := New(client)

	result, err := g.AssessCredibility(context.Background(), "the report names three named officials and cites exact dates", "verified_journalist", 1200)
	if err != nil {
		t.Fatalf("AssessCredibility: %v", err)
	}
	if result.Score != 0.82 {
		t.Errorf("expected score 0.82, got %v", result.Score)
	}
	if result.RiskLevel != model.RiskLow {
		t.Errorf("expected low risk, got %v", result.RiskLevel)
	}
	if len(result.Signals) != 2 {
		t.Errorf("expected 2 signals, got %d", len(result.Signals))
	}
}

func TestAssessCredibility_RetriesOnScoreOutOfRange(t *testing.T) {
	client := &FakeClient{Responses: []string{
		`{"score": 1.4, "risk_level": "medium", "signals": [], "suggestion": ""}`,
		`{"score": 0.3, "risk_level": "high", "signals": ["anonymous source"], "suggestion": "treat with caution"}`,
	}}
	g := New(client)

	result, err := g.AssessCredibility(context.Background(), "anonymous leaked document claims", "", 0)
	if err != nil {
		t.Fatalf("AssessCredibility: %v", err)
	}
	if result.Score != 0.3 {
		t.Errorf("expected corrected score 0.3, got %v", result.Score)
	}
}

func TestAssessCredibility_RetriesOnInvalidRiskLevel(t *testing.T) {
	client := &FakeClient{Responses: []string{
		`{"score": 0.5, "risk_level": "extreme", "signals": [], "suggestion": ""}`,
		`{"score": 0.5, "risk_level": "medium", "signals": [], "suggestion": "moderate confidence"}`,
	}}
	g := New(client)

	result, err := g.AssessCredibility(context.Background(), "some claim", "", 0)
	if err != nil {
		t.Fatalf("AssessCredibility: %v", err)
	}
	if result.RiskLevel != model.RiskMedium {
		t.Errorf("expected corrected medium risk, got %v", result.RiskLevel)
	}
}
