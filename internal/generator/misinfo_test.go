package generator

import (
	"context"
	"testing"

	"github.com/chronofact/chronofact/internal/model"
)

func TestDetectMisinformation_ParsesRiskLevel(t *testing.T) {
	client := &FakeClient{Responses: []string{`{
		"is_suspicious": true,
		"suspicious_patterns": ["unverifiable statistic"],
		"risk_level": "high",
		"recommendation": "verify against primary sources"
	}`}}
	g := New(client)

	result, err := g.DetectMisinformation(context.Background(), "some text")
	if err != nil {
		t.Fatalf("DetectMisinformation: %v", err)
	}
	if result.RiskLevel != model.RiskHigh {
		t.Errorf("expected high risk, got %v", result.RiskLevel)
	}
	if !result.IsSuspicious {
		t.Errorf("expected is_suspicious=true")
	}
}

func TestDetectMisinformation_RetriesOnInvalidRiskLevel(t *testing.T) {
	client := &FakeClient{Responses: []string{
		`{"is_suspicious":false,"suspicious_patterns":[],"risk_level":"extreme","recommendation":""}`,
		`{"is_suspicious":false,"suspicious_patterns":[],"risk_level":"low","recommendation":"none"}`,
	}}
	g := New(client)

	result, err := g.DetectMisinformation(context.Background(), "some text")
	if err != nil {
		t.Fatalf("DetectMisinformation: %v", err)
	}
	if result.RiskLevel != model.RiskLow {
		t.Errorf("expected corrected low risk, got %v", result.RiskLevel)
	}
}
