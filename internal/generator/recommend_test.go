package generator

import (
	"context"
	"testing"
)

func TestGenerateRecommendations_ParsesAndCapsAtLimit(t *testing.T) {
	client := &FakeClient{Responses: []string{`{
		"questions": [
			{"question": "What triggered the initial announcement?", "category": "deep_dive", "priority": 5},
			{"question": "How does this compare to the 2019 case?", "category": "comparison", "priority": 4},
			{"question": "Has this claim been independently verified?", "category": "verification", "priority": 3}
		]
	}`}}
	g := New(client)

	result, err := g.GenerateRecommendations(context.Background(), "recent policy announcement", 2)
	if err != nil {
		t.Fatalf("GenerateRecommendations: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 recommendations (capped at limit), got %d", len(result))
	}
	if result[0].Question != "What triggered the initial announcement?" {
		t.Errorf("unexpected first recommendation: %q", result[0].Question)
	}
}

func TestGenerateRecommendations_DedupesWithinBatch(t *testing.T) {
	client := &FakeClient{Responses: []string{`{
		"questions": [
			{"question": "Who funded the study?", "category": "deep_dive", "priority": 4},
			{"question": "who funded the study?", "category": "related_topic", "priority": 3}
		]
	}`}}
	g := New(client)

	result, err := g.GenerateRecommendations(context.Background(), "a disputed study", 5)
	if err != nil {
		t.Fatalf("GenerateRecommendations: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected duplicate (case-insensitive) question collapsed, got %d", len(result))
	}
}

func TestGenerateRecommendations_RetriesOnInvalidCategory(t *testing.T) {
	client := &FakeClient{Responses: []string{
		`{"questions": [{"question": "bad category", "category": "nonsense", "priority": 3}]}`,
		`{"questions": [{"question": "fixed", "category": "prediction", "priority": 3}]}`,
	}}
	g := New(client)

	result, err := g.GenerateRecommendations(context.Background(), "some query", 3)
	if err != nil {
		t.Fatalf("GenerateRecommendations: %v", err)
	}
	if len(result) != 1 || result[0].Question != "fixed" {
		t.Errorf("expected retry to recover valid result, got %+v", result)
	}
}
