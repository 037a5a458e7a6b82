package imagecontext

import (
	"context"
	"testing"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/generator"
)

type fakeImageClient struct {
	responses []string
	calls     int
}

func (f *fakeImageClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func (f *fakeImageClient) GenerateWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

func TestAnalyze_ParsesVisualContext(t *testing.T) {
	client := &fakeImageClient{responses: []string{`{"visual_context": "flood waters, damaged roads", "entities": ["bridge"]}`}}
	a := New(generator.New(client))

	result, err := a.Analyze(context.Background(), "flooding", []byte("fake-image-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.VisualContext != "flood waters, damaged roads" {
		t.Errorf("unexpected visual_context: %q", result.VisualContext)
	}
	if len(result.Entities) != 1 || result.Entities[0] != "bridge" {
		t.Errorf("unexpected entities: %v", result.Entities)
	}
}

func TestAnalyze_RejectsOversizeImage(t *testing.T) {
	client := &fakeImageClient{responses: []string{`{}`}}
	a := New(generator.New(client))

	oversized := make([]byte, MaxImageBytes+1)
	_, err := a.Analyze(context.Background(), "topic", oversized, "image/jpeg")
	if chronoerr.KindOf(err) != chronoerr.KindPayloadTooLarge {
		t.Fatalf("expected KindPayloadTooLarge, got %v", err)
	}
}

func TestAnalyze_RetriesOnEmptyVisualContext(t *testing.T) {
	client := &fakeImageClient{responses: []string{
		`{"visual_context": "", "entities": []}`,
		`{"visual_context": "rescue boats on flooded street", "entities": []}`,
	}}
	a := New(generator.New(client))

	result, err := a.Analyze(context.Background(), "flooding", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.VisualContext != "rescue boats on flooded street" {
		t.Errorf("expected corrected visual_context, got %q", result.VisualContext)
	}
}

func TestRefinedQuery_ConcatenatesVisualContext(t *testing.T) {
	r := Result{VisualContext: "flood waters"}
	got := r.RefinedQuery("riverside district")
	want := "riverside district flood waters"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
