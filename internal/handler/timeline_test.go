package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus "github.com/prometheus/client_model/go"

	"github.com/chronofact/chronofact/internal/imagecontext"
	"github.com/chronofact/chronofact/internal/middleware"
	"github.com/chronofact/chronofact/internal/model"
	"github.com/chronofact/chronofact/internal/pipeline"
	"github.com/chronofact/chronofact/internal/retriever"
)

type fakeImageAnalyzer struct{}

func (fakeImageAnalyzer) Analyze(ctx context.Context, topic string, image []byte, mimeType string) (imagecontext.Result, error) {
	return imagecontext.Result{}, nil
}

type fakeQueryProcessor struct{}

func (fakeQueryProcessor) ProcessQuery(ctx context.Context, rawQuery string) (model.QueryPlan, error) {
	return model.QueryPlan{RefinedText: rawQuery}, nil
}

type fakeRetriever struct {
	posts []model.Post
}

func (f fakeRetriever) Retrieve(ctx context.Context, plan model.QueryPlan) (retriever.Result, error) {
	out := retriever.Result{}
	for _, p := range f.posts {
		out.Results = append(out.Results, retriever.Scored{Post: p, FusedScore: 1})
	}
	return out, nil
}

type fakeTimelineGen struct {
	timeline model.Timeline
}

func (f fakeTimelineGen) GenerateTimeline(ctx context.Context, query string, contextPosts []model.Post, n int) (model.Timeline, error) {
	return f.timeline, nil
}

type fakeMisinfoDetector struct {
	riskLevel model.RiskLevel
}

func (f fakeMisinfoDetector) DetectMisinformation(ctx context.Context, text string) (model.MisinfoAnalysis, error) {
	riskLevel := f.riskLevel
	if riskLevel == "" {
		riskLevel = model.RiskLow
	}
	return model.MisinfoAnalysis{RiskLevel: riskLevel}, nil
}

type fakeFollowUpGen struct{}

func (fakeFollowUpGen) GenerateFollowUpQuestions(ctx context.Context, originalQuery, timelineSummary string, priorQuestions []string) ([]model.FollowUpQuestion, error) {
	return nil, nil
}

type fakeMemoryEngine struct{}

func (fakeMemoryEngine) RetrieveAndReinforce(ctx context.Context, sessionID string, queryVector []float32, limit int, minRelevance float64) ([]model.Memory, error) {
	return nil, nil
}

func (fakeMemoryEngine) Store(ctx context.Context, sessionID, content string, memType model.MemoryType) (string, error) {
	return "mem-1", nil
}

func newTestPipeline(posts []model.Post, timeline model.Timeline) *pipeline.Pipeline {
	p := pipeline.New(pipeline.Deps{
		ImageAnalyzer:   fakeImageAnalyzer{},
		QueryProcessor:  fakeQueryProcessor{},
		Retriever:       fakeRetriever{posts: posts},
		TimelineGen:     fakeTimelineGen{timeline: timeline},
		MisinfoDetector: fakeMisinfoDetector{},
		FollowUpGen:     fakeFollowUpGen{},
		Memory:          fakeMemoryEngine{},
		Deadline:        2 * time.Second,
	})
	return p
}

func TestTimeline_EmptyCollectionRespondsGracefully(t *testing.T) {
	p := newTestPipeline(nil, model.Timeline{})
	defer p.Close()
	h := NewTimeline(p, 8*1024*1024, nil)

	body, _ := json.Marshal(map[string]any{"topic": "anything", "limit": 10})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp timelineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Events) != 0 || resp.TotalSources != 0 || resp.AvgCredibility != 0 {
		t.Errorf("expected empty-collection response shape, got %+v", resp)
	}
}

func TestTimeline_BasicTimelineReturnsEventsAndSources(t *testing.T) {
	posts := []model.Post{
		{ID: "P1", CredibilityScore: 0.9},
		{ID: "P2", CredibilityScore: 0.8},
	}
	timeline := model.Timeline{
		Topic: "Mumbai floods",
		Events: []model.Event{
			{Timestamp: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), Summary: "flooding begins", Sources: []string{"P1"}, CredibilityScore: 0.9},
			{Timestamp: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), Summary: "evacuations ordered", Sources: []string{"P2"}, CredibilityScore: 0.8},
		},
	}
	p := newTestPipeline(posts, timeline)
	defer p.Close()
	h := NewTimeline(p, 8*1024*1024, nil)

	body, _ := json.Marshal(map[string]any{"topic": "Mumbai floods", "limit": 3})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp timelineResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Events))
	}
	if resp.TotalSources != 2 {
		t.Errorf("total_sources = %d, want 2", resp.TotalSources)
	}
}

func TestTimeline_RejectsEmptyTopicAndNoImage(t *testing.T) {
	p := newTestPipeline(nil, model.Timeline{})
	defer p.Close()
	h := NewTimeline(p, 8*1024*1024, nil)

	body, _ := json.Marshal(map[string]any{"limit": 10})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTimeline_RejectsLimitAboveMax(t *testing.T) {
	p := newTestPipeline(nil, model.Timeline{})
	defer p.Close()
	h := NewTimeline(p, 8*1024*1024, nil)

	body, _ := json.Marshal(map[string]any{"topic": "x", "limit": 51})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTimeline_RecordsHighRiskMetric(t *testing.T) {
	posts := []model.Post{{ID: "P1", CredibilityScore: 0.9}}
	p := pipeline.New(pipeline.Deps{
		ImageAnalyzer:   fakeImageAnalyzer{},
		QueryProcessor:  fakeQueryProcessor{},
		Retriever:       fakeRetriever{posts: posts},
		TimelineGen:     fakeTimelineGen{timeline: model.Timeline{Topic: "x"}},
		MisinfoDetector: fakeMisinfoDetector{riskLevel: model.RiskHigh},
		FollowUpGen:     fakeFollowUpGen{},
		Memory:          fakeMemoryEngine{},
		Deadline:        2 * time.Second,
	})
	defer p.Close()

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	h := NewTimeline(p, 8*1024*1024, metrics)

	body, _ := json.Marshal(map[string]any{"topic": "x", "limit": 5})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var m io_prometheus.Metric
	metrics.MisinfoHighRiskTotal.(prometheus.Metric).Write(&m)
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("misinfo_high_risk_total = %f, want 1", got)
	}
}

func TestTimeline_RejectsOversizeImage(t *testing.T) {
	p := newTestPipeline(nil, model.Timeline{})
	defer p.Close()
	h := NewTimeline(p, 4, nil) // 4-byte limit

	oversized := bytes.Repeat([]byte{0xff}, 64)
	img := map[string]any{"topic": "x", "image_base64": base64.StdEncoding.EncodeToString(oversized)}
	body, _ := json.Marshal(img)
	req := httptest.NewRequest(http.MethodPost, "/api/timeline", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}
