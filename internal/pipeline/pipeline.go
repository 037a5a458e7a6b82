// Package pipeline implements C6: the orchestrator that turns a
// TimelineRequest into a TimelineResponse through the state machine of
// spec.md §4.6. Grounded on the teacher's internal/service/pipeline.go
// (staged, logged, fail-fast-per-stage structure) and internal/handler/
// chat.go's cache-check → retrieve → generate → parallel-post-process
// shape — the state names differ but the staged, logged orchestration
// idiom is the same.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/embedder"
	"github.com/chronofact/chronofact/internal/imagecontext"
	"github.com/chronofact/chronofact/internal/model"
	"github.com/chronofact/chronofact/internal/retriever"
)

// State is one node of the §4.6 state machine.
type State string

const (
	StateAccepted             State = "ACCEPTED"
	StateImageAnalyzed        State = "IMAGE_ANALYZED"
	StateQueryInterpreted     State = "QUERY_INTERPRETED"
	StateRetrieved            State = "RETRIEVED"
	StateTimelineSynthesized  State = "TIMELINE_SYNTHESIZED"
	StateAnalyzed             State = "ANALYZED"
	StateResponded            State = "RESPONDED"
	StateFailed               State = "FAILED"
)

const defaultDeadline = 30 * time.Second
const reinforceQueueSize = 256

// Request is the pipeline's input, collapsing the HTTP `/api/timeline` body
// (spec.md §6) into the core's domain shape.
type Request struct {
	SessionID        string
	RawQuery         string
	Limit            int
	Location         string
	MinCredibility   float64
	IncludeMediaOnly bool
	Image            []byte
	ImageMimeType    string
	PriorQuestions   []string
}

// Response is the pipeline's output, matching the `/api/timeline` success
// shape (spec.md §6): the synthesized Timeline plus the summary fields and
// the two independently-failing analyses.
type Response struct {
	Timeline         model.Timeline
	TotalSources     int
	AvgCredibility   float64
	Misinformation   *model.MisinfoAnalysis
	MisinfoFailure   string
	FollowUps        []model.FollowUpQuestion
	FollowUpsFailure string
	Partial          bool
}

// ImageAnalyzer is C5's capability surface.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, topic string, image []byte, mimeType string) (imagecontext.Result, error)
}

// QueryProcessor is C4's query-interpretation capability.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, rawQuery string) (model.QueryPlan, error)
}

// Retriever is C3's capability surface.
type Retriever interface {
	Retrieve(ctx context.Context, plan model.QueryPlan) (retriever.Result, error)
}

// TimelineGenerator is C4's synthesis capability.
type TimelineGenerator interface {
	GenerateTimeline(ctx context.Context, query string, contextPosts []model.Post, n int) (model.Timeline, error)
}

// MisinfoDetector is C4's misinformation-detection capability.
type MisinfoDetector interface {
	DetectMisinformation(ctx context.Context, text string) (model.MisinfoAnalysis, error)
}

// FollowUpGenerator is C4's follow-up-question capability.
type FollowUpGenerator interface {
	GenerateFollowUpQuestions(ctx context.Context, originalQuery, timelineSummary string, priorQuestions []string) ([]model.FollowUpQuestion, error)
}

// MemoryEngine is the subset of C7 the pipeline drives: reinforcing related
// session memories on retrieval, and recording the interaction afterward.
type MemoryEngine interface {
	RetrieveAndReinforce(ctx context.Context, sessionID string, queryVector []float32, limit int, minRelevance float64) ([]model.Memory, error)
	Store(ctx context.Context, sessionID, content string, memType model.MemoryType) (string, error)
}

// Pipeline implements C6.
type Pipeline struct {
	imageAnalyzer    ImageAnalyzer
	queryProcessor   QueryProcessor
	retriever        Retriever
	timelineGen      TimelineGenerator
	misinfoDetector  MisinfoDetector
	followUpGen      FollowUpGenerator
	memory           MemoryEngine
	textEmbedder     embedder.TextEmbedder
	mmEmbedder       embedder.MultimodalEmbedder
	deadline         time.Duration

	reinforceCh chan reinforceJob
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

type reinforceJob struct {
	sessionID   string
	queryVector []float32
}

// Deps bundles Pipeline's collaborators for New.
type Deps struct {
	ImageAnalyzer   ImageAnalyzer
	QueryProcessor  QueryProcessor
	Retriever       Retriever
	TimelineGen     TimelineGenerator
	MisinfoDetector MisinfoDetector
	FollowUpGen     FollowUpGenerator
	Memory          MemoryEngine
	TextEmbedder    embedder.TextEmbedder
	MultimodalEmbedder embedder.MultimodalEmbedder
	Deadline        time.Duration
}

// New constructs a Pipeline and starts its background reinforcement worker.
func New(deps Deps) *Pipeline {
	deadline := deps.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}

	p := &Pipeline{
		imageAnalyzer:   deps.ImageAnalyzer,
		queryProcessor:  deps.QueryProcessor,
		retriever:       deps.Retriever,
		timelineGen:     deps.TimelineGen,
		misinfoDetector: deps.MisinfoDetector,
		followUpGen:     deps.FollowUpGen,
		memory:          deps.Memory,
		textEmbedder:    deps.TextEmbedder,
		mmEmbedder:      deps.MultimodalEmbedder,
		deadline:        deadline,
		reinforceCh:     make(chan reinforceJob, reinforceQueueSize),
	}

	p.wg.Add(1)
	go p.runReinforcementWorker()

	return p
}

// Close stops the background reinforcement worker, waiting for it to drain.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.reinforceCh)
		p.wg.Wait()
	})
}

// Process runs the full ACCEPTED → ... → RESPONDED state machine for one
// request, per spec.md §4.6.
func (p *Pipeline) Process(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	state := StateAccepted
	slog.Info("pipeline accepted", "session_id", req.SessionID, "has_image", len(req.Image) > 0)

	combinedQuery := req.RawQuery
	var imageVector []float32

	if len(req.Image) > 0 {
		analysis, err := p.imageAnalyzer.Analyze(ctx, req.RawQuery, req.Image, req.ImageMimeType)
		if err != nil {
			slog.Error("pipeline image analysis failed", "session_id", req.SessionID, "error", err)
			return Response{}, failWith(err)
		}
		combinedQuery = analysis.RefinedQuery(req.RawQuery)
		state = StateImageAnalyzed
		slog.Info("pipeline image analyzed", "session_id", req.SessionID, "visual_context", analysis.VisualContext)

		if p.mmEmbedder != nil {
			vec, err := p.mmEmbedder.EmbedMultimodal(ctx, embedder.MultimodalInput{
				Text: combinedQuery, Image: req.Image, Alpha: 0.5,
			}, embedder.FusionImageWeighted)
			if err != nil {
				slog.Warn("pipeline multimodal embedding failed, continuing without it", "session_id", req.SessionID, "error", err)
			} else {
				imageVector = vec
			}
		}
	}

	plan, err := p.queryProcessor.ProcessQuery(ctx, combinedQuery)
	if err != nil {
		slog.Warn("pipeline ProcessQuery failed, falling back to trivial plan", "session_id", req.SessionID, "error", err)
		plan = model.QueryPlan{RefinedText: req.RawQuery}
	}
	plan.Limit = req.Limit
	if plan.Limit <= 0 {
		plan.Limit = 10
	}
	plan.MinCredibility = req.MinCredibility
	if req.Location != "" {
		plan.Locations = append(plan.Locations, req.Location)
	}
	plan.ImageVector = imageVector
	state = StateQueryInterpreted
	slog.Info("pipeline query interpreted", "session_id", req.SessionID, "refined_text", plan.RefinedText)

	result, err := p.retriever.Retrieve(ctx, plan)
	if err != nil {
		slog.Error("pipeline retrieval failed", "session_id", req.SessionID, "error", err)
		return Response{}, failWith(err)
	}
	if len(result.Results) == 0 && plan.MinCredibility > 0 {
		slog.Info("pipeline retrieval empty, retrying with min_credibility=0", "session_id", req.SessionID)
		plan.MinCredibility = 0
		result, err = p.retriever.Retrieve(ctx, plan)
		if err != nil {
			slog.Error("pipeline retrieval retry failed", "session_id", req.SessionID, "error", err)
			return Response{}, failWith(err)
		}
	}
	if len(result.Results) == 0 {
		slog.Info("pipeline retrieval still empty, responding with empty timeline", "session_id", req.SessionID)
		return Response{Timeline: model.Timeline{Topic: plan.RefinedText}}, nil
	}
	state = StateRetrieved

	contextPosts := make([]model.Post, 0, len(result.Results))
	postIDs := make([]string, 0, len(result.Results))
	var credSum float64
	for _, r := range result.Results {
		contextPosts = append(contextPosts, r.Post)
		postIDs = append(postIDs, r.Post.ID)
		credSum += r.Post.CredibilityScore
	}
	avgCredibility := credSum / float64(len(contextPosts))

	timeline, err := p.timelineGen.GenerateTimeline(ctx, plan.RefinedText, contextPosts, req.Limit)
	if err != nil {
		slog.Error("pipeline timeline synthesis failed", "session_id", req.SessionID, "error", err)
		return Response{}, failWith(err)
	}
	state = StateTimelineSynthesized
	slog.Info("pipeline timeline synthesized", "session_id", req.SessionID, "event_count", len(timeline.Events))

	misinfo, misinfoErr, followUps, followUpErr := p.analyzeParallel(ctx, req.RawQuery, summarize(timeline), req.PriorQuestions)
	state = StateAnalyzed

	resp := Response{
		Timeline:       timeline,
		TotalSources:   len(contextPosts),
		AvgCredibility: avgCredibility,
		FollowUps:      followUps,
		Partial:        result.Partial,
	}
	if misinfoErr == nil {
		resp.Misinformation = &misinfo
	} else {
		resp.MisinfoFailure = misinfoErr.Error()
	}
	if followUpErr != nil {
		resp.FollowUpsFailure = followUpErr.Error()
	}

	state = StateResponded
	slog.Info("pipeline responded", "session_id", req.SessionID, "state", state, "total_sources", resp.TotalSources)

	// Reinforcement and interaction writes only happen once the request is
	// known to have succeeded — a cancelled or failed request (spec.md §5)
	// must never leave a memory write behind, so neither call fires from any
	// of the error-return paths above.
	if req.SessionID != "" && p.memory != nil && p.textEmbedder != nil {
		p.enqueueReinforcement(ctx, req.SessionID, plan.RefinedText)
	}
	if req.SessionID != "" && p.memory != nil {
		go p.recordInteraction(req.SessionID, req.RawQuery, timeline)
	}

	return resp, nil
}

func (p *Pipeline) analyzeParallel(ctx context.Context, rawQuery, timelineSummary string, priorQuestions []string) (model.MisinfoAnalysis, error, []model.FollowUpQuestion, error) {
	var wg sync.WaitGroup
	var misinfo model.MisinfoAnalysis
	var misinfoErr error
	var followUps []model.FollowUpQuestion
	var followUpErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		misinfo, misinfoErr = p.misinfoDetector.DetectMisinformation(ctx, rawQuery)
		if misinfoErr != nil {
			slog.Warn("pipeline misinformation detection failed independently", "error", misinfoErr)
		}
	}()
	go func() {
		defer wg.Done()
		followUps, followUpErr = p.followUpGen.GenerateFollowUpQuestions(ctx, rawQuery, timelineSummary, priorQuestions)
		if followUpErr != nil {
			slog.Warn("pipeline follow-up generation failed independently", "error", followUpErr)
		}
	}()
	wg.Wait()

	return misinfo, misinfoErr, followUps, followUpErr
}

func (p *Pipeline) enqueueReinforcement(ctx context.Context, sessionID, refinedText string) {
	if ctx.Err() != nil {
		return
	}
	vecs, err := p.textEmbedder.EmbedText(ctx, []string{refinedText})
	if err != nil || len(vecs) == 0 {
		return
	}
	job := reinforceJob{sessionID: sessionID, queryVector: vecs[0]}

	select {
	case p.reinforceCh <- job:
		return
	default:
	}
	// Queue full: drop oldest, then try once more.
	select {
	case <-p.reinforceCh:
	default:
	}
	select {
	case p.reinforceCh <- job:
	default:
	}
}

func (p *Pipeline) runReinforcementWorker() {
	defer p.wg.Done()
	for job := range p.reinforceCh {
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := p.memory.RetrieveAndReinforce(ctx, job.sessionID, job.queryVector, 5, 0); err != nil {
				slog.Warn("pipeline reinforcement write failed", "session_id", job.sessionID, "error", err)
			}
		}()
	}
}

func (p *Pipeline) recordInteraction(sessionID, rawQuery string, timeline model.Timeline) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	content := rawQuery + " -- " + summarize(timeline)
	if _, err := p.memory.Store(ctx, sessionID, content, model.MemoryInteraction); err != nil {
		slog.Warn("pipeline interaction memory store failed", "session_id", sessionID, "error", err)
	}
}

func summarize(t model.Timeline) string {
	n := 3
	if len(t.Events) < n {
		n = len(t.Events)
	}
	summaries := make([]string, 0, n)
	for i := 0; i < n; i++ {
		summaries = append(summaries, t.Events[i].Summary)
	}
	out := t.Topic
	for _, s := range summaries {
		out += " | " + s
	}
	return out
}

func failWith(err error) error {
	if chronoerr.KindOf(err) == chronoerr.KindInternal {
		return chronoerr.Wrap(chronoerr.KindInternal, "pipeline", err)
	}
	return err
}
