package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store implementation backing
// vector_store.mode=memory/local, and used directly by package tests
// throughout retriever/generator/pipeline/memory — grounded on the
// teacher's practice of keeping interfaces narrow enough that a fake
// satisfies them without a mock framework.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	vectors []VectorSpec
	points  map[string]Point
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, name string, vectors []VectorSpec, indexes []PayloadIndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil // idempotent
	}
	s.collections[name] = &memCollection{vectors: vectors, points: make(map[string]Point)}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		c = &memCollection{points: make(map[string]Point)}
		s.collections[collection] = c
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, req QueryRequest) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}

	var scored []ScoredPoint
	for _, p := range c.points {
		if !matchFilter(p, req.Filter) {
			continue
		}
		vec, ok := p.Vectors[req.Using]
		if !ok {
			continue
		}
		sim := cosineSimilarity(req.DenseVector, vec)
		scored = append(scored, ScoredPoint{ID: p.ID, Score: sim, Payload: p.Payload})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if req.Limit > 0 && len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	return scored, nil
}

func (s *MemoryStore) SparseQuery(ctx context.Context, collection string, req QueryRequest) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}

	queryWeights := make(map[uint32]float32, len(req.SparseTerms.Indices))
	for i, idx := range req.SparseTerms.Indices {
		queryWeights[idx] = req.SparseTerms.Values[i]
	}

	var scored []ScoredPoint
	for _, p := range c.points {
		if !matchFilter(p, req.Filter) {
			continue
		}
		sparse, ok := p.Sparse[req.Using]
		if !ok {
			continue
		}
		var score float64
		for i, idx := range sparse.Indices {
			if qw, ok := queryWeights[idx]; ok {
				score += float64(qw) * float64(sparse.Values[i])
			}
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if req.Limit > 0 && len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	return scored, nil
}

func (s *MemoryStore) Scroll(ctx context.Context, collection string, filter Filter, cursor ScrollCursor, batch int) (ScrollPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return ScrollPage{}, nil
	}

	ids := make([]string, 0, len(c.points))
	for id := range c.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id > string(cursor) {
				start = i
				break
			}
			start = i + 1
		}
	}

	if batch <= 0 {
		batch = 100
	}
	end := start + batch
	if end > len(ids) {
		end = len(ids)
	}

	var page ScrollPage
	for _, id := range ids[start:end] {
		p := c.points[id]
		if !matchFilter(p, filter) {
			continue
		}
		page.Points = append(page.Points, ScoredPoint{ID: p.ID, Payload: p.Payload})
	}
	if end < len(ids) {
		page.NextCursor = ScrollCursor(ids[end-1])
	}
	return page, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (s *MemoryStore) SetPayload(ctx context.Context, collection string, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return newErr("SetPayload", ErrNotFound, nil)
	}
	p, ok := c.points[id]
	if !ok {
		return newErr("SetPayload", ErrNotFound, nil)
	}
	if p.Payload == nil {
		p.Payload = make(map[string]any)
	}
	for k, v := range patch {
		p.Payload[k] = v
	}
	c.points[id] = p
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Point exposes a direct point lookup for memory-engine consolidation reads
// that need the full Point (including vectors), not just a ScoredPoint.
func (s *MemoryStore) Point(collection, id string) (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return Point{}, false
	}
	p, ok := c.points[id]
	return p, ok
}

func cosineSimilarity(a, b []float32) float64 {
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

// matchFilter evaluates a Filter tree against a point's payload.
func matchFilter(p Point, f Filter) bool {
	if f.IsEmpty() {
		return true
	}
	for _, cond := range f.Conditions {
		if !matchCondition(p, cond) {
			return false
		}
	}
	for _, sub := range f.Must {
		if !matchFilter(p, sub) {
			return false
		}
	}
	if len(f.Should) > 0 {
		any := false
		for _, sub := range f.Should {
			if matchFilter(p, sub) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func matchCondition(p Point, c Condition) bool {
	val, ok := p.Payload[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEquals:
		return equalAny(val, c.Value)
	case OpGTE:
		return compareFloat(val) >= compareFloat(c.Value)
	case OpLTE:
		return compareFloat(val) <= compareFloat(c.Value)
	case OpIn:
		return containsAny(c.Value, val)
	default:
		return false
	}
}

func equalAny(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(as, bs)
	}
	return a == b
}

func containsAny(set any, val any) bool {
	items, ok := set.([]string)
	if !ok {
		return false
	}
	s, ok := val.(string)
	if !ok {
		return false
	}
	for _, it := range items {
		if strings.EqualFold(it, s) {
			return true
		}
	}
	return false
}

func compareFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
