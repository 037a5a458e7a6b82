// Package vectorstore implements C2: a typed CRUD-plus-query surface over
// named-vector collections with payload filters, backed by Qdrant. The
// interface is kept narrow enough (Store) that an in-memory fake satisfies
// it directly — the teacher's pattern of defining VectorSearcher/BM25Searcher
// interfaces that both a real repository and a test fake implement
// (internal/service/retriever.go).
package vectorstore

import (
	"context"
	"time"
)

// VectorSpec declares one named vector's dimensionality for ensure_collection.
type VectorSpec struct {
	Name string
	Dim  int
}

// PayloadIndexSpec declares one indexed payload field for ensure_collection.
type PayloadIndexSpec struct {
	Field string
	Kind  PayloadFieldKind
}

// PayloadFieldKind is the Qdrant index kind backing a payload field.
type PayloadFieldKind string

const (
	FieldKeyword PayloadFieldKind = "keyword"
	FieldFloat   PayloadFieldKind = "float"
	FieldInt     PayloadFieldKind = "integer"
	FieldBool    PayloadFieldKind = "bool"
	FieldDatetime PayloadFieldKind = "datetime"
)

// Point is one stored item: an id, a set of named vectors, and a payload.
type Point struct {
	ID       string
	Vectors  map[string][]float32
	Sparse   map[string]SparseVector // named sparse vectors (e.g. "text_bm25")
	Payload  map[string]any
}

// SparseVector is a term-index/weight pair list for BM25-style scoring.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// ScoredPoint is a query result: the point id, its payload, and its score.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// FilterOp is the comparison operator of a single filter condition.
type FilterOp string

const (
	OpEquals     FilterOp = "eq"
	OpGTE        FilterOp = "gte"
	OpLTE        FilterOp = "lte"
	OpIn         FilterOp = "in" // set membership
)

// Condition is one leaf of a Filter tree: Field Op Value.
type Condition struct {
	Field string
	Op    FilterOp
	Value any
}

// Filter is a tree of conjunctions/disjunctions over indexed payload fields,
// per spec.md §4.2. Exactly one of Must/Should/Conditions should be set at
// a given node; Conditions at the root with no nesting is the common case.
type Filter struct {
	Must       []Filter    // AND
	Should     []Filter    // OR
	Conditions []Condition // leaf-level AND'd conditions
}

// IsEmpty reports whether the filter carries no constraints.
func (f Filter) IsEmpty() bool {
	return len(f.Must) == 0 && len(f.Should) == 0 && len(f.Conditions) == 0
}

// QueryRequest describes a dense or sparse similarity query.
type QueryRequest struct {
	Using       string // named vector to query against, e.g. "text", "text_bm25", "multimodal"
	DenseVector []float32
	SparseTerms SparseVector
	Filter      Filter
	Limit       int
	WithPayload bool
}

// ScrollCursor paginates a scroll operation; empty string starts from the beginning.
type ScrollCursor string

// ScrollPage is one page of a scroll operation.
type ScrollPage struct {
	Points     []ScoredPoint
	NextCursor ScrollCursor
}

// Store is the full C2 capability surface from spec.md §4.2.
type Store interface {
	EnsureCollection(ctx context.Context, name string, vectors []VectorSpec, indexes []PayloadIndexSpec) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Query(ctx context.Context, collection string, req QueryRequest) ([]ScoredPoint, error)
	SparseQuery(ctx context.Context, collection string, req QueryRequest) ([]ScoredPoint, error)
	Scroll(ctx context.Context, collection string, filter Filter, cursor ScrollCursor, batch int) (ScrollPage, error)
	Delete(ctx context.Context, collection string, ids []string) error
	SetPayload(ctx context.Context, collection string, id string, patch map[string]any) error
	Ping(ctx context.Context) error
}

// Collection names, fixed by spec.md §3.
const (
	CollectionPosts    = "x_posts"
	CollectionFacts    = "knowledge_facts"
	CollectionMemories = "session_memory"
)

// timeAsFloat converts a time.Time to a Unix-seconds float for range filters
// on the "timestamp"/"last_accessed" payload fields.
func timeAsFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
