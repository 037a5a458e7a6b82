// Package retriever implements C3: dense+sparse(+multimodal) fan-out over
// the posts collection, reciprocal-rank fusion, and the author/domain
// diversity pass — generalized from the teacher's internal/service/
// retriever.go two-list RRF into the spec's three-list, credibility
// weighted fusion.
package retriever

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/embedder"
	"github.com/chronofact/chronofact/internal/model"
	"github.com/chronofact/chronofact/internal/vectorstore"
)

// Weights are the fusion coefficients from spec.md §4.3, overridable via
// configuration.
type Weights struct {
	Dense        float64
	Sparse       float64
	Multimodal   float64
	Credibility  float64
	RRFK         int
}

// DefaultWeights matches the spec's defaults.
func DefaultWeights() Weights {
	return Weights{Dense: 0.55, Sparse: 0.25, Multimodal: 0.15, Credibility: 0.05, RRFK: 60}
}

// Scored is one fused retrieval result.
type Scored struct {
	Post           model.Post
	FusedScore     float64
	DenseScore     float64
	SparseScore    float64
	MultimodalScore float64
}

// Result is the outcome of Retrieve, including the partial-failure flag
// required by spec.md §4.3's failure semantics.
type Result struct {
	Results []Scored
	Partial bool
}

// Retriever implements C3.
type Retriever struct {
	store   vectorstore.Store
	embed   embedder.TextEmbedder
	weights Weights
	vocab   *Vocabulary
}

// New constructs a Retriever over the given store and text embedder.
func New(store vectorstore.Store, embed embedder.TextEmbedder, weights Weights, vocab *Vocabulary) *Retriever {
	return &Retriever{store: store, embed: embed, weights: weights, vocab: vocab}
}

// Retrieve runs the eight-step algorithm of spec.md §4.3 against a QueryPlan.
func (r *Retriever) Retrieve(ctx context.Context, plan model.QueryPlan) (Result, error) {
	vecs, err := r.embed.EmbedText(ctx, []string{plan.RefinedText})
	if err != nil {
		return Result{}, chronoerr.Wrap(chronoerr.KindEmbeddingUnavailable, "embed refined_text", err)
	}
	dense := vecs[0]
	sparse := r.vocab.Encode(plan.RefinedText)
	filter := buildFilter(plan)

	limit := plan.Limit
	if limit <= 0 {
		limit = 10
	}
	fanoutLimit := 3 * limit

	type subResult struct {
		points []vectorstore.ScoredPoint
		err    error
	}

	var denseRes, sparseRes, mmRes subResult
	wantMM := len(plan.ImageVector) > 0

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := r.store.Query(gctx, vectorstore.CollectionPosts, vectorstore.QueryRequest{
			Using: "text", DenseVector: dense, Filter: filter, Limit: fanoutLimit, WithPayload: true,
		})
		denseRes = subResult{points, err}
		return nil
	})
	g.Go(func() error {
		points, err := r.store.SparseQuery(gctx, vectorstore.CollectionPosts, vectorstore.QueryRequest{
			Using: "text_bm25", SparseTerms: sparse, Filter: filter, Limit: fanoutLimit, WithPayload: true,
		})
		sparseRes = subResult{points, err}
		return nil
	})
	if wantMM {
		g.Go(func() error {
			points, err := r.store.Query(gctx, vectorstore.CollectionPosts, vectorstore.QueryRequest{
				Using: "multimodal", DenseVector: plan.ImageVector, Filter: filter, Limit: fanoutLimit, WithPayload: true,
			})
			mmRes = subResult{points, err}
			return nil
		})
	}
	_ = g.Wait() // sub-goroutines never return non-nil error; failures are carried in subResult

	failures := 0
	total := 2
	if wantMM {
		total = 3
	}
	if denseRes.err != nil {
		failures++
	}
	if sparseRes.err != nil {
		failures++
	}
	if wantMM && mmRes.err != nil {
		failures++
	}
	if failures == total {
		return Result{}, chronoerr.New(chronoerr.KindRetrievalUnavailable, "all retrieval sub-queries failed")
	}

	fused := fuse(denseRes.points, sparseRes.points, mmRes.points, r.weights)

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		ti, tj := fused[i].Post.Timestamp, fused[j].Post.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return fused[i].Post.ID < fused[j].Post.ID
	})

	if len(fused) > limit {
		fused = applyDiversity(fused, limit)
	}

	return Result{Results: fused, Partial: failures > 0}, nil
}

// fuse computes score(id) = w_d·n(dense) + w_s·n(sparse) + w_m·n(mm) + w_c·credibility(id)
// with reciprocal-rank normalization n(rank) = 1/(k+rank), missing ranks contributing 0.
func fuse(dense, sparse, mm []vectorstore.ScoredPoint, w Weights) []Scored {
	denseRank := rankOf(dense)
	sparseRank := rankOf(sparse)
	mmRank := rankOf(mm)

	merged := make(map[string]vectorstore.ScoredPoint)
	for _, p := range dense {
		merged[p.ID] = p
	}
	for _, p := range sparse {
		if _, ok := merged[p.ID]; !ok {
			merged[p.ID] = p
		}
	}
	for _, p := range mm {
		if _, ok := merged[p.ID]; !ok {
			merged[p.ID] = p
		}
	}

	k := w.RRFK
	if k <= 0 {
		k = 60
	}

	out := make([]Scored, 0, len(merged))
	for id, p := range merged {
		post := postFromPayload(id, p.Payload)
		nd := rrfNorm(denseRank, id, k)
		ns := rrfNorm(sparseRank, id, k)
		nm := rrfNorm(mmRank, id, k)
		score := w.Dense*nd + w.Sparse*ns + w.Multimodal*nm + w.Credibility*post.CredibilityScore
		out = append(out, Scored{
			Post: post, FusedScore: score,
			DenseScore: nd, SparseScore: ns, MultimodalScore: nm,
		})
	}
	return out
}

func rankOf(points []vectorstore.ScoredPoint) map[string]int {
	m := make(map[string]int, len(points))
	for i, p := range points {
		m[p.ID] = i + 1 // 1-indexed rank
	}
	return m
}

func rrfNorm(ranks map[string]int, id string, k int) float64 {
	rank, ok := ranks[id]
	if !ok {
		return 0
	}
	return 1.0 / float64(k+rank)
}

// applyDiversity implements spec.md §4.3 step 8: greedily reject a candidate
// if adding it would push any single author above 30% or any single domain
// above 40% of the output, unless no replacement scoring ≥0.85·best_remaining
// exists.
func applyDiversity(candidates []Scored, limit int) []Scored {
	authorCount := make(map[string]int)
	domainCount := make(map[string]int)
	var out []Scored
	var skipped []Scored

	bestRemaining := func(from []Scored) float64 {
		if len(from) == 0 {
			return 0
		}
		return from[0].FusedScore
	}

	for i := 0; i < len(candidates) && len(out) < limit; i++ {
		c := candidates[i]
		author := c.Post.Author
		domain := c.Post.SourceDomain()

		wouldExceedAuthor := float64(authorCount[author]+1)/float64(limit) > 0.30
		wouldExceedDomain := float64(domainCount[domain]+1)/float64(limit) > 0.40

		if wouldExceedAuthor || wouldExceedDomain {
			remaining := candidates[i+1:]
			threshold := 0.85 * bestRemaining(remaining)
			hasReplacement := false
			for _, r := range remaining {
				if r.FusedScore >= threshold && r.Post.Author != author && r.Post.SourceDomain() != domain {
					hasReplacement = true
					break
				}
			}
			if hasReplacement {
				skipped = append(skipped, c)
				continue
			}
		}

		authorCount[author]++
		domainCount[domain]++
		out = append(out, c)
	}

	// Backfill from skipped candidates if diversity rejection left us short.
	for _, c := range skipped {
		if len(out) >= limit {
			break
		}
		out = append(out, c)
	}

	return out
}

func buildFilter(plan model.QueryPlan) vectorstore.Filter {
	var conds []vectorstore.Condition
	conds = append(conds, vectorstore.Condition{
		Field: "credibility_score", Op: vectorstore.OpGTE, Value: plan.MinCredibility,
	})
	if len(plan.Locations) > 0 {
		conds = append(conds, vectorstore.Condition{
			Field: "location", Op: vectorstore.OpIn, Value: plan.Locations,
		})
	}
	if plan.TimeRangeStart != nil {
		conds = append(conds, vectorstore.Condition{
			Field: "timestamp", Op: vectorstore.OpGTE, Value: float64(plan.TimeRangeStart.Unix()),
		})
	}
	if plan.TimeRangeEnd != nil {
		conds = append(conds, vectorstore.Condition{
			Field: "timestamp", Op: vectorstore.OpLTE, Value: float64(plan.TimeRangeEnd.Unix()),
		})
	}
	return vectorstore.Filter{Conditions: conds}
}

func postFromPayload(id string, payload map[string]any) model.Post {
	p := model.Post{ID: id}
	if v, ok := payload["text"].(string); ok {
		p.Text = v
	}
	if v, ok := payload["author"].(string); ok {
		p.Author = v
	}
	if v, ok := payload["credibility_score"].(float64); ok {
		p.CredibilityScore = v
	}
	if v, ok := payload["location"].(string); ok {
		p.Location = v
	}
	if v, ok := payload["is_verified"].(bool); ok {
		p.IsVerified = v
	}
	if v, ok := payload["timestamp"].(float64); ok {
		p.Timestamp = time.Unix(int64(v), 0).UTC()
	}
	return p
}

// Vocabulary maintains incremental term-frequency/IDF statistics used to
// build BM25 sparse query vectors, per spec.md §3 ("IDF statistics are
// maintained incrementally as documents are upserted... read-only at query
// time").
type Vocabulary struct {
	termIndex map[string]uint32
	idf       map[string]float32
	docCount  int
}

// NewVocabulary constructs an empty vocabulary; ingestion (out of scope)
// populates it via Observe.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{termIndex: make(map[string]uint32), idf: make(map[string]float32)}
}

// Observe folds one document's tokens into the running IDF statistics.
func (v *Vocabulary) Observe(text string) {
	v.docCount++
	seen := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if _, ok := v.termIndex[tok]; !ok {
			v.termIndex[tok] = uint32(len(v.termIndex))
		}
		v.idf[tok]++
	}
}

// Encode builds a BM25-weighted sparse vector from a query string.
func (v *Vocabulary) Encode(text string) vectorstore.SparseVector {
	tokens := Tokenize(text)
	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}

	var sv vectorstore.SparseVector
	for tok, count := range tf {
		idx, ok := v.termIndex[tok]
		if !ok {
			continue // unseen term: no posting contributes
		}
		docFreq := v.idf[tok]
		if docFreq == 0 {
			docFreq = 1
		}
		idfWeight := float32(1.0)
		if v.docCount > 0 {
			idfWeight = float32(v.docCount) / docFreq
		}
		sv.Indices = append(sv.Indices, idx)
		sv.Values = append(sv.Values, float32(count)*idfWeight)
	}
	return sv
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "and": true, "or": true, "it": true, "this": true, "that": true,
	"with": true, "as": true, "by": true, "be": true, "has": true, "have": true,
}

// Tokenize lowercases, splits on Unicode word boundaries, and removes
// stopwords, per spec.md §4.3 step 2.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := strings.ToLower(cur.String())
		if !stopwords[tok] {
			tokens = append(tokens, tok)
		}
		cur.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
