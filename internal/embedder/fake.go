package embedder

import (
	"context"
	"hash/fnv"
)

// Fake is a deterministic, hash-based embedder for tests — no network calls,
// same text always produces the same vector, matching the teacher's
// practice of fake-implementing narrow interfaces rather than mocking.
type Fake struct {
	Dim int
}

// NewFake creates a Fake embedder with the given vector dimension.
func NewFake(dim int) *Fake {
	return &Fake{Dim: dim}
}

func (f *Fake) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, f.Dim)
	}
	return out, nil
}

func (f *Fake) EmbedMultimodal(ctx context.Context, in MultimodalInput, fusion Fusion) ([]float32, error) {
	seed := in.Text
	if len(in.Image) > 0 {
		seed += string(in.Image[:min(len(in.Image), 32)])
	}
	return deterministicVector(seed, f.Dim), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// deterministicVector derives a pseudo-embedding from the FNV hash of the
// whole seed, so identical seeds give identical vectors; seeds that only
// share a prefix get unrelated vectors.
func deterministicVector(seed string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	state := h.Sum64()

	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		state = state*6364136223846793005 + 1442695040888963407
		out[i] = float32(int64(state)%1000) / 1000.0
	}
	return out
}
