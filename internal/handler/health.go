package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by each of the three collaborators /health checks:
// the embedder, the vector store, and the generator all expose a cheap
// connectivity probe under this shape (embedder.VertexEmbedder.HealthCheck,
// vectorstore.Store.Ping, generator C4's client HealthCheck).
type Pinger interface {
	Ping(ctx context.Context) error
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingerFunc adapts a HealthCheck(ctx) error method value to Pinger.
func PingerFunc(f func(ctx context.Context) error) Pinger { return pingerFunc(f) }

type healthResponse struct {
	Status           string `json:"status"`
	EmbedderReady    bool   `json:"embedder_ready"`
	VectorStoreReady bool   `json:"vector_store_ready"`
	GeneratorReady   bool   `json:"generator_ready"`
}

// Health handles GET /health. Each of the three components is probed with
// its own short deadline so one slow dependency doesn't stall the others;
// the overall status is 503 whenever any component isn't ready.
func Health(embedder, vectorStore, generator Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := healthResponse{
			Status:           "ok",
			EmbedderReady:    probe(ctx, embedder),
			VectorStoreReady: probe(ctx, vectorStore),
			GeneratorReady:   probe(ctx, generator),
		}

		httpStatus := http.StatusOK
		if !resp.EmbedderReady || !resp.VectorStoreReady || !resp.GeneratorReady {
			resp.Status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		respondJSON(w, httpStatus, resp)
	}
}

func probe(ctx context.Context, p Pinger) bool {
	if p == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return p.Ping(ctx) == nil
}
