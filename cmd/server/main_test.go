package main

import (
	"context"
	"testing"

	"github.com/chronofact/chronofact/internal/config"
	"github.com/chronofact/chronofact/internal/vectorstore"
)

func TestBuildVectorStore_MemoryMode(t *testing.T) {
	store, err := buildVectorStore(&config.Config{VectorStoreMode: "memory"})
	if err != nil {
		t.Fatalf("buildVectorStore: %v", err)
	}
	if _, ok := store.(*vectorstore.MemoryStore); !ok {
		t.Errorf("expected *vectorstore.MemoryStore, got %T", store)
	}
}

func TestBuildVectorStore_UnknownMode(t *testing.T) {
	if _, err := buildVectorStore(&config.Config{VectorStoreMode: "bogus"}); err == nil {
		t.Error("expected an error for an unknown vector_store.mode")
	}
}

func TestEnsureCollections_SucceedsAndIsIdempotent(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	cfg := &config.Config{EmbeddingDimText: 8, EmbeddingDimImage: 8}

	if err := ensureCollections(context.Background(), store, cfg); err != nil {
		t.Fatalf("ensureCollections: %v", err)
	}
	// Re-running must be idempotent (EnsureCollection no-ops if present).
	if err := ensureCollections(context.Background(), store, cfg); err != nil {
		t.Fatalf("ensureCollections (second call): %v", err)
	}
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
}
