// Package sweep drives C7's periodic decay/consolidation pass. Grounded on
// the teacher's internal/cache/embedding.go cleanup() ticker goroutine for
// the local-fallback path, and wired to Cloud Pub/Sub (present in the
// teacher's go.mod but never imported by any backend package) as the
// preferred trigger when a subscription is configured, since a fleet of
// Chronofact replicas sweeping independently on their own tickers would
// duplicate decay/consolidation work across the shared vector store.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// Engine is the subset of C7 a sweep triggers.
type Engine interface {
	ApplyGlobalDecay(ctx context.Context) error
	ConsolidateSimilar(ctx context.Context, threshold float64) error
}

// Scheduler runs Engine's sweep on a trigger: either Pub/Sub messages on a
// configured subscription, or a local ticker when Pub/Sub isn't configured
// (single-replica / local-dev deployments).
type Scheduler struct {
	engine               Engine
	consolidateThreshold float64
	interval             time.Duration

	sub *pubsub.Subscription

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config configures a Scheduler. ProjectID and Subscription select the
// Pub/Sub path; leaving either empty falls back to the local ticker at
// Interval.
type Config struct {
	ConsolidateThreshold float64
	Interval             time.Duration
	ProjectID            string
	Subscription         string
}

// New constructs a Scheduler. If cfg.ProjectID and cfg.Subscription are both
// set, it dials Pub/Sub; otherwise it runs the local-ticker fallback only.
func New(ctx context.Context, engine Engine, cfg Config) (*Scheduler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	s := &Scheduler{
		engine:               engine,
		consolidateThreshold: cfg.ConsolidateThreshold,
		interval:             interval,
		stopCh:               make(chan struct{}),
		doneCh:               make(chan struct{}),
	}

	if cfg.ProjectID != "" && cfg.Subscription != "" {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		s.sub = client.Subscription(cfg.Subscription)
	}

	return s, nil
}

// Run blocks until ctx is cancelled or Stop is called, running one sweep per
// trigger (Pub/Sub message, or local ticker tick).
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	if s.sub != nil {
		s.runPubSub(ctx)
		return
	}
	s.runTicker(ctx)
}

func (s *Scheduler) runPubSub(ctx context.Context) {
	for {
		err := s.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			s.sweep(msgCtx)
			msg.Ack()
		})
		if err != nil {
			slog.Error("sweep pubsub receive ended, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (s *Scheduler) runTicker(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()
	if err := s.engine.ApplyGlobalDecay(ctx); err != nil {
		slog.Error("sweep decay pass failed", "error", err)
		return
	}
	if err := s.engine.ConsolidateSimilar(ctx, s.consolidateThreshold); err != nil {
		slog.Error("sweep consolidation pass failed", "error", err)
		return
	}
	slog.Info("sweep completed", "elapsed_ms", time.Since(start).Milliseconds())
}

// Stop halts the scheduler loop. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
