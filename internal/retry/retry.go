// Package retry implements the 429/RESOURCE_EXHAUSTED backoff policy shared
// by the embedding and generation adapters, grounded on the teacher's
// gcpclient retry helper: three retries, 500ms→1000ms→2000ms backoff,
// capped at a 4s ceiling per attempt.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var delays = []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond}

const ceiling = 4 * time.Second

// Retryable reports whether err looks like a transient rate-limit or
// availability failure from the upstream provider.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "UNAVAILABLE")
}

// Do executes fn up to len(delays)+1 times, retrying on transient errors
// with exponential backoff. ctx cancellation aborts the wait immediately.
func Do[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !Retryable(err) {
		return result, err
	}

	for i, delay := range delays {
		if delay > ceiling {
			delay = ceiling
		}

		slog.Warn("upstream rate limited, retrying",
			"operation", operation,
			"attempt", i+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("upstream retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !Retryable(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("upstream retries exhausted", "operation", operation, "attempts", len(delays)+1)
	return zero, fmt.Errorf("%s: retries exhausted: %w", operation, err)
}
