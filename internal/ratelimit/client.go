package ratelimit

import (
	"context"

	"github.com/chronofact/chronofact/internal/generator"
)

// LimitedClient wraps a generator.Client (and, when the underlying client
// supports it, generator.ImageClient) with a token-bucket acquire before
// every outbound call, so C4/C5's retry loops never exceed the shared LLM
// rate regardless of how many requests are in flight concurrently.
type LimitedClient struct {
	inner   generator.Client
	limiter *Limiter
}

// NewLimitedClient constructs a LimitedClient. The result implements only
// generator.Client, even when inner also implements generator.ImageClient;
// Wrap returns a wrapper that keeps the image capability.
func NewLimitedClient(inner generator.Client, limiter *Limiter) *LimitedClient {
	return &LimitedClient{inner: inner, limiter: limiter}
}

func (c *LimitedClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	return c.inner.GenerateContent(ctx, systemPrompt, userPrompt)
}

// limitedImageClient is returned by Wrap when inner implements
// generator.ImageClient, so type assertions against generator.ImageClient
// (used by internal/generator.GenerateImage) still succeed through the
// wrapper.
type limitedImageClient struct {
	*LimitedClient
	imageInner generator.ImageClient
}

func (c *limitedImageClient) GenerateWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	return c.imageInner.GenerateWithImage(ctx, systemPrompt, userPrompt, image, mimeType)
}

// Wrap constructs a rate-limited generator.Client, upgrading it to also
// satisfy generator.ImageClient when inner does.
func Wrap(inner generator.Client, limiter *Limiter) generator.Client {
	lc := NewLimitedClient(inner, limiter)
	if imgInner, ok := inner.(generator.ImageClient); ok {
		return &limitedImageClient{LimitedClient: lc, imageInner: imgInner}
	}
	return lc
}
