// Package generator implements C4: a single schema-first generate()
// primitive with a retry-with-validator-feedback loop, and the four named
// functions built atop it. Grounded on the teacher's GeneratorService
// (GenAIClient.GenerateContent + JSON parse/validate in generator.go) and
// SelfRAGService.Reflect (selfrag.go) — whose iterative critique/regenerate
// shape is repurposed here as the schema-violation retry loop the spec
// requires, rather than as a post-hoc quality pass.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chronofact/chronofact/internal/chronoerr"
)

const maxRetries = 2

// Generator is the schema-first generation capability.
type Generator struct {
	client Client
}

// New constructs a Generator over the given Client.
func New(client Client) *Generator {
	return &Generator{client: client}
}

// validatorFunc checks a parsed value against hard, non-LLM constraints
// (groundedness, bounds, uniqueness...). A non-nil error becomes validator
// feedback appended to the retry prompt.
type validatorFunc[T any] func(T) error

// generate runs the schema-first generate(schema, prompt, variables)
// capability from spec.md §4.4: parse the model's JSON response into T,
// run validate, and on failure retry up to maxRetries times with the
// validator's error appended to the prompt.
func generate[T any](ctx context.Context, g *Generator, systemPrompt, userPrompt string, validate validatorFunc[T]) (T, error) {
	var zero T
	prompt := userPrompt
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, chronoerr.Wrap(chronoerr.KindDeadlineExceeded, "generate: deadline exceeded", ctx.Err())
		default:
		}

		raw, err := g.client.GenerateContent(ctx, systemPrompt, prompt)
		if err != nil {
			lastErr = err
			prompt = userPrompt + "\n\nYour previous attempt failed: " + err.Error() + "\nPlease retry."
			continue
		}

		value, perr := parseJSON[T](raw)
		if perr != nil {
			lastErr = perr
			prompt = userPrompt + "\n\nYour previous response was not valid JSON: " + perr.Error() + "\nRespond with valid JSON only, no markdown fences."
			continue
		}

		if validate != nil {
			if verr := validate(value); verr != nil {
				lastErr = verr
				prompt = userPrompt + "\n\nYour previous response violated a constraint: " + verr.Error() + "\nPlease correct it and respond again with the full JSON object."
				continue
			}
		}

		return value, nil
	}

	if ctx.Err() != nil {
		return zero, chronoerr.Wrap(chronoerr.KindDeadlineExceeded, "generate: deadline exceeded", ctx.Err())
	}
	return zero, chronoerr.Wrap(chronoerr.KindSchemaViolation, "generate: exhausted retries", lastErr)
}

// GenerateImage is generate's multimodal sibling for C5: the same
// schema-first retry-with-validator-feedback loop, but the first call (and
// every retry) carries the image bytes alongside the prompt. Requires the
// underlying client to additionally implement ImageClient. Exported so
// internal/imagecontext, which owns its own response schema, can drive the
// same retry primitive C4 uses.
func GenerateImage[T any](ctx context.Context, g *Generator, systemPrompt, userPrompt string, image []byte, mimeType string, validate validatorFunc[T]) (T, error) {
	var zero T
	imgClient, ok := g.client.(ImageClient)
	if !ok {
		return zero, chronoerr.New(chronoerr.KindInternal, "generator: configured client does not support image input")
	}

	prompt := userPrompt
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, chronoerr.Wrap(chronoerr.KindDeadlineExceeded, "generateImage: deadline exceeded", ctx.Err())
		default:
		}

		raw, err := imgClient.GenerateWithImage(ctx, systemPrompt, prompt, image, mimeType)
		if err != nil {
			lastErr = err
			prompt = userPrompt + "\n\nYour previous attempt failed: " + err.Error() + "\nPlease retry."
			continue
		}

		value, perr := parseJSON[T](raw)
		if perr != nil {
			lastErr = perr
			prompt = userPrompt + "\n\nYour previous response was not valid JSON: " + perr.Error() + "\nRespond with valid JSON only, no markdown fences."
			continue
		}

		if validate != nil {
			if verr := validate(value); verr != nil {
				lastErr = verr
				prompt = userPrompt + "\n\nYour previous response violated a constraint: " + verr.Error() + "\nPlease correct it and respond again with the full JSON object."
				continue
			}
		}

		return value, nil
	}

	if ctx.Err() != nil {
		return zero, chronoerr.Wrap(chronoerr.KindDeadlineExceeded, "generateImage: deadline exceeded", ctx.Err())
	}
	return zero, chronoerr.Wrap(chronoerr.KindSchemaViolation, "generateImage: exhausted retries", lastErr)
}

// parseJSON strips markdown code fences (teacher's generator.go convention)
// and decodes into T.
func parseJSON[T any](raw string) (T, error) {
	var zero T
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	var value T
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return value, nil
}
