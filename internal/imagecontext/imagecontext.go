// Package imagecontext implements C5: a short natural-language description
// of visually relevant context extracted from an image, via the multimodal
// path of the structured generator (internal/generator).
package imagecontext

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/generator"
)

// MaxImageBytes is the 8 MiB size limit from spec.md §4.5.
const MaxImageBytes = 8 * 1024 * 1024

const systemPrompt = `You analyze an image to extract visually relevant context for a
fact-grounded timeline search. Describe only what is visibly evident —
do not speculate about events, causes, or identities not visible in the
frame.

Respond with a single JSON object matching exactly this shape:
{
  "visual_context": string,  // a short natural-language description, e.g. "flood waters, damaged roads, rescue boats"
  "entities": string[]       // visible entities: objects, landmarks, visible text, empty array if none
}

Do not include any text outside the JSON object. Do not wrap it in markdown fences.`

type analysisJSON struct {
	VisualContext string   `json:"visual_context"`
	Entities      []string `json:"entities"`
}

// Result is the output of Analyze.
type Result struct {
	VisualContext string
	Entities      []string
}

// Analyzer implements C5 atop the structured generator's multimodal path.
type Analyzer struct {
	gen *generator.Generator
}

// New constructs an Analyzer over the given Generator (whose underlying
// client must implement generator.ImageClient).
func New(gen *generator.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze returns a short description of visually relevant context for the
// given topic and image. Size limit 8 MiB, per spec.md §4.5.
func (a *Analyzer) Analyze(ctx context.Context, topic string, image []byte, mimeType string) (Result, error) {
	if len(image) > MaxImageBytes {
		return Result{}, chronoerr.New(chronoerr.KindPayloadTooLarge, fmt.Sprintf("image size %d exceeds %d byte limit", len(image), MaxImageBytes))
	}
	if len(image) == 0 {
		return Result{}, chronoerr.New(chronoerr.KindInvalidRequest, "image is empty")
	}

	userPrompt := "Topic: " + topic

	parsed, err := generator.GenerateImage(ctx, a.gen, systemPrompt, userPrompt, image, mimeType, validateAnalysis)
	if err != nil {
		return Result{}, err
	}

	return Result{VisualContext: parsed.VisualContext, Entities: parsed.Entities}, nil
}

func validateAnalysis(v analysisJSON) error {
	if strings.TrimSpace(v.VisualContext) == "" {
		return errEmptyVisualContext
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

const errEmptyVisualContext = validationError("visual_context must be non-empty")

// RefinedQuery concatenates the image's visual context into a raw query
// before embedding, per spec.md §4.5.
func (r Result) RefinedQuery(rawQuery string) string {
	if r.VisualContext == "" {
		return rawQuery
	}
	return rawQuery + " " + r.VisualContext
}
