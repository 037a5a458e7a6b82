package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronofact/chronofact/internal/model"
)

const assessCredibilitySystemPrompt = `You are a source-credibility assessment assistant. Given a passage of
text and optional metadata about its author and engagement, score how
credible the passage is as a standalone claim, independent of any other
context: look for hedged vs. assertive phrasing, internal consistency,
specificity (named entities, dates, numbers) vs. vagueness, and
anonymous-source or unverifiable-claim patterns.

Respond with a single JSON object matching exactly this shape:
{
  "score": number,              // 0.0 (not credible) to 1.0 (highly credible)
  "risk_level": "low" | "medium" | "high",
  "signals": string[],          // short factors that drove the score, empty array if none
  "suggestion": string          // one sentence of guidance for the reader
}

Do not include any text outside the JSON object. Do not wrap it in markdown fences.`

type credibilityJSON struct {
	Score      float64  `json:"score"`
	RiskLevel  string   `json:"risk_level"`
	Signals    []string `json:"signals"`
	Suggestion string   `json:"suggestion"`
}

// AssessCredibility scores a standalone passage of text for source
// credibility, backing /api/verify. Unlike DetectMisinformation (which
// flags manipulative patterns), this produces a continuous score intended
// for display alongside a risk bucket — the same generate() primitive and
// retry-with-validator-feedback loop as the four named C4 functions, with
// its own schema, since spec.md's external-interface table names
// CredibilityAssessment as a distinct output shape.
func (g *Generator) AssessCredibility(ctx context.Context, text, author string, engagement int) (model.CredibilityAssessment, error) {
	var sb strings.Builder
	sb.WriteString("Text to assess:\n")
	sb.WriteString(text)
	if author != "" {
		sb.WriteString(fmt.Sprintf("\n\nAuthor: %s", author))
	}
	if engagement > 0 {
		sb.WriteString(fmt.Sprintf("\nEngagement (likes/shares/views): %d", engagement))
	}

	validate := func(v credibilityJSON) error {
		if _, ok := validRiskLevels[v.RiskLevel]; !ok {
			return errInvalidRiskLevel
		}
		if v.Score < 0 || v.Score > 1 {
			return errCredibilityScoreOutOfRange
		}
		return nil
	}

	parsed, err := generate(ctx, g, assessCredibilitySystemPrompt, sb.String(), validate)
	if err != nil {
		return model.CredibilityAssessment{}, err
	}

	return model.CredibilityAssessment{
		Score:      parsed.Score,
		RiskLevel:  validRiskLevels[parsed.RiskLevel],
		Signals:    parsed.Signals,
		Suggestion: parsed.Suggestion,
	}, nil
}

const errCredibilityScoreOutOfRange = misinfoValidationError(`score must be between 0.0 and 1.0`)
