package generator

import (
	"context"

	"github.com/chronofact/chronofact/internal/model"
)

const detectMisinformationSystemPrompt = `You are a misinformation risk assessment assistant. Given a passage of
text, evaluate it for signals of misinformation: unverifiable claims,
emotionally manipulative framing, fabricated statistics, impersonation, or
contradiction with widely known facts.

Respond with a single JSON object matching exactly this shape:
{
  "is_suspicious": boolean,
  "suspicious_patterns": string[],   // empty array if none found
  "risk_level": "low" | "medium" | "high",
  "recommendation": string
}

Do not include any text outside the JSON object. Do not wrap it in markdown fences.`

type misinfoJSON struct {
	IsSuspicious       bool     `json:"is_suspicious"`
	SuspiciousPatterns []string `json:"suspicious_patterns"`
	RiskLevel          string   `json:"risk_level"`
	Recommendation     string   `json:"recommendation"`
}

var validRiskLevels = map[string]model.RiskLevel{
	"low": model.RiskLow, "medium": model.RiskMedium, "high": model.RiskHigh,
}

// DetectMisinformation assesses a passage of text for misinformation risk
// signals, per spec.md §4.4 item 3.
func (g *Generator) DetectMisinformation(ctx context.Context, text string) (model.MisinfoAnalysis, error) {
	userPrompt := "Text to assess:\n" + text

	validate := func(v misinfoJSON) error {
		if _, ok := validRiskLevels[v.RiskLevel]; !ok {
			return errInvalidRiskLevel
		}
		return nil
	}

	parsed, err := generate(ctx, g, detectMisinformationSystemPrompt, userPrompt, validate)
	if err != nil {
		return model.MisinfoAnalysis{}, err
	}

	return model.MisinfoAnalysis{
		IsSuspicious:       parsed.IsSuspicious,
		SuspiciousPatterns: parsed.SuspiciousPatterns,
		RiskLevel:          validRiskLevels[parsed.RiskLevel],
		Recommendation:     parsed.Recommendation,
	}, nil
}

type misinfoValidationError string

func (e misinfoValidationError) Error() string { return string(e) }

const errInvalidRiskLevel = misinfoValidationError(`risk_level must be one of "low", "medium", "high"`)
