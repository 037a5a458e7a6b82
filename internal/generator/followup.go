package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronofact/chronofact/internal/model"
)

const generateFollowUpSystemPrompt = `You are a follow-up question generation assistant for a timeline
construction service. Given the original query and a summary of the
synthesized timeline, propose follow-up questions a curious reader would
ask next.

Respond with a single JSON object matching exactly this shape:
{
  "questions": [
    {
      "question": string,
      "category": "deep_dive" | "related_topic" | "verification" | "prediction" | "comparison",
      "priority": number  // 1..5, 5 is most relevant
    }
  ]
}

Do not repeat any question already asked (listed below, if any). Do not
include any text outside the JSON object. Do not wrap it in markdown
fences.`

type followUpResponseJSON struct {
	Questions []followUpJSON `json:"questions"`
}

type followUpJSON struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

var validFollowUpCategories = map[string]model.FollowUpCategory{
	"deep_dive":      model.CategoryDeepDive,
	"related_topic":  model.CategoryRelatedTopic,
	"verification":   model.CategoryVerification,
	"prediction":     model.CategoryPrediction,
	"comparison":     model.CategoryComparison,
}

// GenerateFollowUpQuestions proposes follow-up questions for a synthesized
// timeline, per spec.md §4.4 item 4. Must not repeat any prior question
// (case-insensitive, trimmed) — enforced here rather than trusted from the
// model.
func (g *Generator) GenerateFollowUpQuestions(ctx context.Context, originalQuery, timelineSummary string, priorQuestions []string) ([]model.FollowUpQuestion, error) {
	seen := make(map[string]bool, len(priorQuestions))
	for _, q := range priorQuestions {
		seen[normalizeQuestion(q)] = true
	}

	var priorBlock strings.Builder
	if len(priorQuestions) > 0 {
		priorBlock.WriteString("Questions already asked (do not repeat):\n")
		for _, q := range priorQuestions {
			fmt.Fprintf(&priorBlock, "- %s\n", q)
		}
	}

	userPrompt := fmt.Sprintf("Original query: %s\nTimeline summary: %s\n\n%s", originalQuery, timelineSummary, priorBlock.String())

	validate := func(v followUpResponseJSON) error {
		for _, q := range v.Questions {
			if _, ok := validFollowUpCategories[q.Category]; !ok {
				return fmt.Errorf("invalid category %q", q.Category)
			}
			if q.Priority < 1 || q.Priority > 5 {
				return fmt.Errorf("priority %d out of range [1,5]", q.Priority)
			}
		}
		return nil
	}

	parsed, err := generate(ctx, g, generateFollowUpSystemPrompt, userPrompt, validate)
	if err != nil {
		return nil, err
	}

	out := make([]model.FollowUpQuestion, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		if seen[normalizeQuestion(q.Question)] {
			continue
		}
		seen[normalizeQuestion(q.Question)] = true
		out = append(out, model.FollowUpQuestion{
			Question: q.Question,
			Category: validFollowUpCategories[q.Category],
			Priority: q.Priority,
		})
	}
	return out, nil
}

func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
