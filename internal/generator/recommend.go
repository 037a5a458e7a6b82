package generator

import (
	"context"
	"fmt"

	"github.com/chronofact/chronofact/internal/model"
)

const generateRecommendationsSystemPrompt = `You are a topic recommendation assistant for a timeline construction
service. Given a free-text query, suggest related topics and angles a
reader interested in that query would want to explore next — distinct
from follow-up questions about a specific already-generated timeline,
these are standalone topic recommendations for someone just starting to
research the query.

Respond with a single JSON object matching exactly this shape:
{
  "questions": [
    {
      "question": string,      // a recommended topic or angle, phrased as a short question
      "category": "deep_dive" | "related_topic" | "verification" | "prediction" | "comparison",
      "priority": number       // 1..5, 5 is most relevant
    }
  ]
}

Do not include any text outside the JSON object. Do not wrap it in markdown
fences.`

// GenerateRecommendations backs /api/recommend: a distinct call path from
// GenerateFollowUpQuestions (per spec.md §9's open question, resolved to
// keep the two endpoints distinct rather than unify them), sharing the same
// FollowUpQuestion output shape and generate() retry loop but driven by a
// recommendation-flavored prompt with no timeline or prior-question context.
func (g *Generator) GenerateRecommendations(ctx context.Context, query string, limit int) ([]model.FollowUpQuestion, error) {
	userPrompt := fmt.Sprintf("Query: %s\nRecommend up to %d related topics.", query, limit)

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

	parsed, err := generate(ctx, g, generateRecommendationsSystemPrompt, userPrompt, validate)
	if err != nil {
		return nil, err
	}

	out := make([]model.FollowUpQuestion, 0, len(parsed.Questions))
	seen := make(map[string]bool, len(parsed.Questions))
	for _, q := range parsed.Questions {
		if len(out) >= limit {
			break
		}
		key := normalizeQuestion(q.Question)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.FollowUpQuestion{
			Question: q.Question,
			Category: validFollowUpCategories[q.Category],
			Priority: q.Priority,
		})
	}
	return out, nil
}
