package generator

import (
	"context"
	"time"

	"github.com/chronofact/chronofact/internal/model"
)

const processQuerySystemPrompt = `You are a query interpretation assistant for a fact-grounded timeline
construction service. Given a raw user query, extract a search plan.

Respond with a single JSON object matching exactly this shape:
{
  "refined_text": string,        // a clean, keyword-dense version of the query, suitable for search
  "entities": string[],          // named entities mentioned (people, organizations, events)
  "locations": string[],         // place names mentioned, empty array if none
  "time_range_start": string|null, // RFC3339 timestamp, or null if no explicit time bound
  "time_range_end": string|null
}

Do not include any text outside the JSON object. Do not wrap it in markdown fences.`

type queryPlanJSON struct {
	RefinedText    string   `json:"refined_text"`
	Entities       []string `json:"entities"`
	Locations      []string `json:"locations"`
	TimeRangeStart *string  `json:"time_range_start"`
	TimeRangeEnd   *string  `json:"time_range_end"`
}

// ProcessQuery extracts entities, locations, and time range from a raw query
// and refines the search text, per spec.md §4.4 item 1. No context required.
func (g *Generator) ProcessQuery(ctx context.Context, rawQuery string) (model.QueryPlan, error) {
	userPrompt := "User query: " + rawQuery

	validate := func(v queryPlanJSON) error {
		if v.RefinedText == "" {
			return errEmptyRefinedText
		}
		return nil
	}

	parsed, err := generate(ctx, g, processQuerySystemPrompt, userPrompt, validate)
	if err != nil {
		return model.QueryPlan{}, err
	}

	plan := model.QueryPlan{
		RefinedText: parsed.RefinedText,
		Entities:    parsed.Entities,
		Locations:   parsed.Locations,
	}
	if parsed.TimeRangeStart != nil {
		if t, err := time.Parse(time.RFC3339, *parsed.TimeRangeStart); err == nil {
			plan.TimeRangeStart = &t
		}
	}
	if parsed.TimeRangeEnd != nil {
		if t, err := time.Parse(time.RFC3339, *parsed.TimeRangeEnd); err == nil {
			plan.TimeRangeEnd = &t
		}
	}
	return plan, nil
}

type queryPlanValidationError string

func (e queryPlanValidationError) Error() string { return string(e) }

const errEmptyRefinedText = queryPlanValidationError("refined_text must be non-empty")
