package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chronofact/chronofact/internal/model"
)

const generateTimelineSystemPrompt = `You are a fact-grounded timeline construction assistant. You are given a
topic and a set of retrieved source posts. Construct a chronological
timeline of events using ONLY information present in the provided context.
Do not invent events, dates, or sources not present in the context. If the
context is insufficient for a detail, omit it rather than guessing.

Respond with a single JSON object matching exactly this shape:
{
  "topic": string,
  "events": [
    {
      "timestamp": string,      // RFC3339
      "summary": string,
      "sources": string[],      // post_id values, must come from the provided context
      "location": string,       // optional, empty string if unknown
      "credibility_score": number // 0..1, your confidence; will be recomputed from sources
    }
  ],
  "predictions": string[]       // optional forward-looking statements, empty array if none
}

Do not include any text outside the JSON object. Do not wrap it in markdown fences.`

type timelineJSON struct {
	Topic       string        `json:"topic"`
	Events      []eventJSON   `json:"events"`
	Predictions []string      `json:"predictions"`
}

type eventJSON struct {
	Timestamp        string   `json:"timestamp"`
	Summary          string   `json:"summary"`
	Sources          []string `json:"sources"`
	Location         string   `json:"location"`
	CredibilityScore float64  `json:"credibility_score"`
}

// GenerateTimeline synthesizes a topic timeline from retrieved context
// posts, per spec.md §4.4 item 2. The hard constraints (chronological sort,
// source-in-context, credibility-mean, n/|events| bounds) are enforced here
// in Go after the LLM call returns — never delegated to the model.
func (g *Generator) GenerateTimeline(ctx context.Context, query string, contextPosts []model.Post, n int) (model.Timeline, error) {
	byID := make(map[string]model.Post, len(contextPosts))
	var contextBlock strings.Builder
	for _, p := range contextPosts {
		byID[p.ID] = p
		fmt.Fprintf(&contextBlock, "- post_id=%s author=%s timestamp=%s credibility=%.2f: %s\n",
			p.ID, p.Author, p.Timestamp.Format(time.RFC3339), p.CredibilityScore, p.Text)
	}

	userPrompt := fmt.Sprintf(
		"Topic/query: %s\nRequested minimum number of events: %d\n\nContext (use ONLY these sources):\n%s",
		query, n, contextBlock.String(),
	)

	validate := func(v timelineJSON) error {
		if len(v.Events) == 0 && len(contextPosts) > 0 {
			return errNoEventsFromNonEmptyContext
		}
		for _, e := range v.Events {
			for _, src := range e.Sources {
				if _, ok := byID[src]; !ok {
					return fmt.Errorf("event %q cites unknown source %q", e.Summary, src)
				}
			}
		}
		return nil
	}

	parsed, err := generate(ctx, g, generateTimelineSystemPrompt, userPrompt, validate)
	if err != nil {
		return model.Timeline{}, err
	}

	events := make([]model.Event, 0, len(parsed.Events))
	for _, e := range parsed.Events {
		ts, perr := time.Parse(time.RFC3339, e.Timestamp)
		if perr != nil {
			continue // drop unparseable events rather than failing the whole timeline
		}

		var validSources []string
		var credSum float64
		var credCount int
		for _, src := range e.Sources {
			if post, ok := byID[src]; ok {
				validSources = append(validSources, src)
				credSum += post.CredibilityScore
				credCount++
			}
		}
		if len(validSources) == 0 {
			continue // reject: no grounded source (hallucinated-source prevention)
		}

		credibility := credSum / float64(credCount)
		if credibility < 0 {
			credibility = 0
		}
		if credibility > 1 {
			credibility = 1
		}

		events = append(events, model.Event{
			Timestamp:        ts,
			Summary:          e.Summary,
			Sources:          validSources,
			Location:         e.Location,
			CredibilityScore: credibility,
		})
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	// n/|events| bounds: n ≤ |events| ≤ max(n, |context_posts|). We cannot
	// manufacture events the model didn't produce; on shortfall we return
	// what is valid rather than failing, per spec.md §4.4.
	maxEvents := n
	if len(contextPosts) > maxEvents {
		maxEvents = len(contextPosts)
	}
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}

	return model.Timeline{
		Topic:       parsed.Topic,
		Events:      events,
		Predictions: parsed.Predictions,
	}, nil
}

type timelineValidationError string

func (e timelineValidationError) Error() string { return string(e) }

const errNoEventsFromNonEmptyContext = timelineValidationError("no events produced despite non-empty context")
