package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/middleware"
	"github.com/chronofact/chronofact/internal/model"
	"github.com/chronofact/chronofact/internal/pipeline"
)

const (
	defaultTimelineLimit = 10
	maxTimelineLimit     = 50
	defaultMinCredibility = 0.3
)

// timelineRequest is the /api/timeline request body (spec.md §6).
type timelineRequest struct {
	Topic             string  `json:"topic"`
	Limit             int     `json:"limit"`
	Location          string  `json:"location,omitempty"`
	MinCredibility    *float64 `json:"min_credibility,omitempty"`
	IncludeMediaOnly  bool    `json:"include_media_only,omitempty"`
	ImageBase64       string  `json:"image_base64,omitempty"`
	SessionID         string  `json:"session_id,omitempty"`
	PreviousQuestions []string `json:"previous_questions,omitempty"`
}

// timelineResponse is the /api/timeline success body: the synthesized
// Timeline plus the summary fields and the two independently-failing
// analyses, per spec.md §6.
type timelineResponse struct {
	Topic          string                    `json:"topic"`
	Events         []model.Event             `json:"events"`
	Predictions    []string                  `json:"predictions,omitempty"`
	TotalSources   int                       `json:"total_sources"`
	AvgCredibility float64                   `json:"avg_credibility"`
	Misinformation *model.MisinfoAnalysis    `json:"misinformation"`
	FollowUps      []model.FollowUpQuestion  `json:"follow_ups"`
}

// Timeline handles POST /api/timeline. imageMaxBytes bounds the decoded
// image payload; requests above this limit fail before ever reaching C5.
// metrics is optional — nil disables the misinformation-risk counter.
type Timeline struct {
	pipeline      *pipeline.Pipeline
	imageMaxBytes int64
	metrics       *middleware.Metrics
}

// NewTimeline constructs the /api/timeline handler.
func NewTimeline(p *pipeline.Pipeline, imageMaxBytes int64, metrics *middleware.Metrics) http.HandlerFunc {
	h := &Timeline{pipeline: p, imageMaxBytes: imageMaxBytes, metrics: metrics}
	return h.serveHTTP
}

func (h *Timeline) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "malformed JSON body"))
		return
	}

	if req.Topic == "" && req.ImageBase64 == "" {
		respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "topic or image_base64 is required"))
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultTimelineLimit
	}
	if req.Limit > maxTimelineLimit {
		respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "limit must be between 1 and 50"))
		return
	}
	minCredibility := defaultMinCredibility
	if req.MinCredibility != nil {
		if *req.MinCredibility < 0 || *req.MinCredibility > 1 {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "min_credibility must be between 0.0 and 1.0"))
			return
		}
		minCredibility = *req.MinCredibility
	}

	var image []byte
	var imageMimeType string
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			respondError(w, chronoerr.New(chronoerr.KindInvalidRequest, "image_base64 is not valid base64"))
			return
		}
		if h.imageMaxBytes > 0 && int64(len(decoded)) > h.imageMaxBytes {
			respondError(w, chronoerr.New(chronoerr.KindPayloadTooLarge, "image exceeds the configured size limit"))
			return
		}
		image = decoded
		imageMimeType = http.DetectContentType(decoded)
	}

	pReq := pipeline.Request{
		SessionID:        req.SessionID,
		RawQuery:         req.Topic,
		Limit:            req.Limit,
		Location:         req.Location,
		MinCredibility:   minCredibility,
		IncludeMediaOnly: req.IncludeMediaOnly,
		Image:            image,
		ImageMimeType:    imageMimeType,
		PriorQuestions:   req.PreviousQuestions,
	}

	resp, err := h.pipeline.Process(r.Context(), pReq)
	if err != nil {
		respondError(w, err)
		return
	}

	if h.metrics != nil && resp.Misinformation != nil && resp.Misinformation.RiskLevel == model.RiskHigh {
		h.metrics.IncrementMisinfoHighRisk()
	}

	out := timelineResponse{
		Topic:          resp.Timeline.Topic,
		Events:         resp.Timeline.Events,
		Predictions:    resp.Timeline.Predictions,
		TotalSources:   resp.TotalSources,
		AvgCredibility: resp.AvgCredibility,
		Misinformation: resp.Misinformation,
		FollowUps:      resp.FollowUps,
	}
	if out.Events == nil {
		out.Events = []model.Event{}
	}
	if out.FollowUps == nil {
		out.FollowUps = []model.FollowUpQuestion{}
	}

	respondJSON(w, http.StatusOK, out)
}
