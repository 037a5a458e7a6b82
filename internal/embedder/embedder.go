// Package embedder implements C1: dense-vector production for text and
// cross-modal (image) inputs, grounded on the teacher's
// gcpclient.EmbeddingAdapter (Vertex AI REST predict endpoint, asymmetric
// RETRIEVAL_DOCUMENT/RETRIEVAL_QUERY task types).
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"

	"github.com/chronofact/chronofact/internal/chronoerr"
	"github.com/chronofact/chronofact/internal/retry"
)

// Fusion selects how embed_multimodal combines text and image vectors.
type Fusion string

const (
	FusionTextOnly      Fusion = "text_only"
	FusionImageOnly     Fusion = "image_only"
	FusionMean          Fusion = "mean"
	FusionTextWeighted  Fusion = "text_weighted"
	FusionImageWeighted Fusion = "image_weighted"
)

// MultimodalInput is the input to embed_multimodal; at least one of Text or
// Image must be non-empty.
type MultimodalInput struct {
	Text  string
	Image []byte
	Alpha float64 // weight for text_weighted/image_weighted, in [0,1]
}

// TextEmbedder is the narrow interface the rest of Chronofact depends on
// for dense text embedding, so fakes can satisfy it directly in tests —
// the teacher's QueryEmbedder pattern (internal/service/retriever.go).
type TextEmbedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

// MultimodalEmbedder is the narrow interface for cross-modal embedding.
type MultimodalEmbedder interface {
	EmbedMultimodal(ctx context.Context, in MultimodalInput, fusion Fusion) ([]float32, error)
}

// VertexEmbedder implements TextEmbedder and MultimodalEmbedder against the
// Vertex AI embedding REST API.
type VertexEmbedder struct {
	project  string
	location string
	textModel string
	mmModel   string
	client   *http.Client
}

// New creates a VertexEmbedder using Application Default Credentials.
func New(ctx context.Context, project, location, textModel, mmModel string) (*VertexEmbedder, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, chronoerr.Wrap(chronoerr.KindEmbeddingUnavailable, "embedder.New: default credentials", err)
	}
	return &VertexEmbedder{
		project:   project,
		location:  location,
		textModel: textModel,
		mmModel:   mmModel,
		client:    client,
	}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content,omitempty"`
	Text     string `json:"text,omitempty"`
	Image    *imagePart `json:"image,omitempty"`
	TaskType string `json:"task_type,omitempty"`
}

type imagePart struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
		TextEmbedding  []float32 `json:"textEmbedding"`
		ImageEmbedding []float32 `json:"imageEmbedding"`
	} `json:"predictions"`
}

// EmbedTextsForIngestion embeds document-side text with RETRIEVAL_DOCUMENT
// task type, asymmetric to query embedding. Out-of-scope at query time
// (ingestion produces posts/facts already embedded), kept for symmetry with
// the teacher's adapter; nothing in this repository calls it.
func (e *VertexEmbedder) EmbedTextsForIngestion(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedWithTaskType(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedText embeds query-side text with RETRIEVAL_QUERY task type.
// Implements TextEmbedder.
func (e *VertexEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, chronoerr.New(chronoerr.KindInvalidRequest, "embedder.EmbedText: no texts supplied")
	}
	return e.embedWithTaskType(ctx, texts, "RETRIEVAL_QUERY")
}

func (e *VertexEmbedder) embedWithTaskType(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	result, err := retry.Do(ctx, "embedder.EmbedText", func() ([][]float32, error) {
		return e.doEmbedText(ctx, texts, taskType)
	})
	if err != nil {
		return nil, chronoerr.Wrap(chronoerr.KindEmbeddingUnavailable, "embedder.EmbedText", err)
	}
	return result, nil
}

func (e *VertexEmbedder) doEmbedText(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	url := e.endpointURL(e.textModel)
	var resp embeddingResponse
	if err := e.post(ctx, url, embeddingRequest{Instances: instances}, &resp); err != nil {
		return nil, err
	}

	results := make([][]float32, len(resp.Predictions))
	for i, p := range resp.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

// EmbedMultimodal embeds a text/image pair and fuses the result per the
// requested Fusion mode. Implements MultimodalEmbedder.
func (e *VertexEmbedder) EmbedMultimodal(ctx context.Context, in MultimodalInput, fusion Fusion) ([]float32, error) {
	if in.Text == "" && len(in.Image) == 0 {
		return nil, chronoerr.New(chronoerr.KindInvalidRequest, "embedder.EmbedMultimodal: at least one modality required")
	}

	result, err := retry.Do(ctx, "embedder.EmbedMultimodal", func() ([]float32, error) {
		return e.doEmbedMultimodal(ctx, in, fusion)
	})
	if err != nil {
		return nil, chronoerr.Wrap(chronoerr.KindEmbeddingUnavailable, "embedder.EmbedMultimodal", err)
	}
	return result, nil
}

func (e *VertexEmbedder) doEmbedMultimodal(ctx context.Context, in MultimodalInput, fusion Fusion) ([]float32, error) {
	instance := embeddingInstance{}
	if in.Text != "" {
		instance.Text = in.Text
	}
	if len(in.Image) > 0 {
		instance.Image = &imagePart{BytesBase64Encoded: base64Encode(in.Image)}
	}

	url := e.endpointURL(e.mmModel)
	var resp embeddingResponse
	if err := e.post(ctx, url, embeddingRequest{Instances: []embeddingInstance{instance}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("embedder.EmbedMultimodal: empty predictions")
	}

	pred := resp.Predictions[0]
	return fuse(pred.TextEmbedding, pred.ImageEmbedding, fusion, in.Alpha)
}

// fuse combines a text and image embedding per the requested Fusion mode.
// Implements spec.md's fusion set: text_only/image_only/mean/text_weighted(a)/image_weighted(a).
func fuse(text, image []float32, fusion Fusion, alpha float64) ([]float32, error) {
	switch fusion {
	case FusionTextOnly:
		if len(text) == 0 {
			return nil, fmt.Errorf("fuse: text_only requested but no text embedding returned")
		}
		return text, nil
	case FusionImageOnly:
		if len(image) == 0 {
			return nil, fmt.Errorf("fuse: image_only requested but no image embedding returned")
		}
		return image, nil
	case FusionMean:
		return weightedSum(text, image, 0.5), nil
	case FusionTextWeighted:
		return weightedSum(text, image, alpha), nil
	case FusionImageWeighted:
		return weightedSum(text, image, 1-alpha), nil
	default:
		return weightedSum(text, image, 0.5), nil
	}
}

// weightedSum returns w*text + (1-w)*image, falling back to whichever
// vector is present if the other modality produced no embedding.
func weightedSum(text, image []float32, w float64) []float32 {
	if len(text) == 0 {
		return image
	}
	if len(image) == 0 {
		return text
	}
	n := len(text)
	if len(image) < n {
		n = len(image)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(w)*text[i] + float32(1-w)*image[i]
	}
	return out
}

func (e *VertexEmbedder) post(ctx context.Context, url string, body embeddingRequest, out *embeddingResponse) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("embedder: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("embedder: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedder: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedder: status %d: %s", resp.StatusCode, b)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedder: decode: %w", err)
	}
	return nil
}

// endpointURL returns the correct Vertex AI endpoint, using the non-regional
// path for location "global" (teacher's gcpclient.buildEndpointURL pattern).
func (e *VertexEmbedder) endpointURL(model string) string {
	if e.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			e.project, model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		e.location, e.project, e.location, model,
	)
}

// HealthCheck validates the embedding service connection.
func (e *VertexEmbedder) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedText(ctx, []string{"health check"})
	if err != nil {
		return fmt.Errorf("embedder: health check failed: %w", err)
	}
	return nil
}
