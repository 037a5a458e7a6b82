package generator

import (
	"bytes"
	"context"
	stdBase64 "encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"

	"github.com/chronofact/chronofact/internal/retry"
)

// Client is the minimal capability the structured generator needs from an
// LLM provider — narrowed from the teacher's GenAIClient (which also
// exposes streaming, unused here: timelines are synthesized whole, not
// token-streamed to a client).
type Client interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ImageClient is the multimodal extension C5 needs: a generation call that
// also carries inline image bytes.
type ImageClient interface {
	GenerateWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error)
}

// VertexClient adapts Vertex AI Gemini to Client, supporting both the
// regional SDK endpoint and the REST-only global endpoint, exactly as the
// teacher's gcpclient.GenAIAdapter does.
type VertexClient struct {
	client     *genai.Client
	httpClient *http.Client
	project    string
	location   string
	model      string
	useREST    bool
}

// NewVertexClient constructs a VertexClient for the given project/location/model.
func NewVertexClient(ctx context.Context, project, location, model string) (*VertexClient, error) {
	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("generator.NewVertexClient: default credentials: %w", err)
		}
		return &VertexClient{httpClient: httpClient, project: project, location: location, model: model, useREST: true}, nil
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("generator.NewVertexClient: %w", err)
	}
	return &VertexClient{client: client, project: project, location: location, model: model}, nil
}

func (c *VertexClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return retry.Do(ctx, "GenerateContent", func() (string, error) {
		if c.useREST {
			return c.generateREST(ctx, systemPrompt, userPrompt)
		}
		return c.generateSDK(ctx, systemPrompt, userPrompt)
	})
}

func (c *VertexClient) generateSDK(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := c.client.GenerativeModel(c.model)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("generator.GenerateContent: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generator.GenerateContent: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type restGenerateRequest struct {
	Contents          []restContent         `json:"contents"`
	SystemInstruction *restContent          `json:"systemInstruction,omitempty"`
}

type restContent struct {
	Role  string     `json:"role"`
	Parts []restPart `json:"parts"`
}

type restPart struct {
	Text string `json:"text"`
}

type restGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *VertexClient) generateREST(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		c.project, c.model,
	)

	reqBody := restGenerateRequest{
		Contents: []restContent{{Role: "user", Parts: []restPart{{Text: userPrompt}}}},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &restContent{Role: "user", Parts: []restPart{{Text: systemPrompt}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("generator.generateREST: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("generator.generateREST: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generator.generateREST: call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("generator.generateREST: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator.generateREST: status %d: %s", resp.StatusCode, respBody)
	}

	var genResp restGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("generator.generateREST: decode: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("generator.generateREST: API error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generator.generateREST: empty response from model")
	}

	var parts []string
	for _, p := range genResp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, ""), nil
}

// GenerateWithImage sends a prompt alongside inline image bytes, implementing
// ImageClient. Regional endpoints use the SDK's genai.ImageData part; the
// global endpoint uses the REST inlineData field.
func (c *VertexClient) GenerateWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	return retry.Do(ctx, "GenerateWithImage", func() (string, error) {
		if c.useREST {
			return c.generateWithImageREST(ctx, systemPrompt, userPrompt, image, mimeType)
		}
		return c.generateWithImageSDK(ctx, systemPrompt, userPrompt, image, mimeType)
	})
}

func (c *VertexClient) generateWithImageSDK(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	m := c.client.GenerativeModel(c.model)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := m.GenerateContent(ctx, genai.ImageData(strings.TrimPrefix(mimeType, "image/"), image), genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("generator.GenerateWithImage: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generator.GenerateWithImage: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type restInlinePart struct {
	InlineData *restInlineData `json:"inlineData,omitempty"`
	Text       string          `json:"text,omitempty"`
}

type restInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type restImageGenerateRequest struct {
	Contents          []restImageContent `json:"contents"`
	SystemInstruction *restContent       `json:"systemInstruction,omitempty"`
}

type restImageContent struct {
	Role  string           `json:"role"`
	Parts []restInlinePart `json:"parts"`
}

func (c *VertexClient) generateWithImageREST(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		c.project, c.model,
	)

	reqBody := restImageGenerateRequest{
		Contents: []restImageContent{
			{
				Role: "user",
				Parts: []restInlinePart{
					{InlineData: &restInlineData{MimeType: mimeType, Data: base64Encode(image)}},
					{Text: userPrompt},
				},
			},
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &restContent{Role: "user", Parts: []restPart{{Text: systemPrompt}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("generator.generateWithImageREST: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("generator.generateWithImageREST: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generator.generateWithImageREST: call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("generator.generateWithImageREST: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator.generateWithImageREST: status %d: %s", resp.StatusCode, respBody)
	}

	var genResp restGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("generator.generateWithImageREST: decode: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("generator.generateWithImageREST: API error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generator.generateWithImageREST: empty response from model")
	}

	var parts []string
	for _, p := range genResp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, ""), nil
}

func base64Encode(b []byte) string {
	return stdBase64.StdEncoding.EncodeToString(b)
}

// HealthCheck issues a minimal generation call to validate connectivity.
func (c *VertexClient) HealthCheck(ctx context.Context) error {
	resp, err := c.GenerateContent(ctx, "", "Reply with only: OK")
	if err != nil {
		return fmt.Errorf("generator: vertex health check failed (model %s): %w", c.model, err)
	}
	if resp == "" {
		return fmt.Errorf("generator: vertex returned empty response (model %s)", c.model)
	}
	return nil
}

// Close releases the underlying SDK client, if any.
func (c *VertexClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
