package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/extract"
	"billparse/internal/port"
)

const apiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

func init() {
	extract.RegisterProvider("gemini", func(cfg *config.ExtractConfig, model string) port.PageExtractor {
		return NewClient(cfg, model)
	})
}

// Client extracts one page's line items using Google's Gemini API. Each
// Client is bound to a single model identifier; availability fallback across
// models happens one level up.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewClient creates a Gemini-backed page extractor for the given model.
func NewClient(cfg *config.ExtractConfig, model string) *Client {
	return newClient(cfg, model, "")
}

// NewClientWithEndpoint creates a client pointing at a custom API endpoint
// (for testing).
func NewClientWithEndpoint(cfg *config.ExtractConfig, model, endpoint string) *Client {
	return newClient(cfg, model, endpoint)
}

func newClient(cfg *config.ExtractConfig, model, endpoint string) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
	}
	return &Client{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) ExtractPage(ctx context.Context, input port.PageInput) (*domain.PageLineItems, domain.TokenUsage, error) {
	parts, err := buildParts(input)
	if err != nil {
		return nil, domain.TokenUsage{}, err
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": parts,
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"maxOutputTokens":  8192,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := extract.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, domain.TokenUsage{}, extract.NewRateLimitError(c.model, baseErr, retryAfter)
		}
		return nil, domain.TokenUsage{}, baseErr
	}

	return parseResponse(respBody, input.PageNo)
}

func buildParts(input port.PageInput) ([]map[string]interface{}, error) {
	prompt := extract.BuildBillExtractionPrompt()

	if input.DocumentURL != "" {
		return []map[string]interface{}{
			{"text": prompt},
			{"text": "Extract line items from this document URL: " + input.DocumentURL},
		}, nil
	}

	mimeType, err := toGeminiMimeType(input.ContentType)
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{
		{
			"inline_data": map[string]interface{}{
				"mime_type": mimeType,
				"data":      base64.StdEncoding.EncodeToString(input.ImageBytes),
			},
		},
		{"text": prompt},
	}, nil
}

func toGeminiMimeType(contentType string) (string, error) {
	switch contentType {
	case "image/png", "image/jpeg", "application/pdf":
		return contentType, nil
	default:
		return "", fmt.Errorf("unsupported content type for extraction: %s", contentType)
	}
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func parseResponse(body []byte, pageNo int) (*domain.PageLineItems, domain.TokenUsage, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, domain.TokenUsage{}, fmt.Errorf("empty response from API: no candidates")
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, domain.TokenUsage{}, fmt.Errorf("empty response from API: no parts")
	}

	usage := domain.TokenUsage{
		TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}

	raw, err := extract.DecodePageResult(resp.Candidates[0].Content.Parts[0].Text, pageNo)
	if err != nil {
		return nil, domain.TokenUsage{}, err
	}

	return extract.Normalize(raw), usage, nil
}
