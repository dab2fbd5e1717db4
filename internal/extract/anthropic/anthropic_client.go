package anthropic

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

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"
)

func init() {
	extract.RegisterProvider("anthropic", func(cfg *config.ExtractConfig, model string) port.PageExtractor {
		return NewClient(cfg, model)
	})
}

// Client extracts one page's line items using the Anthropic Messages API.
// Each Client is bound to a single model identifier.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewClient creates a Claude-backed page extractor for the given model.
func NewClient(cfg *config.ExtractConfig, model string) *Client {
	return newClient(cfg, model, apiURL)
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
	return &Client{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) ExtractPage(ctx context.Context, input port.PageInput) (*domain.PageLineItems, domain.TokenUsage, error) {
	contentBlocks, err := buildContentBlocks(input)
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("building content blocks: %w", err)
	}

	reqBody := map[string]interface{}{
		"model":      c.model,
		"max_tokens": 8192,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": contentBlocks,
			},
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
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := extract.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, domain.TokenUsage{}, extract.NewRateLimitError(c.model, baseErr, retryAfter)
		}
		return nil, domain.TokenUsage{}, baseErr
	}

	return parseResponse(respBody, input.PageNo)
}

func buildContentBlocks(input port.PageInput) ([]map[string]interface{}, error) {
	prompt := extract.BuildBillExtractionPrompt()

	if input.DocumentURL != "" {
		return []map[string]interface{}{
			{"type": "text", "text": prompt},
			{"type": "text", "text": "Extract line items from this document URL: " + input.DocumentURL},
		}, nil
	}

	switch input.ContentType {
	case "image/jpeg", "image/png":
	default:
		return nil, fmt.Errorf("unsupported content type for extraction: %s", input.ContentType)
	}

	return []map[string]interface{}{
		{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": input.ContentType,
				"data":       base64.StdEncoding.EncodeToString(input.ImageBytes),
			},
		},
		{"type": "text", "text": prompt},
	}, nil
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte, pageNo int) (*domain.PageLineItems, domain.TokenUsage, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, domain.TokenUsage{}, fmt.Errorf("empty response from API")
	}
	if resp.StopReason == "max_tokens" {
		return nil, domain.TokenUsage{}, fmt.Errorf("output truncated (stop_reason: max_tokens): response exceeded output token limit")
	}

	usage := domain.TokenUsage{
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	raw, err := extract.DecodePageResult(resp.Content[0].Text, pageNo)
	if err != nil {
		return nil, domain.TokenUsage{}, err
	}

	return extract.Normalize(raw), usage, nil
}
