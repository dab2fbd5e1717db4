package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/extract"
	"billparse/internal/extract/gemini"
	"billparse/internal/port"
)

func newTestClient(serverURL string) *gemini.Client {
	cfg := &config.ExtractConfig{
		Provider:    "gemini",
		APIKey:      "test-api-key",
		TimeoutSecs: 30,
	}
	return gemini.NewClientWithEndpoint(cfg, "gemini-2.0-flash", serverURL)
}

func geminiBody(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]interface{}{{"text": text}},
				},
			},
		},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     120,
			"candidatesTokenCount": 30,
			"totalTokenCount":      150,
		},
	}
}

func TestClient_ExtractPage_Success(t *testing.T) {
	modelJSON := `{"page_type":"Pharmacy","bill_items":[{"item_name":"Cetirizine 10mg","item_amount":"45.50","item_rate":4.55,"item_quantity":10}]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		contents := reqBody["contents"].([]interface{})
		require.Len(t, contents, 1)
		parts := contents[0].(map[string]interface{})["parts"].([]interface{})
		require.Len(t, parts, 2)

		inline := parts[0].(map[string]interface{})["inline_data"].(map[string]interface{})
		assert.Equal(t, "image/png", inline["mime_type"])
		assert.NotEmpty(t, inline["data"])

		prompt := parts[1].(map[string]interface{})["text"].(string)
		assert.Contains(t, prompt, "Do not round")

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(geminiBody(modelJSON))
	}))
	defer server.Close()

	page, usage, err := newTestClient(server.URL).ExtractPage(context.Background(), port.PageInput{
		PageNo:      2,
		ImageBytes:  []byte("fake png bytes"),
		ContentType: "image/png",
	})

	require.NoError(t, err)
	assert.Equal(t, "2", page.PageNo)
	assert.Equal(t, domain.PageTypePharmacy, page.PageType)
	require.Len(t, page.BillItems, 1)
	assert.Equal(t, "Cetirizine 10mg", page.BillItems[0].ItemName)
	assert.Equal(t, 45.50, page.BillItems[0].ItemAmount)
	assert.Equal(t, 4.55, page.BillItems[0].ItemRate)
	assert.Equal(t, 10.0, page.BillItems[0].ItemQuantity)

	assert.Equal(t, 150, usage.TotalTokens)
	assert.Equal(t, 120, usage.InputTokens)
	assert.Equal(t, 30, usage.OutputTokens)
}

func TestClient_ExtractPage_CodeFencedResponse(t *testing.T) {
	fenced := "```json\n{\"page_type\":\"Final Bill\",\"bill_items\":[]}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiBody(fenced))
	}))
	defer server.Close()

	page, _, err := newTestClient(server.URL).ExtractPage(context.Background(), port.PageInput{
		PageNo:      1,
		ImageBytes:  []byte("img"),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PageTypeFinalBill, page.PageType)
	assert.Empty(t, page.BillItems)
}

func TestClient_ExtractPage_URLPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		parts := reqBody["contents"].([]interface{})[0].(map[string]interface{})["parts"].([]interface{})
		require.Len(t, parts, 2)
		ref := parts[1].(map[string]interface{})["text"].(string)
		assert.Contains(t, ref, "https://example.com/bill.pdf")

		_ = json.NewEncoder(w).Encode(geminiBody(`{"bill_items":[]}`))
	}))
	defer server.Close()

	page, _, err := newTestClient(server.URL).ExtractPage(context.Background(), port.PageInput{
		PageNo:      1,
		DocumentURL: "https://example.com/bill.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", page.PageNo)
	assert.Equal(t, domain.DefaultPageType, page.PageType)
}

func TestClient_ExtractPage_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, _, err := newTestClient(server.URL).ExtractPage(context.Background(), port.PageInput{
		PageNo:      1,
		ImageBytes:  []byte("img"),
		ContentType: "image/png",
	})
	require.Error(t, err)

	var rlErr *extract.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "gemini-2.0-flash", rlErr.Model)
}

func TestClient_ExtractPage_UnparsableModelOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiBody("Sorry, I cannot read this page."))
	}))
	defer server.Close()

	_, _, err := newTestClient(server.URL).ExtractPage(context.Background(), port.PageInput{
		PageNo:      1,
		ImageBytes:  []byte("img"),
		ContentType: "image/png",
	})
	require.Error(t, err)
}

func TestClient_ExtractPage_UnsupportedContentType(t *testing.T) {
	_, _, err := newTestClient("http://unused").ExtractPage(context.Background(), port.PageInput{
		PageNo:      1,
		ImageBytes:  []byte("data"),
		ContentType: "text/plain",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/plain")
}
