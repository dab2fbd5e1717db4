package handler_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/export"
	"billparse/internal/extract"
	"billparse/internal/handler"
	"billparse/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubExtractService struct {
	result *domain.DocumentResult
	err    error
	got    *service.ExtractInput
}

func (s *stubExtractService) ExtractDocument(_ context.Context, input *service.ExtractInput) (*domain.DocumentResult, error) {
	s.got = input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func sampleResult() *domain.DocumentResult {
	return &domain.DocumentResult{
		Pages: []domain.PageLineItems{
			{
				PageNo:   "1",
				PageType: domain.PageTypeBillDetail,
				BillItems: []domain.BillItem{
					{ItemName: "Paracetamol 500mg", ItemAmount: 250.25, ItemRate: 25.025, ItemQuantity: 10},
					{ItemName: "Room Rent", ItemAmount: 1500},
				},
			},
			{PageNo: "2", PageType: domain.PageTypePharmacy, BillItems: []domain.BillItem{}},
		},
		Usage:          domain.TokenUsage{TotalTokens: 300, InputTokens: 240, OutputTokens: 60},
		TotalItemCount: 2,
	}
}

func postJSON(t *testing.T, h *handler.ExtractHandler, body string, query string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/extract"+query, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Extract(c)
	return w
}

func TestExtract_URLSuccessEnvelope(t *testing.T) {
	svc := &stubExtractService{result: sampleResult()}
	h := handler.NewExtractHandler(svc, &config.FetchConfig{})

	w := postJSON(t, h, `{"document": "https://example.com/bill.pdf"}`, "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.JSONEq(t, `true`, string(resp["is_success"]))
	assert.JSONEq(t, `{"total_tokens":300,"input_tokens":240,"output_tokens":60}`, string(resp["token_usage"]))

	var data struct {
		PagewiseLineItems []domain.PageLineItems `json:"pagewise_line_items"`
		TotalItemCount    int                    `json:"total_item_count"`
	}
	require.NoError(t, json.Unmarshal(resp["data"], &data))
	assert.Equal(t, 2, data.TotalItemCount)
	require.Len(t, data.PagewiseLineItems, 2)
	assert.Equal(t, "Paracetamol 500mg", data.PagewiseLineItems[0].BillItems[0].ItemName)

	require.NotNil(t, svc.got)
	assert.Equal(t, "https://example.com/bill.pdf", svc.got.DocumentURL)
	assert.Nil(t, svc.got.FileBytes)
}

func TestExtract_MultipartUpload(t *testing.T) {
	svc := &stubExtractService{result: sampleResult()}
	h := handler.NewExtractHandler(svc, &config.FetchConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "bill.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/extract", &buf)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	h.Extract(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.got)
	assert.Equal(t, "", svc.got.DocumentURL)
	assert.Equal(t, []byte("%PDF-1.4 fake"), svc.got.FileBytes)
}

func TestExtract_OversizedUploadRejected(t *testing.T) {
	svc := &stubExtractService{result: sampleResult()}
	h := handler.NewExtractHandler(svc, &config.FetchConfig{MaxFileSizeMB: 1})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "bill.pdf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 1024*1024+1))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/extract", &buf)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	h.Extract(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsSuccess)
	assert.Nil(t, svc.got, "oversized upload must never reach the pipeline")
}

func TestExtract_DisallowedUploadTypeRejected(t *testing.T) {
	svc := &stubExtractService{result: sampleResult()}
	h := handler.NewExtractHandler(svc, &config.FetchConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="bill.gif"`)
	partHeader.Set("Content-Type", "image/gif")
	part, err := mw.CreatePart(partHeader)
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a not a bill"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/extract", &buf)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	h.Extract(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.got)
}

func TestExtract_MissingDocument(t *testing.T) {
	h := handler.NewExtractHandler(&stubExtractService{result: sampleResult()}, &config.FetchConfig{})

	w := postJSON(t, h, `{}`, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsSuccess)
	assert.NotEmpty(t, resp.Message)
}

func TestExtract_AmbiguousDocument(t *testing.T) {
	h := handler.NewExtractHandler(&stubExtractService{result: sampleResult()}, &config.FetchConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("document", "https://example.com/bill.pdf"))
	part, err := mw.CreateFormFile("file", "bill.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/extract", &buf)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	h.Extract(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtract_ExtractionFailureMapsToBadGateway(t *testing.T) {
	svcErr := &extract.Error{PageNo: 2, Attempts: []extract.Attempt{{Model: "gemini-2.0-flash", Err: assert.AnError}}}
	h := handler.NewExtractHandler(&stubExtractService{err: svcErr}, &config.FetchConfig{})

	w := postJSON(t, h, `{"document": "https://example.com/bill.pdf"}`, "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsSuccess)
	assert.Contains(t, resp.Message, "extraction failed")
}

func TestExtract_CSVDownload(t *testing.T) {
	h := handler.NewExtractHandler(&stubExtractService{result: sampleResult()}, &config.FetchConfig{})

	w := postJSON(t, h, `{"document": "https://example.com/bill.pdf"}`, "?format=csv")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	body := w.Body.Bytes()
	require.True(t, len(body) >= 3)
	assert.Equal(t, export.BOM, body[:3])

	r := csv.NewReader(bytes.NewReader(body[3:]))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 items
	assert.Equal(t, "Paracetamol 500mg", records[1][2])
	assert.Equal(t, "250.25", records[1][5])
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	h := handler.NewExtractHandler(&stubExtractService{result: sampleResult()}, &config.FetchConfig{})

	w := postJSON(t, h, `{"document": "https://example.com/bill.pdf"}`, "?format=pdf")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadiness(t *testing.T) {
	h := handler.NewHealthHandler(&config.ExtractConfig{APIKey: "k"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	h.Readiness(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = handler.NewHealthHandler(&config.ExtractConfig{})
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	h.Readiness(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
