package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/export"
	"billparse/internal/fetch"
	"billparse/internal/service"
)

// ExtractHandler handles the bill extraction endpoint.
type ExtractHandler struct {
	extractService service.ExtractService
	maxUploadSize  int64
}

// NewExtractHandler creates a new ExtractHandler. Uploaded files share the
// fetch size cap; zero disables the limit.
func NewExtractHandler(extractService service.ExtractService, fetchCfg *config.FetchConfig) *ExtractHandler {
	return &ExtractHandler{
		extractService: extractService,
		maxUploadSize:  fetchCfg.MaxFileSizeMB * 1024 * 1024,
	}
}

// extractRequest is the JSON body for URL-based extraction.
type extractRequest struct {
	Document string `json:"document"`
}

// Extract handles POST /api/v1/extract.
//
// The document is supplied either as JSON `{"document": "<url>"}` or as a
// multipart upload under the "file" field. Exactly one source is accepted.
// With `?format=csv` or `?format=xlsx` the extracted line items are returned
// as a spreadsheet download instead of the JSON envelope.
func (h *ExtractHandler) Extract(c *gin.Context) {
	input, err := h.parseInput(c)
	if err != nil {
		HandleError(c, err)
		return
	}

	result, err := h.extractService.ExtractDocument(c.Request.Context(), &input)
	if err != nil {
		HandleError(c, err)
		return
	}

	switch strings.ToLower(c.Query("format")) {
	case "":
		RespondResult(c, result)
	case "csv":
		h.respondCSV(c, result)
	case "xlsx":
		h.respondXLSX(c, result)
	default:
		RespondError(c, http.StatusBadRequest, "unsupported format; allowed: csv, xlsx")
	}
}

// parseInput resolves the document source from the request, enforcing that
// exactly one of URL or uploaded file is present.
func (h *ExtractHandler) parseInput(c *gin.Context) (service.ExtractInput, error) {
	var input service.ExtractInput

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		input.DocumentURL = strings.TrimSpace(c.PostForm("document"))

		file, header, err := c.Request.FormFile("file")
		if err == nil {
			defer func() { _ = file.Close() }()
			if input.DocumentURL != "" {
				return input, domain.ErrAmbiguousDocument
			}
			data, readErr := h.readUpload(file)
			if readErr != nil {
				return input, readErr
			}
			contentType := fetch.ResolveContentType(header.Header.Get("Content-Type"), header.Filename, data)
			if _, ok := domain.AllowedContentTypes[contentType]; !ok {
				return input, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, contentType)
			}
			input.FileBytes = data
			input.FileContentType = contentType
			return input, nil
		}
		if input.DocumentURL == "" {
			return input, domain.ErrMissingDocument
		}
		return input, nil
	}

	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return input, domain.ErrMissingDocument
	}
	input.DocumentURL = strings.TrimSpace(req.Document)
	if input.DocumentURL == "" {
		return input, domain.ErrMissingDocument
	}
	return input, nil
}

// readUpload reads the uploaded file, enforcing the configured size cap.
func (h *ExtractHandler) readUpload(file io.Reader) ([]byte, error) {
	if h.maxUploadSize <= 0 {
		return io.ReadAll(file)
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxUploadSize {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrFileTooLarge, h.maxUploadSize)
	}
	return data, nil
}

func (h *ExtractHandler) respondCSV(c *gin.Context, result *domain.DocumentResult) {
	filename := export.BuildFilename("line_items", "csv")
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write(export.BOM); err != nil {
		return
	}
	w := export.NewWriter(c.Writer)
	_ = w.WriteHeader()
	_ = w.WriteResult(result)
	w.Flush()
}

func (h *ExtractHandler) respondXLSX(c *gin.Context, result *domain.DocumentResult) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, result); err != nil {
		HandleError(c, err)
		return
	}
	filename := export.BuildFilename("line_items", "xlsx")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
