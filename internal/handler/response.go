package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"billparse/internal/domain"
	"billparse/internal/extract"
	"billparse/internal/fetch"
)

// SuccessResponse is the envelope returned when extraction succeeds.
type SuccessResponse struct {
	IsSuccess  bool              `json:"is_success"`
	TokenUsage domain.TokenUsage `json:"token_usage"`
	Data       ExtractData       `json:"data"`
}

// ExtractData holds the extraction payload inside the success envelope.
type ExtractData struct {
	PagewiseLineItems []domain.PageLineItems `json:"pagewise_line_items"`
	TotalItemCount    int                    `json:"total_item_count"`
}

// ErrorResponse is the envelope returned on any failure.
type ErrorResponse struct {
	IsSuccess bool   `json:"is_success"`
	Message   string `json:"message"`
}

// RespondResult sends a 200 success envelope built from a document result.
func RespondResult(c *gin.Context, result *domain.DocumentResult) {
	c.JSON(http.StatusOK, SuccessResponse{
		IsSuccess:  true,
		TokenUsage: result.Usage,
		Data: ExtractData{
			PagewiseLineItems: result.Pages,
			TotalItemCount:    result.TotalItemCount,
		},
	})
}

// RespondError sends an error envelope with the given status code.
func RespondError(c *gin.Context, status int, msg string) {
	c.JSON(status, ErrorResponse{IsSuccess: false, Message: msg})
}

// MapError translates pipeline errors to HTTP status codes and messages.
func MapError(err error) (status int, msg string) {
	var fetchErr *fetch.Error
	var extractErr *extract.Error
	switch {
	case errors.Is(err, domain.ErrMissingDocument):
		return http.StatusBadRequest, "provide a document URL or an uploaded file"
	case errors.Is(err, domain.ErrAmbiguousDocument):
		return http.StatusBadRequest, "provide either a document URL or an uploaded file, not both"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported document format; allowed: pdf, png, jpeg"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "document exceeds maximum allowed size"
	case errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest, "document contains no pages"
	case errors.Is(err, domain.ErrPassthroughRequired):
		return http.StatusBadRequest, "URL passthrough mode requires a document URL"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "failed to fetch document: " + fetchErr.Error()
	case errors.As(err, &extractErr):
		return http.StatusBadGateway, "extraction failed: " + extractErr.Error()
	default:
		return http.StatusInternalServerError, "an internal error occurred"
	}
}

// HandleError maps a pipeline error and sends the appropriate error envelope.
func HandleError(c *gin.Context, err error) {
	status, msg := MapError(err)
	if status >= 500 {
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"error":      err,
		}).Error("internal error")
	}
	RespondError(c, status, msg)
}
