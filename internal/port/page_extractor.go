package port

import (
	"context"

	"billparse/internal/domain"
)

// PageInput carries one page's content for extraction. Exactly one of
// ImageBytes (with ContentType) or DocumentURL is set; DocumentURL is only
// used in URL-passthrough mode where the model reads the document itself.
type PageInput struct {
	PageNo      int
	ImageBytes  []byte
	ContentType string
	DocumentURL string
}

// PageExtractor abstracts one LLM-backed extraction call for a single page.
// Implementations return the canonical page result and the token usage the
// provider reported for the call (zero counters when none was reported).
type PageExtractor interface {
	ExtractPage(ctx context.Context, input PageInput) (*domain.PageLineItems, domain.TokenUsage, error)
}
