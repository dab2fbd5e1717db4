package port

import (
	"context"

	"billparse/internal/domain"
)

// Document is a resolved document: its raw bytes plus a best-effort MIME type.
type Document struct {
	Bytes       []byte
	ContentType string
}

// DocumentFetcher resolves a document reference (http(s):// or s3:// URL)
// into bytes and a MIME type. One outbound call per fetch, no retries.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// Rasterizer converts a resolved document into ordered page images,
// numbered from 1 in document order.
type Rasterizer interface {
	Rasterize(doc *Document) ([]domain.RasterPage, error)
}
