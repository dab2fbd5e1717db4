package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/port"
)

// Rasterizer renders PDF documents into one PNG per page and passes single
// images through. It implements port.Rasterizer.
type Rasterizer struct {
	dpi     int
	enhance bool
}

// NewRasterizer creates a Rasterizer from raster config.
func NewRasterizer(cfg *config.RasterConfig) *Rasterizer {
	return &Rasterizer{dpi: cfg.DPI, enhance: cfg.Enhance}
}

// Rasterize converts a resolved document into ordered pages. A PDF yields
// exactly one page per PDF page, numbered from 1; an image yields exactly
// one page with PageNo 1. Any other MIME type fails with
// domain.ErrUnsupportedFormat.
func (r *Rasterizer) Rasterize(doc *port.Document) ([]domain.RasterPage, error) {
	switch {
	case doc.ContentType == "application/pdf":
		return r.rasterizePDF(doc.Bytes)
	case strings.HasPrefix(doc.ContentType, "image/"):
		return r.passthroughImage(doc.Bytes, doc.ContentType)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, doc.ContentType)
	}
}

func (r *Rasterizer) rasterizePDF(data []byte) ([]domain.RasterPage, error) {
	pdf, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer func() { _ = pdf.Close() }()

	count := pdf.NumPage()
	if count == 0 {
		return nil, domain.ErrEmptyDocument
	}

	logrus.WithFields(logrus.Fields{
		"pages": count,
		"dpi":   r.dpi,
	}).Debug("raster: rendering PDF")

	pages := make([]domain.RasterPage, 0, count)
	for i := 0; i < count; i++ {
		img, err := pdf.ImageDPI(i, float64(r.dpi))
		if err != nil {
			return nil, fmt.Errorf("rendering page %d: %w", i+1, err)
		}
		encoded, err := r.encodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("encoding page %d: %w", i+1, err)
		}
		pages = append(pages, domain.RasterPage{
			PageNo:      i + 1,
			ImageBytes:  encoded,
			ContentType: "image/png",
		})
	}
	return pages, nil
}

// passthroughImage yields the sole page for an image input. PNG and JPEG
// sources keep their bytes and format untouched unless enhancement is on;
// every other decodable image is re-encoded to PNG.
func (r *Rasterizer) passthroughImage(data []byte, contentType string) ([]domain.RasterPage, error) {
	if !r.enhance && (contentType == "image/png" || contentType == "image/jpeg") {
		return []domain.RasterPage{{PageNo: 1, ImageBytes: data, ContentType: contentType}}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, contentType)
	}
	encoded, err := r.encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return []domain.RasterPage{{PageNo: 1, ImageBytes: encoded, ContentType: "image/png"}}, nil
}

func (r *Rasterizer) encodePNG(img image.Image) ([]byte, error) {
	if r.enhance {
		img = Enhance(img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
