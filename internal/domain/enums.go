package domain

import "strings"

// PageType classifies a bill page. The extraction output always carries one
// of exactly these three values.
type PageType string

const (
	PageTypeBillDetail PageType = "Bill Detail"
	PageTypeFinalBill  PageType = "Final Bill"
	PageTypePharmacy   PageType = "Pharmacy"
)

// DefaultPageType is used when the model omits the page type or produces a
// value outside the allowed set.
const DefaultPageType = PageTypeBillDetail

var pageTypes = []PageType{PageTypeBillDetail, PageTypeFinalBill, PageTypePharmacy}

// NormalizePageType maps a raw page type string to the canonical set.
// Exact matches win, then case-insensitive matches after trimming, and
// anything else falls back to DefaultPageType.
func NormalizePageType(raw string) PageType {
	for _, pt := range pageTypes {
		if raw == string(pt) {
			return pt
		}
	}
	trimmed := strings.TrimSpace(raw)
	for _, pt := range pageTypes {
		if strings.EqualFold(trimmed, string(pt)) {
			return pt
		}
	}
	return DefaultPageType
}

// AllowedContentTypes maps document MIME types accepted by the pipeline to
// their short form.
var AllowedContentTypes = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/png":       "png",
}

// AllowedExtensions maps file extensions (without dot) to MIME content types.
var AllowedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}
