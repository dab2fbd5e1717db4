package domain

import "errors"

var (
	ErrMissingDocument     = errors.New("document URL or uploaded file required")
	ErrAmbiguousDocument   = errors.New("provide either a document URL or an uploaded file, not both")
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrEmptyDocument       = errors.New("document contains no pages")
	ErrPassthroughRequired = errors.New("URL-passthrough mode requires a document URL")
)
