package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/port"
)

// Error indicates a remote document could not be fetched. It aborts the
// whole request; fetches are never retried.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fetcher downloads documents over HTTP(S) and, when configured, from S3.
// It implements port.DocumentFetcher.
type Fetcher struct {
	client  *http.Client
	storage port.ObjectStorage
	maxSize int64
}

// NewFetcher creates a Fetcher. The HTTP client uses a bounded timeout and
// follows redirects (the default transport behavior). storage may be nil,
// in which case s3:// references are rejected.
func NewFetcher(cfg *config.FetchConfig, storage port.ObjectStorage) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: cfg.Timeout()},
		storage: storage,
		maxSize: cfg.MaxFileSizeMB * 1024 * 1024,
	}
}

// Fetch resolves a document reference into bytes plus a MIME type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*port.Document, error) {
	if strings.HasPrefix(rawURL, "s3://") {
		return f.fetchS3(ctx, rawURL)
	}
	return f.fetchHTTP(ctx, rawURL)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (*port.Document, error) {
	logrus.WithField("url", rawURL).Debug("fetch: downloading document")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body := io.Reader(resp.Body)
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("%w: body exceeds %d bytes", domain.ErrFileTooLarge, f.maxSize)}
	}

	contentType := ResolveContentType(resp.Header.Get("Content-Type"), rawURL, data)

	logrus.WithFields(logrus.Fields{
		"url":          rawURL,
		"bytes":        len(data),
		"content_type": contentType,
	}).Debug("fetch: document downloaded")

	return &port.Document{Bytes: data, ContentType: contentType}, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, rawURL string) (*port.Document, error) {
	if f.storage == nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("s3 storage not configured")}
	}

	bucket, key, err := splitS3URL(rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	data, contentType, err := f.storage.Download(ctx, bucket, key)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	return &port.Document{
		Bytes:       data,
		ContentType: ResolveContentType(contentType, rawURL, data),
	}, nil
}

func splitS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 reference %q: want s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}

// ResolveContentType picks a MIME type for a document. Resolution order:
// declared content type (unless the generic application/octet-stream), a
// guess from the URL path extension, a byte-signature sniff, and finally
// application/pdf.
func ResolveContentType(declared, rawURL string, data []byte) string {
	if ct := normalizeContentType(declared); ct != "" && ct != "application/octet-stream" {
		return ct
	}

	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		if ct, ok := domain.AllowedExtensions[ext]; ok {
			return ct
		}
	}

	if ct := sniffContentType(data); ct != "" {
		return ct
	}

	return "application/pdf"
}

var sniffedTypes = []string{"application/pdf", "image/png", "image/jpeg"}

func sniffContentType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mt := mimetype.Detect(data)
	for _, want := range sniffedTypes {
		if mt.Is(want) {
			return want
		}
	}
	return ""
}

// normalizeContentType strips parameters such as charset from a declared
// Content-Type header value.
func normalizeContentType(declared string) string {
	if declared == "" {
		return ""
	}
	ct, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return ct
}
