package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"billparse/internal/config"
	"billparse/internal/domain"
	"billparse/internal/extract"
	"billparse/internal/fetch"
	"billparse/internal/port"
)

// ExtractInput is the DTO for one extraction request. Exactly one of
// DocumentURL or FileBytes is set; FileContentType accompanies FileBytes.
type ExtractInput struct {
	DocumentURL     string
	FileBytes       []byte
	FileContentType string
}

// ExtractService defines the document extraction contract.
type ExtractService interface {
	ExtractDocument(ctx context.Context, input *ExtractInput) (*domain.DocumentResult, error)
}

type extractService struct {
	fetcher    port.DocumentFetcher
	rasterizer port.Rasterizer
	extractor  port.PageExtractor
	cfg        config.ExtractConfig
}

// NewExtractService creates the extraction orchestrator composing fetcher,
// rasterizer, and page extractor.
func NewExtractService(fetcher port.DocumentFetcher, rasterizer port.Rasterizer, extractor port.PageExtractor, cfg config.ExtractConfig) ExtractService {
	return &extractService{
		fetcher:    fetcher,
		rasterizer: rasterizer,
		extractor:  extractor,
		cfg:        cfg,
	}
}

// ExtractDocument runs the full pipeline: resolve the document, rasterize
// its pages, extract each page, and assemble the per-document result. Pages
// are processed with bounded concurrency; the final page order always
// matches rasterization order.
func (s *extractService) ExtractDocument(ctx context.Context, input *ExtractInput) (*domain.DocumentResult, error) {
	if s.cfg.URLPassthrough {
		return s.extractPassthrough(ctx, input)
	}

	doc, err := s.resolveDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	pages, err := s.rasterizer.Rasterize(doc)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"pages":       len(pages),
		"concurrency": s.concurrency(),
		"policy":      s.cfg.FailurePolicy,
	}).Info("service: starting page extraction")

	results := make([]*domain.PageLineItems, len(pages))
	usages := make([]domain.TokenUsage, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	for i, page := range pages {
		g.Go(func() error {
			result, usage, err := s.extractor.ExtractPage(gctx, port.PageInput{
				PageNo:      page.PageNo,
				ImageBytes:  page.ImageBytes,
				ContentType: page.ContentType,
			})
			if err != nil {
				if s.cfg.FailurePolicy == config.FailurePolicyDegrade && isExtractionFailure(err) && gctx.Err() == nil {
					logrus.WithField("page", page.PageNo).WithError(err).
						Warn("service: degrading failed page to empty placeholder")
					results[i] = extract.EmptyPage(page.PageNo)
					return nil
				}
				return err
			}
			results[i] = result
			usages[i] = usage
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return assemble(results, usages), nil
}

// extractPassthrough sends the raw document URL to the model as a single
// pseudo-page, skipping fetch and rasterization entirely.
func (s *extractService) extractPassthrough(ctx context.Context, input *ExtractInput) (*domain.DocumentResult, error) {
	if input.DocumentURL == "" {
		return nil, domain.ErrPassthroughRequired
	}

	result, usage, err := s.extractor.ExtractPage(ctx, port.PageInput{
		PageNo:      1,
		DocumentURL: input.DocumentURL,
	})
	if err != nil {
		if s.cfg.FailurePolicy == config.FailurePolicyDegrade && isExtractionFailure(err) && ctx.Err() == nil {
			result, usage = extract.EmptyPage(1), domain.TokenUsage{}
		} else {
			return nil, err
		}
	}

	return assemble([]*domain.PageLineItems{result}, []domain.TokenUsage{usage}), nil
}

func (s *extractService) resolveDocument(ctx context.Context, input *ExtractInput) (*port.Document, error) {
	if input.DocumentURL != "" {
		return s.fetcher.Fetch(ctx, input.DocumentURL)
	}
	if len(input.FileBytes) == 0 {
		return nil, domain.ErrMissingDocument
	}
	contentType := fetch.ResolveContentType(input.FileContentType, "", input.FileBytes)
	return &port.Document{Bytes: input.FileBytes, ContentType: contentType}, nil
}

func (s *extractService) concurrency() int {
	if s.cfg.MaxConcurrency < 1 {
		return 1
	}
	return s.cfg.MaxConcurrency
}

func assemble(pages []*domain.PageLineItems, usages []domain.TokenUsage) *domain.DocumentResult {
	result := &domain.DocumentResult{Pages: make([]domain.PageLineItems, 0, len(pages))}
	for i, page := range pages {
		result.Pages = append(result.Pages, *page)
		result.TotalItemCount += len(page.BillItems)
		result.Usage.Add(usages[i])
	}
	return result
}

// isExtractionFailure reports whether err is a page-level extraction
// failure eligible for the degrade policy. Fetch and rasterization errors
// always abort the document, as does request cancellation: a canceled or
// timed-out request must surface as a failure, never as a placeholder page.
func isExtractionFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var exErr *extract.Error
	return errors.As(err, &exErr)
}
