package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"billparse/internal/domain"
	"billparse/internal/port"
)

// circuitState tracks rate-limit backoff for a single model.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackExtractor tries model variants in order, skipping models with open
// rate-limit circuits, until one succeeds or the list is exhausted. Failures
// here are mostly deterministic (unknown or retired model identifiers), so
// the scan is linear with early exit and no backoff between attempts. It
// implements port.PageExtractor.
type FallbackExtractor struct {
	extractors []port.PageExtractor
	circuits   []*circuitState
	models     []string
}

// NewFallbackExtractor creates a FallbackExtractor from an ordered list of
// per-model extractors and their model identifiers.
func NewFallbackExtractor(extractors []port.PageExtractor, models []string) *FallbackExtractor {
	circuits := make([]*circuitState, len(extractors))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	return &FallbackExtractor{
		extractors: extractors,
		circuits:   circuits,
		models:     models,
	}
}

func (f *FallbackExtractor) ExtractPage(ctx context.Context, input port.PageInput) (*domain.PageLineItems, domain.TokenUsage, error) {
	now := time.Now()
	attempts := make([]Attempt, 0, len(f.extractors))

	for i, ex := range f.extractors {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			logrus.WithFields(logrus.Fields{
				"page":     input.PageNo,
				"model":    f.models[i],
				"reset_at": resetAt.Format(time.RFC3339),
			}).Warn("extract: skipping model (circuit open)")
			attempts = append(attempts, Attempt{
				Model: f.models[i],
				Err:   fmt.Errorf("skipped: rate-limit circuit open until %s", resetAt.Format(time.RFC3339)),
			})
			continue
		}

		page, usage, err := ex.ExtractPage(ctx, input)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"page":  input.PageNo,
				"model": f.models[i],
				"items": len(page.BillItems),
			}).Info("extract: page extracted")
			return page, usage, nil
		}

		logrus.WithFields(logrus.Fields{
			"page":  input.PageNo,
			"model": f.models[i],
		}).WithError(err).Warn("extract: model attempt failed")
		attempts = append(attempts, Attempt{Model: f.models[i], Err: err})

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			f.circuits[i].open(now.Add(rlErr.RetryAfter))
		}

		if ctx.Err() != nil {
			break
		}
	}

	return nil, domain.TokenUsage{}, &Error{PageNo: input.PageNo, Attempts: attempts}
}
