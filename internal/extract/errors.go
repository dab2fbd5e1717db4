package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Attempt records one failed model invocation for diagnostics.
type Attempt struct {
	Model string
	Err   error
}

// Error indicates every model attempt for a page failed or returned text
// that could not be parsed after cleanup. It carries each attempt's failure
// reason.
type Error struct {
	PageNo   int
	Attempts []Attempt
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "page %d: all %d model attempt(s) failed", e.PageNo, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Model, a.Err)
	}
	return b.String()
}

// Unwrap exposes the last attempt's error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// RateLimitError indicates a provider returned HTTP 429 for a model.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Model      string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Model, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0,
// defaults to 60s.
func NewRateLimitError(model string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Model:      model,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}
