package extract_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billparse/internal/domain"
	"billparse/internal/extract"
	"billparse/internal/port"
)

type stubExtractor struct {
	page  *domain.PageLineItems
	usage domain.TokenUsage
	err   error
	calls int
}

func (s *stubExtractor) ExtractPage(ctx context.Context, input port.PageInput) (*domain.PageLineItems, domain.TokenUsage, error) {
	s.calls++
	if s.err != nil {
		return nil, domain.TokenUsage{}, s.err
	}
	return s.page, s.usage, nil
}

func TestFallbackExtractor_FirstModelSucceeds(t *testing.T) {
	first := &stubExtractor{page: extract.EmptyPage(1), usage: domain.TokenUsage{TotalTokens: 10}}
	second := &stubExtractor{err: errors.New("should not be called")}

	f := extract.NewFallbackExtractor(
		[]port.PageExtractor{first, second},
		[]string{"model-a", "model-b"},
	)

	page, usage, err := f.ExtractPage(context.Background(), port.PageInput{PageNo: 1})
	require.NoError(t, err)
	assert.Equal(t, "1", page.PageNo)
	assert.Equal(t, 10, usage.TotalTokens)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestFallbackExtractor_FallsBackInOrder(t *testing.T) {
	first := &stubExtractor{err: fmt.Errorf("model not found")}
	second := &stubExtractor{page: extract.EmptyPage(2), usage: domain.TokenUsage{TotalTokens: 5}}

	f := extract.NewFallbackExtractor(
		[]port.PageExtractor{first, second},
		[]string{"model-a", "model-b"},
	)

	page, usage, err := f.ExtractPage(context.Background(), port.PageInput{PageNo: 2})
	require.NoError(t, err)
	assert.Equal(t, "2", page.PageNo)
	assert.Equal(t, 5, usage.TotalTokens)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestFallbackExtractor_AllAttemptsFail(t *testing.T) {
	first := &stubExtractor{err: fmt.Errorf("model retired")}
	second := &stubExtractor{err: fmt.Errorf("quota exceeded")}

	f := extract.NewFallbackExtractor(
		[]port.PageExtractor{first, second},
		[]string{"model-a", "model-b"},
	)

	_, _, err := f.ExtractPage(context.Background(), port.PageInput{PageNo: 5})
	require.Error(t, err)

	var exErr *extract.Error
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, 5, exErr.PageNo)
	require.Len(t, exErr.Attempts, 2)
	assert.Equal(t, "model-a", exErr.Attempts[0].Model)
	assert.Contains(t, exErr.Attempts[0].Err.Error(), "model retired")
	assert.Equal(t, "model-b", exErr.Attempts[1].Model)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestFallbackExtractor_RateLimitOpensCircuit(t *testing.T) {
	first := &stubExtractor{err: extract.NewRateLimitError("model-a", errors.New("429"), 60)}
	second := &stubExtractor{page: extract.EmptyPage(1)}

	f := extract.NewFallbackExtractor(
		[]port.PageExtractor{first, second},
		[]string{"model-a", "model-b"},
	)

	// First call trips the circuit on model-a, second call must skip it.
	_, _, err := f.ExtractPage(context.Background(), port.PageInput{PageNo: 1})
	require.NoError(t, err)
	_, _, err = f.ExtractPage(context.Background(), port.PageInput{PageNo: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 2, second.calls)
}
