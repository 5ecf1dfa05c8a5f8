package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

func chatN(cb *CircuitBreakerProvider, n int) (errs []error) {
	for i := 0; i < n; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		errs = append(errs, err)
	}
	return errs
}

func TestBreakerProviderHealthy(t *testing.T) {
	cb := NewCircuitBreakerProvider(replying("openai", "movie"), config.CircuitBreakerConfig{}, newTestLogger())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "movie", resp.Message.Content)
	assert.Equal(t, "openai", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.cb.State())
}

func TestBreakerProviderTripsAndFailsFast(t *testing.T) {
	inner := failing("bedrock", domain.ErrProviderError)
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute}, nil)

	for _, err := range chatN(cb, 2) {
		require.ErrorIs(t, err, domain.ErrProviderError)
	}
	require.Equal(t, gobreaker.StateOpen, cb.cb.State())

	errs := chatN(cb, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrCircuitOpen)
		assert.True(t, domain.IsRetryableError(err))
	}
	assert.ErrorContains(t, errs[0], `"bedrock"`)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerProviderRecoversThroughHalfOpen(t *testing.T) {
	down := errors.New("503 upstream")
	inner := &stubProvider{name: "openai", reply: "back", script: []error{down, down, nil}}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 2, Timeout: 20 * time.Millisecond}, nil)

	chatN(cb, 2)
	require.Equal(t, gobreaker.StateOpen, cb.cb.State())

	require.Eventually(t, func() bool { return cb.cb.State() == gobreaker.StateHalfOpen },
		time.Second, 5*time.Millisecond)

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Message.Content)
	assert.Equal(t, gobreaker.StateClosed, cb.cb.State())
}

func TestBreakerProviderCancellationIsNotAFailure(t *testing.T) {
	inner := failing("openai", context.Canceled)
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 1}, nil)

	for _, err := range chatN(cb, 4) {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.cb.State())
	assert.Equal(t, 4, inner.calls)
}

func TestBreakerProviderCountsFailures(t *testing.T) {
	cause := errors.New("bad gateway")
	cb := NewCircuitBreakerProvider(failing("openai", cause), config.CircuitBreakerConfig{MaxFailures: 10}, nil)

	errs := chatN(cb, 3)
	assert.ErrorIs(t, errs[2], cause)
	assert.NotErrorIs(t, errs[2], domain.ErrCircuitOpen)
	assert.Equal(t, uint32(3), cb.cb.Counts().ConsecutiveFailures)
}
