// Package breaker builds gobreaker circuit breakers from config for the
// remote dependencies: LLM providers, the permission oracle and the movie
// catalogue.
package breaker

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"concierge-ai/internal/infra/config"
)

// Default circuit breaker settings.
const (
	DefaultMaxFailures uint32        = 5
	DefaultTimeout     time.Duration = 30 * time.Second
	DefaultInterval    time.Duration = 60 * time.Second
)

// Settings fills in defaults for zero-valued fields.
func Settings(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
}

// New creates a typed circuit breaker named name. Errors matching one of
// benign are answers from a healthy dependency and do not count as failures.
func New[T any](name string, cfg config.CircuitBreakerConfig, logger *slog.Logger, benign ...error) *gobreaker.CircuitBreaker[T] {
	s := Settings(name, cfg, logger)
	if len(benign) > 0 {
		s.IsSuccessful = func(err error) bool {
			if err == nil {
				return true
			}
			for _, b := range benign {
				if errors.Is(err, b) {
					return true
				}
			}
			return false
		}
	}
	return gobreaker.NewCircuitBreaker[T](s)
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
