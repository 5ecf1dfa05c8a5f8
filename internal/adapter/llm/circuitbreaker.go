package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/breaker"
	"concierge-ai/internal/infra/config"
)

var _ domain.LLMProvider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerProvider fails fast with domain.ErrCircuitOpen once the
// wrapped provider keeps erroring, until a half-open probe succeeds.
type CircuitBreakerProvider struct {
	next domain.LLMProvider
	cb   *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerProvider guards next. Zero fields in cfg take the breaker
// package defaults. A cancelled request never counts against the provider.
func NewCircuitBreakerProvider(next domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		next: next,
		cb:   breaker.New[*domain.ChatResponse]("llm:"+next.Name(), cfg, orDiscard(logger), context.Canceled),
	}
}

func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.cb.Execute(func() (*domain.ChatResponse, error) {
		return p.next.Chat(ctx, req)
	})
	if err != nil && breaker.IsOpen(err) {
		return nil, fmt.Errorf("%w: provider %q: %w", domain.ErrCircuitOpen, p.next.Name(), err)
	}
	return resp, err
}

func (p *CircuitBreakerProvider) Name() string { return p.next.Name() }
