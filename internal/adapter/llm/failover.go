package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"concierge-ai/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider asks each provider of its chain in turn and returns the
// first answer.
type FailoverProvider struct {
	chain  []domain.LLMProvider
	logger *slog.Logger
}

// NewFailoverProvider chains primary in front of fallbacks.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	chain := make([]domain.LLMProvider, 0, 1+len(fallbacks))
	chain = append(chain, primary)
	chain = append(chain, fallbacks...)
	return &FailoverProvider{chain: chain, logger: orDiscard(logger)}
}

// Chat stops at the first success. Once ctx is done the last error is
// returned as is, since every later provider would see the same context.
// When the whole chain fails the result wraps domain.ErrProviderError
// together with each provider's cause.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	causes := make([]error, 0, len(f.chain))
	for i, p := range f.chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("llm failover answered", "provider", p.Name(), "attempt", i+1)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("llm provider failed",
			"provider", p.Name(),
			"attempt", i+1,
			"remaining", len(f.chain)-i-1,
			"error", err,
		)
		causes = append(causes, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("%w: %d providers failed: %w", domain.ErrProviderError, len(causes), errors.Join(causes...))
}

func (f *FailoverProvider) Name() string { return f.chain[0].Name() + "+failover" }

// Providers returns the provider names in the order they are tried.
func (f *FailoverProvider) Providers() []string {
	names := make([]string, len(f.chain))
	for i, p := range f.chain {
		names[i] = p.Name()
	}
	return names
}
