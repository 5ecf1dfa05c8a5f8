// Package llm adapts chat-completion backends to domain.LLMProvider and
// layers failover and circuit breaking on top of them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/infra/metrics"
	"concierge-ai/internal/infra/tracer"
)

// providerCore is embedded by the concrete providers. It owns the provider
// identity, the request defaults and the span around each round trip.
type providerCore struct {
	name      string
	model     string
	maxTokens int
	logger    *slog.Logger
}

func newProviderCore(cfg config.ProviderConfig, logger *slog.Logger) providerCore {
	return providerCore{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    orDiscard(logger),
	}
}

func (c providerCore) Name() string { return c.name }

type sendFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

// roundTrip fills in the configured model and token cap, then runs send
// inside an llm.provider.chat span.
func (c providerCore) roundTrip(ctx context.Context, req domain.ChatRequest, send sendFunc) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}

	ctx, span := tracer.StartSpan(ctx, "llm.provider.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", c.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.messages", len(req.Messages)),
			tracer.IntAttr("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := send(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		tracer.RecordError(span, err)
		metrics.RecordLLMCall(c.name, metrics.OutcomeError, elapsed, 0, 0)
		return nil, err
	}

	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", resp.Usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	tracer.SetOK(span)
	metrics.RecordLLMCall(c.name, metrics.OutcomeSuccess, elapsed, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.logger.Debug("llm chat completed",
		"provider", c.name,
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"tool_calls", len(resp.Message.ToolCalls),
		"duration", elapsed,
	)
	return resp, nil
}

// statusError classifies a failed API call by HTTP status so that failover,
// the circuit breaker and the gateway can tell retryable failures apart.
// Context errors pass through untouched.
func statusError(provider string, status int, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case status == 0:
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderError, provider, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %w", domain.ErrRateLimit, provider, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %w", domain.ErrAuthInvalid, provider, err)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s: %w", domain.ErrContextOverflow, provider, err)
	case status >= 500:
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderError, provider, err)
	}
	return domain.WrapOp(provider, err)
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
