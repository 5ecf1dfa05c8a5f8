package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/tracer"
)

// Handler is a tool body over decoded arguments P. Its reply becomes the
// tool result: a string is sent as is, a *domain.ToolResult is passed
// through, anything else is sent as JSON. An error is a tool failure.
type Handler[P any] func(ctx context.Context, span trace.Span, args P) (any, error)

// Typed adapts h to a domain.ToolExecutor. Each call runs in a span called
// name. Arguments that do not decode into P fail with domain.ErrInvalidInput
// before h runs.
func Typed[P any](name string, logger *slog.Logger, h Handler[P]) domain.ToolExecutor {
	logger = orDiscard(logger)
	return domain.ToolExecutorFunc(func(ctx context.Context, raw json.RawMessage) (*domain.ToolResult, error) {
		ctx, span := tracer.StartSpan(ctx, name)
		defer span.End()

		result, err := invoke(ctx, span, name, raw, h)
		if err != nil {
			tracer.RecordError(span, err)
			logger.Warn("tool failed", "span", name, "error", err)
			return nil, err
		}
		tracer.SetOK(span)
		return result, nil
	})
}

func invoke[P any](ctx context.Context, span trace.Span, name string, raw json.RawMessage, h Handler[P]) (*domain.ToolResult, error) {
	var args P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, domain.NewDomainError(name, domain.ErrInvalidInput, err.Error())
		}
	}
	reply, err := h(ctx, span, args)
	if err != nil {
		return nil, err
	}
	return toResult(reply)
}

func toResult(reply any) (*domain.ToolResult, error) {
	switch v := reply.(type) {
	case *domain.ToolResult:
		return v, nil
	case string:
		return &domain.ToolResult{Content: v}, nil
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &domain.ToolResult{Content: string(data)}, nil
}

// notFound is the reply for a lookup that matched nothing. The model sees
// it as an ordinary answer, not a failure.
type notFound struct {
	Error string `json:"error"`
}

// objectSchema builds a closed JSON Schema object over properties.
func objectSchema(properties map[string]any, required ...string) json.RawMessage {
	s := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("tool schema: %v", err))
	}
	return data
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
