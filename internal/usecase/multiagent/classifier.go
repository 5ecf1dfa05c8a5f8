package multiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/logger"
	"concierge-ai/internal/infra/tracer"
)

// discardLogger returns a no-op logger for components created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultClassifierPrompt instructs the model to answer with a single label.
const DefaultClassifierPrompt = `You route user requests for an assistant with two specialists.

- document: creating, reading, listing, updating or deleting the user's documents or notes.
- movie: finding films, looking up movie details, cast, release dates or ratings.
- unroutable: anything else, or a request that fits both or neither.

Reply with exactly one word: document, movie or unroutable.`

// LLMClassifier classifies a message with one deterministic LLM call.
// It holds no per-request state, so the same message and model output
// always give the same decision.
type LLMClassifier struct {
	llm    domain.LLMProvider
	prompt string
	logger *slog.Logger
}

// ClassifierOption configures an LLMClassifier.
type ClassifierOption func(*LLMClassifier)

// WithClassifierPrompt overrides the system prompt.
func WithClassifierPrompt(prompt string) ClassifierOption {
	return func(c *LLMClassifier) {
		if strings.TrimSpace(prompt) != "" {
			c.prompt = prompt
		}
	}
}

// NewLLMClassifier creates a classifier over llm.
func NewLLMClassifier(llm domain.LLMProvider, logger *slog.Logger, opts ...ClassifierOption) *LLMClassifier {
	if logger == nil {
		logger = discardLogger()
	}
	c := &LLMClassifier{llm: llm, prompt: DefaultClassifierPrompt, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify implements domain.Classifier. A blank message is unroutable and
// costs no LLM call. Any LLM failure wraps domain.ErrRoutingUnavailable.
func (c *LLMClassifier) Classify(ctx context.Context, message string) (domain.RoutingDecision, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.RouteUnroutable, nil
	}

	ctx, span := tracer.StartSpan(ctx, "classifier.classify",
		trace.WithAttributes(tracer.StringAttr("llm.provider", c.llm.Name())),
	)
	defer span.End()

	resp, err := c.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: c.prompt},
			{Role: domain.RoleUser, Content: message},
		},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		tracer.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", domain.WrapOp("LLMClassifier.Classify", ctxErr)
		}
		return "", domain.NewDomainError("LLMClassifier.Classify", fmt.Errorf("%w: %w", domain.ErrRoutingUnavailable, err), "")
	}

	decision := ParseDecision(resp.Message.Content)
	span.SetAttributes(tracer.StringAttr("routing.decision", string(decision)))
	tracer.SetOK(span)
	c.logger.Debug("message classified", "decision", decision, "raw", logger.Truncate(resp.Message.Content, 64))
	return decision, nil
}

// ParseDecision maps free-form model output onto a decision. It accepts a
// bare label, a label inside a sentence, or {"route": "<label>"}. When the
// output names both agents, or neither, the result is unroutable.
func ParseDecision(raw string) domain.RoutingDecision {
	raw = strings.TrimSpace(raw)

	var structured struct {
		Route string `json:"route"`
	}
	if strings.HasPrefix(raw, "{") && json.Unmarshal([]byte(raw), &structured) == nil {
		d := domain.RoutingDecision(strings.ToLower(strings.TrimSpace(structured.Route)))
		if d.IsValid() {
			return d
		}
		return domain.RouteUnroutable
	}

	var doc, movie, unroutable bool
	for _, word := range strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		switch word {
		case "document", "documents":
			doc = true
		case "movie", "movies":
			movie = true
		case "unroutable":
			unroutable = true
		}
	}

	switch {
	case unroutable:
		return domain.RouteUnroutable
	case doc && !movie:
		return domain.RouteDocument
	case movie && !doc:
		return domain.RouteMovie
	default:
		return domain.RouteUnroutable
	}
}

var _ domain.Classifier = (*LLMClassifier)(nil)
