package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/metrics"
	"concierge-ai/internal/infra/tracer"
)

// DefaultClarification is returned for messages no agent can handle.
const DefaultClarification = "I can help with your documents or with finding movies. Could you rephrase your request as one of those?"

// SupervisorDeps holds injected dependencies for a Supervisor.
type SupervisorDeps struct {
	Classifier    domain.Classifier
	Agents        *Registry
	Audit         domain.AuditLogger
	Logger        *slog.Logger
	Clarification string
	// Timeout bounds one delegated agent run. Zero means no extra bound.
	Timeout time.Duration
}

// Supervisor is the single entry point for a request: it classifies the
// latest user message and hands the conversation to one domain agent.
// It keeps no state between calls.
type Supervisor struct {
	deps SupervisorDeps
}

// NewSupervisor creates a supervisor.
func NewSupervisor(deps SupervisorDeps) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	if strings.TrimSpace(deps.Clarification) == "" {
		deps.Clarification = DefaultClarification
	}
	return &Supervisor{deps: deps}
}

// Route classifies the latest user message and delegates to the matching
// agent, returning its answer unchanged. Unroutable messages get the
// clarification text without touching any agent or tool.
//
// Errors wrap domain.ErrRoutingUnavailable when classification fails, and
// pass through agent errors such as domain.ErrAuthorizationUnavailable.
func (s *Supervisor) Route(ctx context.Context, identity domain.Identity, history []domain.Message) (domain.FinalAnswer, error) {
	ctx = domain.ContextWithIdentity(ctx, identity)
	ctx, span := tracer.StartSpan(ctx, "supervisor.route",
		trace.WithAttributes(tracer.IntAttr("history.length", len(history))),
	)
	defer span.End()

	logger := s.deps.Logger.With("identity", identity)
	if id := domain.RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}

	decision, err := s.classify(ctx, history)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Error("routing failed", "error", err)
		return domain.FinalAnswer{}, err
	}
	span.SetAttributes(tracer.StringAttr("routing.decision", string(decision)))
	metrics.RecordRouting(string(decision))
	s.audit(ctx, logger, domain.NewRoutingAuditEvent(identity, decision))
	logger.Info("request routed", "decision", decision)

	if decision == domain.RouteUnroutable {
		tracer.SetOK(span)
		return domain.FinalAnswer{
			Text:   s.deps.Clarification,
			Route:  domain.RouteUnroutable,
			Status: domain.RunClarify,
		}, nil
	}

	agent, err := s.deps.Agents.Get(decision)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Error("no agent bound to route", "decision", decision)
		return domain.FinalAnswer{}, domain.WrapOp("Supervisor.Route", err)
	}

	runCtx := ctx
	if s.deps.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
	}

	answer, err := agent.Run(runCtx, identity, domain.CloneMessages(history))
	if err != nil {
		tracer.RecordError(span, err)
		return domain.FinalAnswer{}, domain.WrapOp("Supervisor.Route", err)
	}
	if answer.Route == "" {
		answer.Route = decision
	}
	span.SetAttributes(tracer.StringAttr("run.status", string(answer.Status)))
	tracer.SetOK(span)
	return answer, nil
}

// Classify exposes the routing decision alone, for diagnostics.
func (s *Supervisor) Classify(ctx context.Context, history []domain.Message) (domain.RoutingDecision, error) {
	return s.classify(ctx, history)
}

func (s *Supervisor) classify(ctx context.Context, history []domain.Message) (domain.RoutingDecision, error) {
	latest := strings.TrimSpace(domain.LatestUserMessage(history))
	if latest == "" {
		return domain.RouteUnroutable, nil
	}

	decision, err := s.deps.Classifier.Classify(ctx, latest)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", domain.WrapOp("Supervisor.Route", err)
		}
		if !errors.Is(err, domain.ErrRoutingUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrRoutingUnavailable, err)
		}
		return "", domain.WrapOp("Supervisor.Route", err)
	}
	if !decision.IsValid() {
		return domain.RouteUnroutable, nil
	}
	return decision, nil
}

func (s *Supervisor) audit(ctx context.Context, logger *slog.Logger, ev domain.AuditEvent) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, ev); err != nil {
		logger.Warn("audit write failed", "type", ev.Type, "error", err)
	}
}
