package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/metrics"
	"concierge-ai/internal/infra/tracer"
)

// DefaultMaxSteps bounds the LLM decisions of one run when none is configured.
const DefaultMaxSteps = 8

// FailureAnswer is returned to the user whenever a run ends in failure.
// Internal error details are logged, never shown.
const FailureAnswer = "Sorry, I couldn't complete that request. Please try again or rephrase it."

// runState is the position of a run in its tool-use loop.
type runState string

const (
	stateThinking      runState = "thinking"
	stateAwaitingTools runState = "awaiting_tool_result"
	stateDone          runState = "done"
	stateFailed        runState = "failed"
)

// failureKind classifies a recoverable tool failure for fingerprinting.
type failureKind string

const (
	failDenied      failureKind = "permission_denied"
	failUnknownTool failureKind = "unknown_tool"
	failInvalidArgs failureKind = "invalid_arguments"
	failExecution   failureKind = "execution_error"
)

// AgentDeps holds injected dependencies for a domain agent.
type AgentDeps struct {
	Name         string
	Route        domain.RoutingDecision
	LLM          domain.LLMProvider
	Tools        domain.ToolInvoker
	SystemPrompt string
	MaxSteps     int
	Temperature  float64
	Logger       *slog.Logger
}

// Agent is a bounded tool-use loop over one domain's tools. Each Run works
// on a private copy of the history and shares no state with other runs.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = DefaultMaxSteps
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Name == "" {
		deps.Name = string(deps.Route)
	}
	return &Agent{deps: deps}
}

// Name implements domain.DomainAgent.
func (a *Agent) Name() string { return a.deps.Name }

// agentRun is the state of a single delegation.
type agentRun struct {
	id       string
	identity domain.Identity
	history  []domain.Message
	steps    int
	state    runState
	failures map[string]struct{}
	logger   *slog.Logger
}

// Run drives the loop until the LLM answers without tool calls, the step
// budget is exhausted, or the same tool call fails the same way twice.
//
// Unrecoverable conditions are returned as errors: an unavailable permission
// oracle (domain.ErrAuthorizationUnavailable), an LLM failure
// (domain.ErrProviderError) and context cancellation.
func (a *Agent) Run(ctx context.Context, identity domain.Identity, history []domain.Message) (domain.FinalAnswer, error) {
	run := &agentRun{
		id:       newID(),
		identity: identity,
		history:  make([]domain.Message, 0, len(history)+1),
		state:    stateThinking,
		failures: make(map[string]struct{}),
	}
	run.logger = a.deps.Logger.With("agent", a.deps.Name, "run_id", run.id, "identity", identity)
	run.history = append(run.history, domain.Message{Role: domain.RoleSystem, Content: a.deps.SystemPrompt})
	run.history = append(run.history, history...)

	ctx = domain.ContextWithIdentity(ctx, identity)
	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(
			tracer.StringAttr("agent.name", a.deps.Name),
			tracer.StringAttr("agent.run_id", run.id),
		),
	)
	defer span.End()

	answer, err := a.loop(ctx, run)
	span.SetAttributes(
		tracer.IntAttr("agent.steps", run.steps),
		tracer.StringAttr("agent.state", string(run.state)),
	)
	if err != nil {
		tracer.RecordError(span, err)
		metrics.RecordAgentRun(a.deps.Name, "error", run.steps)
		run.logger.Warn("agent run aborted", "steps", run.steps, "error", err)
		return domain.FinalAnswer{}, err
	}

	metrics.RecordAgentRun(a.deps.Name, string(answer.Status), run.steps)
	if answer.Status == domain.RunDone {
		tracer.SetOK(span)
	}
	return answer, nil
}

func (a *Agent) loop(ctx context.Context, run *agentRun) (domain.FinalAnswer, error) {
	const op = "Agent.Run"

	for {
		if err := ctx.Err(); err != nil {
			return domain.FinalAnswer{}, domain.WrapOp(op, err)
		}
		if run.steps >= a.deps.MaxSteps {
			return a.fail(run, domain.ErrStepBudget), nil
		}
		run.steps++
		run.state = stateThinking

		msg, err := a.decide(ctx, run)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Whatever came back after cancellation is discarded.
			return domain.FinalAnswer{}, domain.WrapOp(op, ctxErr)
		}
		if err != nil {
			if !errors.Is(err, domain.ErrProviderError) {
				err = fmt.Errorf("%w: %w", domain.ErrProviderError, err)
			}
			return domain.FinalAnswer{}, domain.NewDomainError(op, err, "llm decision failed")
		}
		run.history = append(run.history, msg)

		// Tool calls take precedence over any accompanying text.
		if len(msg.ToolCalls) == 0 {
			run.state = stateDone
			run.logger.Debug("agent run done", "steps", run.steps)
			return domain.FinalAnswer{
				Text:   msg.Content,
				Route:  a.deps.Route,
				Status: domain.RunDone,
				Steps:  run.steps,
			}, nil
		}

		run.state = stateAwaitingTools
		for _, call := range msg.ToolCalls {
			if err := ctx.Err(); err != nil {
				return domain.FinalAnswer{}, domain.WrapOp(op, err)
			}
			toolMsg, kind, err := a.execute(ctx, run, call)
			if err != nil {
				return domain.FinalAnswer{}, err
			}
			if err := ctx.Err(); err != nil {
				return domain.FinalAnswer{}, domain.WrapOp(op, err)
			}
			run.history = append(run.history, toolMsg)

			if kind == "" {
				continue
			}
			fp := fingerprint(call, kind)
			if _, seen := run.failures[fp]; seen {
				return a.fail(run, fmt.Errorf("%w: %s (%s)", domain.ErrRepeatedFailure, call.Name, kind)), nil
			}
			run.failures[fp] = struct{}{}
		}
	}
}

// decide asks the LLM for the next move.
func (a *Agent) decide(ctx context.Context, run *agentRun) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", a.deps.LLM.Name()),
			tracer.IntAttr("agent.step", run.steps),
		),
	)
	defer span.End()

	resp, err := a.deps.LLM.Chat(ctx, domain.ChatRequest{
		Messages:    domain.CloneMessages(run.history),
		Tools:       a.deps.Tools.Schemas(),
		Temperature: a.deps.Temperature,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Message{}, err
	}
	if resp == nil {
		err := fmt.Errorf("%w: empty response", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return domain.Message{}, err
	}

	msg := resp.Message
	msg.Role = domain.RoleAssistant
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call_" + newID()
		}
	}
	run.logger.Debug("llm decision",
		"step", run.steps,
		"tool_calls", len(msg.ToolCalls),
		"tokens", resp.Usage.TotalTokens,
	)
	tracer.SetOK(span)
	return msg, nil
}

// execute resolves and invokes one tool call. Recoverable failures come back
// as a tool message plus a non-empty failureKind; only an unavailable
// oracle or cancellation is returned as an error.
func (a *Agent) execute(ctx context.Context, run *agentRun, call domain.ToolCall) (domain.Message, failureKind, error) {
	spec, err := a.deps.Tools.Resolve(call.Name)
	if err != nil {
		run.logger.Warn("llm requested unknown tool", "tool", call.Name)
		return toolMessage(call, fmt.Sprintf("Tool %q does not exist. Use one of the listed tools.", call.Name), true), failUnknownTool, nil
	}

	result, err := a.deps.Tools.Invoke(ctx, spec, run.identity, call.Arguments)
	if err == nil {
		kind := failureKind("")
		if result.IsError {
			kind = failExecution
		}
		return toolMessage(call, result.Content, result.IsError), kind, nil
	}

	var denied *domain.PermissionDeniedError
	switch {
	case errors.Is(err, domain.ErrAuthorizationUnavailable):
		return domain.Message{}, "", err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Message{}, "", domain.WrapOp("Agent.Run", err)
	case errors.As(err, &denied):
		content := fmt.Sprintf("Permission denied: the user is not allowed to %s %ss, so %s cannot be used. Tell the user this action is not permitted.",
			denied.Action, denied.Resource, denied.Tool)
		return toolMessage(call, content, true), failDenied, nil
	case errors.Is(err, domain.ErrInvalidInput):
		run.logger.Info("tool arguments rejected", "tool", call.Name, "error", err)
		return toolMessage(call, fmt.Sprintf("The arguments for %s were invalid. Check the parameter schema and try again.", call.Name), true), failInvalidArgs, nil
	case errors.Is(err, domain.ErrToolNotFound):
		run.logger.Warn("tool vanished between resolve and invoke", "tool", call.Name)
		return toolMessage(call, fmt.Sprintf("Tool %q does not exist. Use one of the listed tools.", call.Name), true), failUnknownTool, nil
	default:
		run.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return toolMessage(call, fmt.Sprintf("%s failed to run. Try a different approach or tell the user it could not be done.", call.Name), true), failExecution, nil
	}
}

func (a *Agent) fail(run *agentRun, reason error) domain.FinalAnswer {
	run.state = stateFailed
	run.logger.Warn("agent run failed", "steps", run.steps, "reason", reason)
	return domain.FinalAnswer{
		Text:   FailureAnswer,
		Route:  a.deps.Route,
		Status: domain.RunFailed,
		Steps:  run.steps,
	}
}

func toolMessage(call domain.ToolCall, content string, isErr bool) domain.Message {
	return domain.Message{
		Role:      domain.RoleTool,
		Name:      call.Name,
		Content:   content,
		IsError:   isErr,
		ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
		Timestamp: time.Now(),
	}
}

// fingerprint identifies a failed call by tool, canonical arguments and
// failure kind. Re-marshaling sorts object keys, so argument order and
// whitespace do not matter.
func fingerprint(call domain.ToolCall, kind failureKind) string {
	args := string(call.Arguments)
	var v any
	if err := json.Unmarshal(call.Arguments, &v); err == nil {
		if canon, err := json.Marshal(v); err == nil {
			args = string(canon)
		}
	}
	return call.Name + "\x00" + args + "\x00" + string(kind)
}

// newID generates a ULID string.
func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

var _ domain.DomainAgent = (*Agent)(nil)
