package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/metrics"
	"concierge-ai/internal/infra/tracer"
)

// registered pairs a spec with its compiled argument schema.
type registered struct {
	spec   domain.ToolSpec
	schema *jsonschema.Schema
}

// Registry holds the tools of one domain and is the only place their
// executors are called from. Every Invoke consults the permission oracle
// first; a deny or an oracle failure means the executor never runs.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registered
	order  []string
	oracle domain.PermissionOracle
	audit  domain.AuditLogger
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAuditLogger records every permission decision and execution.
func WithAuditLogger(a domain.AuditLogger) RegistryOption {
	return func(r *Registry) { r.audit = a }
}

// NewRegistry creates an empty tool registry guarded by oracle.
func NewRegistry(oracle domain.PermissionOracle, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]*registered),
		oracle: oracle,
		logger: orDiscard(logger),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool. Returns error if the name is taken, the tool has no
// executor or permission, or its parameter schema does not compile.
func (r *Registry) Register(spec domain.ToolSpec) error {
	if spec.Name == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "tool name is required")
	}
	if spec.Executor == nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, spec.Name+": executor is required")
	}
	if spec.Permission.Action == "" || spec.Permission.Resource == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, spec.Name+": permission is required")
	}

	var schema *jsonschema.Schema
	if len(spec.Parameters) > 0 && string(spec.Parameters) != "null" {
		compiled, err := jsonschema.NewCompiler().Compile([]byte(spec.Parameters))
		if err != nil {
			return fmt.Errorf("compile schema for %q: %w", spec.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, spec.Name)
	}
	r.tools[spec.Name] = &registered{spec: spec, schema: schema}
	r.order = append(r.order, spec.Name)
	return nil
}

// RegisterAll registers specs in order, stopping at the first error.
func (r *Registry) RegisterAll(specs []domain.ToolSpec) error {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// Resolve looks a tool up by name. The returned spec is a copy without its
// executor: the only way to run a tool is through Invoke.
func (r *Registry) Resolve(name string) (*domain.ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Resolve", domain.ErrToolNotFound, name)
	}
	spec := reg.spec
	spec.Executor = nil
	return &spec, nil
}

// Schemas returns the tool schemas in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].spec.Schema())
	}
	return schemas
}

// Invoke checks identity's permission for spec and, when allowed, validates
// args and runs the executor with identity in the context.
//
// Errors:
//   - wraps domain.ErrAuthorizationUnavailable when the oracle cannot decide
//   - wraps ctx.Err() when the caller gives up during the check
//   - *domain.PermissionDeniedError on an explicit deny
//   - wraps domain.ErrInvalidInput when args do not match the schema
//   - wraps domain.ErrToolFailure when the executor fails
func (r *Registry) Invoke(ctx context.Context, spec *domain.ToolSpec, identity domain.Identity, args json.RawMessage) (*domain.ToolResult, error) {
	r.mu.RLock()
	reg, ok := r.tools[spec.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Invoke", domain.ErrToolNotFound, spec.Name)
	}
	perm := reg.spec.Permission

	ctx = domain.ContextWithIdentity(ctx, identity)
	ctx, span := tracer.StartSpan(ctx, "tool.invoke",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", spec.Name),
			tracer.StringAttr("tool.permission", perm.String()),
		),
	)
	defer span.End()

	if err := r.authorize(ctx, span, identity, spec.Name, perm); err != nil {
		return nil, err
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := validateArgs(reg.schema, args); err != nil {
		tracer.RecordError(span, err)
		metrics.RecordToolInvocation(spec.Name, metrics.OutcomeInvalid)
		return nil, domain.NewDomainError("Registry.Invoke", domain.ErrInvalidInput, err.Error())
	}

	result, err := reg.spec.Executor.Execute(ctx, args)
	if err != nil {
		tracer.RecordError(span, err)
		metrics.RecordToolInvocation(spec.Name, metrics.OutcomeError)
		r.logger.Warn("tool execution failed", "tool", spec.Name, "identity", identity, "error", err)
		r.record(ctx, domain.AuditEvent{
			Type:     domain.AuditToolExec,
			Actor:    identity.String(),
			Resource: perm.Resource,
			Action:   perm.Action,
			Outcome:  metrics.OutcomeError,
			Detail:   map[string]string{"tool": spec.Name},
		})
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrToolFailure, spec.Name, err)
	}
	if result == nil {
		result = &domain.ToolResult{}
	}

	tracer.SetOK(span)
	metrics.RecordToolInvocation(spec.Name, metrics.OutcomeSuccess)
	r.record(ctx, domain.AuditEvent{
		Type:     domain.AuditToolExec,
		Actor:    identity.String(),
		Resource: perm.Resource,
		Action:   perm.Action,
		Outcome:  metrics.OutcomeSuccess,
		Detail:   map[string]string{"tool": spec.Name},
	})
	return result, nil
}

// authorize consults the oracle for exactly (identity, perm.Action, perm.Resource).
func (r *Registry) authorize(ctx context.Context, span trace.Span, identity domain.Identity, tool string, perm domain.Permission) error {
	allowed, err := r.oracle.Check(ctx, identity, perm.Action, perm.Resource)
	switch {
	case err != nil && ctx.Err() != nil:
		tracer.RecordError(span, err)
		return domain.WrapOp("Registry.Invoke", ctx.Err())

	case err != nil:
		if !errors.Is(err, domain.ErrAuthorizationUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrAuthorizationUnavailable, err)
		}
		tracer.RecordError(span, err)
		metrics.RecordPermissionCheck(perm.Action, perm.Resource, metrics.OutcomeUnavailable)
		r.record(ctx, domain.NewPermissionAuditEvent(identity, tool, perm, domain.OutcomeUnavailable))
		r.logger.Error("permission oracle unavailable", "tool", tool, "identity", identity, "error", err)
		return domain.NewDomainError("Registry.Invoke", err, tool)

	case !allowed:
		denied := &domain.PermissionDeniedError{Tool: tool, Action: perm.Action, Resource: perm.Resource}
		span.SetAttributes(tracer.BoolAttr("tool.allowed", false))
		metrics.RecordPermissionCheck(perm.Action, perm.Resource, metrics.OutcomeDeny)
		r.record(ctx, domain.NewPermissionAuditEvent(identity, tool, perm, domain.OutcomeDeny))
		r.logger.Info("permission denied", "tool", tool, "identity", identity, "permission", perm.String())
		return denied
	}

	span.SetAttributes(tracer.BoolAttr("tool.allowed", true))
	metrics.RecordPermissionCheck(perm.Action, perm.Resource, metrics.OutcomeAllow)
	r.record(ctx, domain.NewPermissionAuditEvent(identity, tool, perm, domain.OutcomeAllow))
	return nil
}

func (r *Registry) record(ctx context.Context, ev domain.AuditEvent) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, ev); err != nil {
		r.logger.Warn("audit write failed", "type", ev.Type, "error", err)
	}
}

// validateArgs checks raw JSON arguments against a compiled schema.
func validateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	var data any
	if err := json.Unmarshal(args, &data); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if schema == nil {
		return nil
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("arguments do not match schema: %s", result.Error())
	}
	return nil
}
