package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditAccessLog    AuditEventType = "access"
	AuditAccessDenied AuditEventType = "access_denied"
	AuditAccessError  AuditEventType = "access_error"
	AuditToolExec     AuditEventType = "tool_exec"
	AuditRouting      AuditEventType = "routing"
)

// AuditEvent represents a single auditable action.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Detail    map[string]string `json:"detail,omitempty"`

	Actor    string `json:"actor,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}

// Permission check outcomes recorded in audit events.
const (
	OutcomeAllow       = "allow"
	OutcomeDeny        = "deny"
	OutcomeUnavailable = "unavailable"
)

// NewPermissionAuditEvent builds the audit record for one oracle consultation.
func NewPermissionAuditEvent(identity Identity, tool string, perm Permission, outcome string) AuditEvent {
	typ := AuditAccessLog
	switch outcome {
	case OutcomeDeny:
		typ = AuditAccessDenied
	case OutcomeUnavailable:
		typ = AuditAccessError
	}
	return AuditEvent{
		Type:     typ,
		Actor:    identity.String(),
		Resource: perm.Resource,
		Action:   perm.Action,
		Outcome:  outcome,
		Detail:   map[string]string{"tool": tool},
	}
}

// NewRoutingAuditEvent builds the audit record for a routing decision.
func NewRoutingAuditEvent(identity Identity, decision RoutingDecision) AuditEvent {
	return AuditEvent{
		Type:    AuditRouting,
		Actor:   identity.String(),
		Outcome: string(decision),
	}
}
