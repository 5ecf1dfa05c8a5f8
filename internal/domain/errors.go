package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	// Routing and authorization infrastructure. Both are retryable service
	// errors and must never be downgraded to a deny or a routing miss.
	ErrAuthorizationUnavailable = fmt.Errorf("authorization provider unavailable")
	ErrRoutingUnavailable       = fmt.Errorf("routing classifier unavailable")

	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrToolFailure      = fmt.Errorf("tool execution failed")
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrStepBudget       = fmt.Errorf("agent exceeded step budget")
	ErrRepeatedFailure  = fmt.Errorf("tool call failed repeatedly")

	ErrConfigLoad  = fmt.Errorf("failed to load configuration")
	ErrDecryption  = fmt.Errorf("decryption failed")
	ErrAuditWrite  = fmt.Errorf("audit log write failed")
	ErrAuthInvalid = fmt.Errorf("authentication failed")

	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)

	// Upstream API errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrCircuitOpen     = fmt.Errorf("circuit breaker open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Invoke")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PermissionDeniedError reports an explicit deny from the permission oracle
// for the permission a tool requires.
type PermissionDeniedError struct {
	Tool     string
	Action   string
	Resource string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s: tool %q requires %q on %q", ErrPermissionDenied, e.Tool, e.Action, e.Resource)
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// IsRetryableError reports whether err is a transient infrastructure error
// that a caller may retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrAuthorizationUnavailable) ||
		errors.Is(err, ErrRoutingUnavailable) ||
		errors.Is(err, ErrProviderError) ||
		errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for monitoring and API bodies.
type ErrorCode string

const (
	CodeUnknown                  ErrorCode = "UNKNOWN"
	CodeNotFound                 ErrorCode = "NOT_FOUND"
	CodeDuplicate                ErrorCode = "DUPLICATE"
	CodeTimeout                  ErrorCode = "TIMEOUT"
	CodePermissionDenied         ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput             ErrorCode = "INVALID_INPUT"
	CodeProviderError            ErrorCode = "PROVIDER_ERROR"
	CodeAuthorizationUnavailable ErrorCode = "AUTHORIZATION_UNAVAILABLE"
	CodeRoutingUnavailable       ErrorCode = "ROUTING_UNAVAILABLE"
	CodeToolNotFound             ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure              ErrorCode = "TOOL_FAILURE"
	CodeAgentNotFound            ErrorCode = "AGENT_NOT_FOUND"
	CodeProviderNotFound         ErrorCode = "PROVIDER_NOT_FOUND"
	CodeStepBudget               ErrorCode = "STEP_BUDGET"
	CodeRepeatedFailure          ErrorCode = "REPEATED_FAILURE"
	CodeConfigLoad               ErrorCode = "CONFIG_LOAD"
	CodeDecryption               ErrorCode = "DECRYPTION"
	CodeAuditWrite               ErrorCode = "AUDIT_WRITE"
	CodeAuthInvalid              ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth              ErrorCode = "GATEWAY_AUTH"
	CodeContextOverflow          ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit                ErrorCode = "RATE_LIMIT"
	CodeCircuitOpen              ErrorCode = "CIRCUIT_OPEN"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrPermissionDenied: CodePermissionDenied,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrAuthorizationUnavailable: CodeAuthorizationUnavailable,
	ErrRoutingUnavailable:       CodeRoutingUnavailable,
	ErrToolNotFound:             CodeToolNotFound,
	ErrToolFailure:              CodeToolFailure,
	ErrAgentNotFound:            CodeAgentNotFound,
	ErrProviderNotFound:         CodeProviderNotFound,
	ErrStepBudget:               CodeStepBudget,
	ErrRepeatedFailure:          CodeRepeatedFailure,
	ErrConfigLoad:               CodeConfigLoad,
	ErrDecryption:               CodeDecryption,
	ErrAuditWrite:               CodeAuditWrite,
	ErrAuthInvalid:              CodeAuthInvalid,
	ErrGatewayAuthFailed:        CodeGatewayAuth,
	ErrContextOverflow:          CodeContextOverflow,
	ErrRateLimit:                CodeRateLimit,
	ErrCircuitOpen:              CodeCircuitOpen,
}

// codePriority lists sentinels from most to least specific. Errors often wrap
// more than one sentinel (ErrGatewayAuthFailed wraps ErrAuthInvalid, an
// oracle outage may wrap ErrCircuitOpen); the first match wins.
var codePriority = []error{
	ErrAuthorizationUnavailable,
	ErrRoutingUnavailable,
	ErrGatewayAuthFailed,
	ErrToolNotFound,
	ErrToolFailure,
	ErrAgentNotFound,
	ErrProviderNotFound,
	ErrStepBudget,
	ErrRepeatedFailure,
	ErrConfigLoad,
	ErrDecryption,
	ErrAuditWrite,
	ErrContextOverflow,
	ErrRateLimit,
	ErrCircuitOpen,
	ErrAuthInvalid,
	ErrPermissionDenied,
	ErrNotFound,
	ErrDuplicate,
	ErrInvalidInput,
	ErrProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It matches sentinels anywhere in the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
