package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/breaker"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/infra/logger"
	"concierge-ai/internal/infra/tracer"
)

// maxResponseBody bounds how much of a decision response is read.
const maxResponseBody = 64 * 1024

const defaultTimeout = 5 * time.Second

// checkRequest is the body POSTed to <endpoint>/allowed.
type checkRequest struct {
	User     checkUser     `json:"user"`
	Action   string        `json:"action"`
	Resource checkResource `json:"resource"`
}

type checkUser struct {
	Key string `json:"key"`
}

type checkResource struct {
	Type string `json:"type"`
}

// checkResponse uses a pointer so a missing "allow" is detectable.
type checkResponse struct {
	Allow *bool `json:"allow"`
}

// HTTPOracle asks a remote policy decision point whether an identity may
// perform an action on a resource type. Every failure path surfaces as
// domain.ErrAuthorizationUnavailable; nothing but {"allow": true} allows.
type HTTPOracle struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[bool]
	logger  *slog.Logger
}

// NewHTTPOracle creates an oracle client from config.
func NewHTTPOracle(cfg config.OracleConfig, client *http.Client, logger *slog.Logger) *HTTPOracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &HTTPOracle{
		url:    strings.TrimRight(cfg.Endpoint, "/") + "/allowed",
		apiKey: cfg.APIKey,
		client: client,
		logger: logger,
	}
	if cfg.CircuitBreaker.Enabled {
		o.breaker = breaker.New[bool]("oracle", cfg.CircuitBreaker, logger, context.Canceled)
	}
	return o
}

// Check implements domain.PermissionOracle.
func (o *HTTPOracle) Check(ctx context.Context, identity domain.Identity, action, resource string) (bool, error) {
	ctx, span := tracer.StartSpan(ctx, "oracle.check",
		trace.WithAttributes(
			tracer.StringAttr("oracle.action", action),
			tracer.StringAttr("oracle.resource", resource),
		),
	)
	defer span.End()

	var (
		allowed bool
		err     error
	)
	if o.breaker != nil {
		allowed, err = o.breaker.Execute(func() (bool, error) {
			return o.do(ctx, identity, action, resource)
		})
	} else {
		allowed, err = o.do(ctx, identity, action, resource)
	}
	if err != nil {
		tracer.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller gave up; the decision point is not at fault.
			return false, domain.WrapOp("HTTPOracle.Check", ctxErr)
		}
		if breaker.IsOpen(err) {
			err = fmt.Errorf("oracle circuit open: %w", err)
		}
		o.logger.Warn("permission oracle check failed",
			"identity", identity, "action", action, "resource", resource, "error", err)
		return false, domain.NewDomainError("HTTPOracle.Check", domain.ErrAuthorizationUnavailable, err.Error())
	}

	span.SetAttributes(tracer.BoolAttr("oracle.allowed", allowed))
	tracer.SetOK(span)
	return allowed, nil
}

func (o *HTTPOracle) do(ctx context.Context, identity domain.Identity, action, resource string) (bool, error) {
	body, err := json.Marshal(checkRequest{
		User:     checkUser{Key: identity.String()},
		Action:   action,
		Resource: checkResource{Type: resource},
	})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("decision point returned %d: %s", resp.StatusCode, logger.Truncate(string(data), 200))
	}

	var decision checkResponse
	if err := json.Unmarshal(data, &decision); err != nil {
		return false, fmt.Errorf("malformed decision: %w", err)
	}
	if decision.Allow == nil {
		return false, fmt.Errorf("malformed decision: missing \"allow\"")
	}
	return *decision.Allow, nil
}

var _ domain.PermissionOracle = (*HTTPOracle)(nil)
