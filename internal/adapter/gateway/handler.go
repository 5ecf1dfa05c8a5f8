package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"concierge-ai/internal/domain"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "5"

// statusClientClosedRequest is recorded when the caller went away mid-request.
const statusClientClosedRequest = 499

// Router is the core entry point the gateway delegates to.
type Router interface {
	Route(ctx context.Context, identity domain.Identity, history []domain.Message) (domain.FinalAnswer, error)
}

// RouteRequest is the body of POST /v1/route. The caller sends the whole
// conversation every time.
type RouteRequest struct {
	Messages []MessageBody `json:"messages" validate:"required,min=1,max=100,dive"`
}

// MessageBody is one conversation turn supplied by the caller.
type MessageBody struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"max=16000"`
}

// RouteResponse is the success body of POST /v1/route.
type RouteResponse struct {
	Answer    string `json:"answer"`
	Route     string `json:"route"`
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      domain.ErrorCode  `json:"code"`
	Retryable bool              `json:"retryable"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type routeHandler struct {
	router       Router
	auth         Authenticator
	maxBodyBytes int64
	logger       *slog.Logger
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := domain.RequestIDFromContext(ctx)

	client, err := h.auth.Authenticate(bearerToken(r))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="concierge"`)
		writeError(w, http.StatusUnauthorized, ErrorResponse{
			Error:     "invalid or missing bearer token",
			Code:      domain.ErrorCodeOf(err),
			RequestID: requestID,
		})
		return
	}

	var req RouteRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, ErrorResponse{
			Error:     "malformed request body",
			Code:      domain.CodeInvalidInput,
			RequestID: requestID,
		})
		return
	}
	if fields := validationFields(validate.Struct(req)); fields != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Error:     "request validation failed",
			Code:      domain.CodeInvalidInput,
			RequestID: requestID,
			Fields:    fields,
		})
		return
	}

	history := make([]domain.Message, len(req.Messages))
	for i, m := range req.Messages {
		history[i] = domain.Message{Role: domain.Role(m.Role), Content: m.Content}
	}

	logger := h.logger.With("request_id", requestID, "client", client.Name, "identity", client.Identity)
	answer, err := h.router.Route(ctx, client.Identity, history)
	if err != nil {
		h.writeRouteError(w, logger, requestID, err)
		return
	}

	logger.Info("request routed", "route", answer.Route, "status", answer.Status, "steps", answer.Steps)
	writeJSON(w, http.StatusOK, RouteResponse{
		Answer:    answer.Text,
		Route:     string(answer.Route),
		Status:    string(answer.Status),
		RequestID: requestID,
	})
}

func (h *routeHandler) writeRouteError(w http.ResponseWriter, logger *slog.Logger, requestID string, err error) {
	code := domain.ErrorCodeOf(err)
	resp := ErrorResponse{Code: code, RequestID: requestID}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		resp.Error = "the request took too long to complete"
		resp.Code = domain.CodeTimeout
		resp.Retryable = true
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusGatewayTimeout, resp)
	case errors.Is(err, context.Canceled):
		logger.Info("request cancelled by client")
		resp.Error = "request cancelled"
		resp.Code = domain.CodeTimeout
		writeError(w, statusClientClosedRequest, resp)
	case domain.IsRetryableError(err):
		logger.Warn("request failed on a dependency", "code", code, "error", err)
		resp.Error = "a dependency is temporarily unavailable, retry shortly"
		resp.Retryable = true
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, resp)
	case errors.Is(err, domain.ErrInvalidInput):
		resp.Error = "the request could not be processed"
		writeError(w, http.StatusBadRequest, resp)
	default:
		logger.Error("request failed", "code", code, "error", err)
		resp.Error = "internal error"
		writeError(w, http.StatusInternalServerError, resp)
	}
}

// validationFields flattens validator errors into json-path -> message.
func validationFields(err error) map[string]string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonPath(fe.Namespace())] = fieldMessage(fe)
	}
	return fields
}

// jsonPath turns "RouteRequest.Messages[0].Role" into "messages[0].role".
func jsonPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	return strings.ToLower(rest)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must contain at most %s item(s)", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	if resp.Code == "" {
		resp.Code = domain.CodeUnknown
	}
	writeJSON(w, status, resp)
}
