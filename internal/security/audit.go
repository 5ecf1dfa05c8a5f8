// Package security keeps the audit trail: one JSON line per routing decision,
// permission check and tool execution.
package security

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

const auditOp = "security.AuditTrail.Log"

var errTrailClosed = errors.New("audit trail closed")

// AuditTrail appends events to a size-rotated JSONL file. New files are
// created with mode 0600.
type AuditTrail struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	out    *lumberjack.Logger
	enc    *json.Encoder
	closed bool
}

// NewAuditTrail prepares the trail described by cfg. The file itself is
// opened on the first write.
func NewAuditTrail(cfg config.AuditConfig) (*AuditTrail, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &AuditTrail{path: cfg.Path, now: time.Now, out: out, enc: enc}, nil
}

// Log stamps event with the time, the caller and the request id carried by
// ctx, then appends it. The event is also attached to the active span.
func (a *AuditTrail) Log(ctx context.Context, event domain.AuditEvent) error {
	event = a.stamp(ctx, event)

	a.mu.Lock()
	err := errTrailClosed
	if !a.closed {
		err = a.enc.Encode(event)
	}
	a.mu.Unlock()
	if err != nil {
		return domain.NewDomainError(auditOp, domain.ErrAuditWrite, err.Error())
	}

	annotateSpan(ctx, event)
	return nil
}

func (a *AuditTrail) stamp(ctx context.Context, event domain.AuditEvent) domain.AuditEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Actor == "" {
		if id, ok := domain.IdentityFromContext(ctx); ok {
			event.Actor = id.String()
		}
	}
	reqID := domain.RequestIDFromContext(ctx)
	if reqID == "" {
		return event
	}
	detail := make(map[string]string, len(event.Detail)+1)
	for k, v := range event.Detail {
		detail[k] = v
	}
	detail["request_id"] = reqID
	event.Detail = detail
	return event
}

func annotateSpan(ctx context.Context, event domain.AuditEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("audit.actor", event.Actor),
		attribute.String("audit.outcome", event.Outcome),
	}
	if event.Resource != "" {
		attrs = append(attrs, attribute.String("audit.resource", event.Resource))
	}
	for k, v := range event.Detail {
		attrs = append(attrs, attribute.String("audit.detail."+k, v))
	}
	span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
}

// Path is the active trail file.
func (a *AuditTrail) Path() string { return a.path }

// Close releases the file. Later writes fail with ErrAuditWrite.
func (a *AuditTrail) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.out.Close()
}

// ReadAuditTrail returns the events in the trail file at path that keep
// reports true, oldest first. A nil keep returns every event.
func ReadAuditTrail(path string, keep func(domain.AuditEvent) bool) ([]domain.AuditEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []domain.AuditEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev domain.AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if keep == nil || keep(ev) {
			events = append(events, ev)
		}
	}
	return events, sc.Err()
}

// NoopAuditLogger drops every event.
type NoopAuditLogger struct{}

func (NoopAuditLogger) Log(context.Context, domain.AuditEvent) error { return nil }
func (NoopAuditLogger) Close() error                                 { return nil }
