// Package gateway exposes the router over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/infra/metrics"
	"concierge-ai/internal/infra/middleware"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodyBytes    = 1 << 20
	readHeaderTimeout      = 10 * time.Second
)

// Server is the HTTP gateway in front of the router.
type Server struct {
	router    Router
	auth      Authenticator
	cfg       config.GatewayConfig
	logger    *slog.Logger
	httpSrv   *http.Server
	boundAddr string
	ready     chan struct{}
}

// NewServer creates a gateway server.
func NewServer(router Router, auth Authenticator, cfg config.GatewayConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		router: router,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Handler builds the routed and wrapped handler. ctx bounds the lifetime of
// background work owned by the middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/route", instrument("/v1/route", &routeHandler{
		router:       s.router,
		auth:         s.auth,
		maxBodyBytes: s.cfg.MaxBodyBytes,
		logger:       s.logger,
	}))
	mux.Handle("GET /healthz", instrument("/healthz", http.HandlerFunc(healthHandler)))
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = middleware.RateLimit(ctx, s.cfg.RateLimit)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RequestID(h)
	h = middleware.Recover(s.logger)(h)
	return h
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. In-flight requests get up to ShutdownTimeout to finish.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(listener)
	}()
	s.logger.Info("gateway started", "addr", s.boundAddr)
	close(s.ready)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("gateway shutting down")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the actual address the server bound to. Only valid after Ready.
func (s *Server) BoundAddr() string { return s.boundAddr }

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(path, rec.status, time.Since(start))
	})
}
