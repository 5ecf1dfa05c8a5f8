package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/infra/metrics"
)

func startTestServer(t *testing.T, router Router) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	srv := NewServer(router, NewStaticTokenAuth(testTokens()), config.GatewayConfig{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return srv, cancel, done
}

func TestServerServesAndShutsDown(t *testing.T) {
	router := &fakeRouter{answer: domain.FinalAnswer{Text: "ok", Route: domain.RouteMovie, Status: domain.RunDone}}
	srv, cancel, done := startTestServer(t, router)

	req, err := http.NewRequest(http.MethodPost, "http://"+srv.BoundAddr()+"/v1/route", strings.NewReader(oneMessage))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-viewer")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"route":"movie"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	metrics.RecordRouting(string(domain.RouteDocument))
	srv, cancel, done := startTestServer(t, &fakeRouter{})
	defer func() {
		cancel()
		<-done
	}()

	resp, err := http.Get("http://" + srv.BoundAddr() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "concierge_routing_decisions_total")
}

func TestServerListenError(t *testing.T) {
	srv := NewServer(&fakeRouter{}, NewStaticTokenAuth(nil), config.GatewayConfig{Addr: "256.0.0.1:bad"}, nil)
	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway listen")
}
