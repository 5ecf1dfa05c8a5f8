package llm

import (
	"net"
	"net/http"
	"time"

	"concierge-ai/internal/infra/config"
)

// Pool and timeout defaults, sized for a handful of API hosts with many
// concurrent long-running requests.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second

	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewHTTPClient builds the pooled client shared by a provider's SDK. The
// overall timeout covers dialing plus waiting for response headers.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	connect := orPositive(cfg.ConnTimeout, defaultConnTimeout)
	respond := orPositive(cfg.RespTimeout, defaultRespTimeout)
	pool := cfg.Pool

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respond,
		MaxIdleConns:          orPositive(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   orPositive(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       orPositive(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       orPositive(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: connect + respond}
}

func orPositive[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
