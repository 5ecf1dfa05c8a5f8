package llm

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-ai/internal/infra/config"
)

func TestNewHTTPClientDefaults(t *testing.T) {
	c := NewHTTPClient(config.ProviderConfig{})
	assert.Equal(t, defaultConnTimeout+defaultRespTimeout, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok, "transport = %T", c.Transport)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
}

func TestNewHTTPClientCustomPool(t *testing.T) {
	c := NewHTTPClient(config.ProviderConfig{
		ConnTimeout: time.Second,
		RespTimeout: 2 * time.Second,
		Pool:        config.PoolConfig{MaxIdleConns: 3, MaxConnsPerHost: 4, IdleConnTimeout: time.Minute},
	})
	tr := c.Transport.(*http.Transport)

	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, 3, tr.MaxIdleConns)
	assert.Equal(t, 4, tr.MaxConnsPerHost)
	assert.Equal(t, time.Minute, tr.IdleConnTimeout)
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost, "unset fields keep defaults")
}
