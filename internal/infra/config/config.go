// Package config loads concierge settings: built-in defaults, then the YAML
// file, then CONCIERGE_* variables, then decryption of enc: secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"concierge-ai/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Documents DocumentsConfig `yaml:"documents"`
	Movies    MoviesConfig    `yaml:"movies"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Audit     AuditConfig     `yaml:"audit"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AgentConfig holds domain agent loop settings.
type AgentConfig struct {
	// MaxSteps bounds the number of LLM decisions one agent run may take.
	MaxSteps int           `yaml:"max_steps"`
	Timeout  time.Duration `yaml:"timeout"`
	// Optional prompt overrides; empty keeps the built-in prompts.
	ClassifierPrompt string `yaml:"classifier_prompt,omitempty"`
	DocumentPrompt   string `yaml:"document_prompt,omitempty"`
	MoviePrompt      string `yaml:"movie_prompt,omitempty"`
	Clarification    string `yaml:"clarification,omitempty"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string `yaml:"default_provider"`
	// ClassifierProvider names the provider used for routing; empty = default.
	ClassifierProvider string               `yaml:"classifier_provider,omitempty"`
	Providers          []ProviderConfig     `yaml:"providers"`
	Failover           FailoverConfig       `yaml:"failover"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// FailoverConfig lists providers tried in order when the default fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for remote calls.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai, anthropic, bedrock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// OracleConfig selects and configures the permission oracle.
type OracleConfig struct {
	Type     string        `yaml:"type"` // "static" or "http"
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	// Identities maps identity -> role names for the static oracle.
	Identities     map[string][]string  `yaml:"identities,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// DocumentsConfig holds document store settings.
type DocumentsConfig struct {
	Path string `yaml:"path"` // SQLite file; ":memory:" for an ephemeral store
}

// MoviesConfig holds movie catalogue client settings.
type MoviesConfig struct {
	BaseURL           string               `yaml:"base_url"`
	APIKey            string               `yaml:"api_key"`
	Language          string               `yaml:"language"`
	Timeout           time.Duration        `yaml:"timeout"`
	RequestsPerSecond float64              `yaml:"requests_per_second"`
	Burst             int                  `yaml:"burst"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Addr            string               `yaml:"addr"`
	ShutdownTimeout time.Duration        `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64                `yaml:"max_body_bytes"`
	Tokens          []GatewayTokenConfig `yaml:"tokens"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client-IP token bucket settings for the gateway.
// RequestsPerMin 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// GatewayTokenConfig binds a bearer token to the identity it acts as.
type GatewayTokenConfig struct {
	Name     string `yaml:"name"`
	Token    string `yaml:"token"`
	Identity string `yaml:"identity"`
}

// AuditConfig holds audit trail settings. Size limits follow lumberjack:
// zero means its defaults.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TracerConfig holds tracing settings. SampleRatio outside (0, 1) samples
// every root span.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns the persistent data directory under $HOME/.concierge.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".concierge")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Agent: AgentConfig{
			MaxSteps: 8,
			Timeout:  120 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{Name: "openai", Type: "openai", Model: "gpt-4o-mini"},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Oracle: OracleConfig{
			Type:    "static",
			Timeout: 5 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     15 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Documents: DocumentsConfig{
			Path: filepath.Join(dataDir, "documents.db"),
		},
		Movies: MoviesConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			Language:          "en-US",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 20,
			Burst:             5,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Gateway: GatewayConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit: RateLimitConfig{
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Audit: AuditConfig{
			Path:       filepath.Join(dataDir, "audit.jsonl"),
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 90,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tracer: TracerConfig{
			Exporter:    "noop",
			ServiceName: "concierge",
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration from path. A missing file leaves the
// defaults in place. Failures wrap domain.ErrConfigLoad.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if err := readFile(path, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	ApplyEnvOverrides(cfg)
	if key := os.Getenv(ConfigKeyEnv); key != "" {
		if err := decryptSecrets(cfg, key); err != nil {
			return nil, err
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	// Group or world write lets another user swap the oracle or the keys.
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		return fmt.Errorf("%s is writable by others (mode %o), want 0600 or 0644", path, perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// envBinding applies one CONCIERGE_* variable when it is set.
type envBinding struct {
	name  string
	apply func(cfg *Config, v string)
}

var envBindings = []envBinding{
	{"CONCIERGE_AGENT_MAX_STEPS", func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.MaxSteps = n
		}
	}},
	{"CONCIERGE_LLM_DEFAULT_PROVIDER", func(c *Config, v string) { c.LLM.DefaultProvider = v }},
	{"CONCIERGE_LLM_API_KEY", func(c *Config, v string) {
		if p := c.defaultProvider(); p != nil {
			p.APIKey = v
		}
	}},
	{"CONCIERGE_LLM_MODEL", func(c *Config, v string) {
		if p := c.defaultProvider(); p != nil {
			p.Model = v
		}
	}},
	{"CONCIERGE_ORACLE_TYPE", func(c *Config, v string) { c.Oracle.Type = v }},
	{"CONCIERGE_ORACLE_ENDPOINT", func(c *Config, v string) { c.Oracle.Endpoint = v }},
	{"CONCIERGE_ORACLE_API_KEY", func(c *Config, v string) { c.Oracle.APIKey = v }},
	{"CONCIERGE_DOCUMENTS_PATH", func(c *Config, v string) { c.Documents.Path = v }},
	{"CONCIERGE_MOVIES_BASE_URL", func(c *Config, v string) { c.Movies.BaseURL = v }},
	{"CONCIERGE_MOVIES_API_KEY", func(c *Config, v string) { c.Movies.APIKey = v }},
	{"CONCIERGE_GATEWAY_ADDR", func(c *Config, v string) { c.Gateway.Addr = v }},
	{"CONCIERGE_AUDIT_ENABLED", func(c *Config, v string) { c.Audit.Enabled = parseBool(v) }},
	{"CONCIERGE_AUDIT_PATH", func(c *Config, v string) { c.Audit.Path = v }},
	{"CONCIERGE_LOGGER_LEVEL", func(c *Config, v string) { c.Logger.Level = v }},
	{"CONCIERGE_LOGGER_FORMAT", func(c *Config, v string) { c.Logger.Format = v }},
	{"CONCIERGE_TRACER_ENABLED", func(c *Config, v string) { c.Tracer.Enabled = parseBool(v) }},
	{"CONCIERGE_TRACER_EXPORTER", func(c *Config, v string) { c.Tracer.Exporter = v }},
}

// ApplyEnvOverrides copies every set CONCIERGE_* variable into cfg.
// Unparseable numbers are ignored.
func ApplyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		if v, ok := os.LookupEnv(b.name); ok && v != "" {
			b.apply(cfg, v)
		}
	}
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// defaultProvider returns the entry named by LLM.DefaultProvider, or nil.
func (c *Config) defaultProvider() *ProviderConfig {
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].Name == c.LLM.DefaultProvider {
			return &c.LLM.Providers[i]
		}
	}
	return nil
}
