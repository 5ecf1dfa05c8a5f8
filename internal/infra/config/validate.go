package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"concierge-ai/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateOracle(cfg, ve)
	validateDocuments(cfg, ve)
	validateMovies(cfg, ve)
	validateGateway(cfg, ve)
	validateAudit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxSteps <= 0 {
		ve.Add("agent.max_steps must be > 0")
	}
	if cfg.Agent.MaxSteps > 50 {
		ve.Add("agent.max_steps must be <= 50, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.Timeout < 0 {
		ve.Add("agent.timeout must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must not be empty")
		return
	}

	names := make(map[string]bool, len(cfg.LLM.Providers))
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name is required", i)
			continue
		}
		if names[p.Name] {
			ve.Add("llm.providers[%d].name %q is duplicated", i, p.Name)
		}
		names[p.Name] = true

		typ := p.Type
		if typ == "" {
			typ = p.Name
		}
		if !validProviderTypes[typ] {
			ve.Add("llm.providers[%d].type %q is not supported (want openai, anthropic or bedrock)", i, typ)
		}
		if p.BaseURL != "" {
			if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
				ve.Add("llm.providers[%d].base_url is invalid: %v", i, err)
			}
		}
	}

	if !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q is not a configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.ClassifierProvider != "" && !names[cfg.LLM.ClassifierProvider] {
		ve.Add("llm.classifier_provider %q is not a configured provider", cfg.LLM.ClassifierProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !names[fb] {
				ve.Add("llm.failover.fallbacks: %q is not a configured provider", fb)
			}
		}
	}
}

func validateOracle(cfg *Config, ve *ValidationError) {
	switch cfg.Oracle.Type {
	case "static":
		for id, roles := range cfg.Oracle.Identities {
			for _, r := range roles {
				if !domain.IsValidAuthRole(r) {
					ve.Add("oracle.identities[%s]: unknown role %q", id, r)
				}
			}
		}
	case "http":
		if cfg.Oracle.Endpoint == "" {
			ve.Add("oracle.endpoint is required when oracle.type is http")
		} else if _, err := url.ParseRequestURI(cfg.Oracle.Endpoint); err != nil {
			ve.Add("oracle.endpoint is invalid: %v", err)
		}
	default:
		ve.Add("oracle.type %q is not supported (want static or http)", cfg.Oracle.Type)
	}
	if cfg.Oracle.Timeout < 0 {
		ve.Add("oracle.timeout must be >= 0")
	}
}

func validateDocuments(cfg *Config, ve *ValidationError) {
	if cfg.Documents.Path == "" {
		ve.Add("documents.path is required")
	}
}

func validateMovies(cfg *Config, ve *ValidationError) {
	if cfg.Movies.BaseURL == "" {
		ve.Add("movies.base_url is required")
	} else if _, err := url.ParseRequestURI(cfg.Movies.BaseURL); err != nil {
		ve.Add("movies.base_url is invalid: %v", err)
	}
	if cfg.Movies.RequestsPerSecond < 0 {
		ve.Add("movies.requests_per_second must be >= 0")
	}
	if cfg.Movies.Burst < 0 {
		ve.Add("movies.burst must be >= 0")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is invalid: %v", cfg.Gateway.Addr, err)
	}
	if cfg.Gateway.MaxBodyBytes < 0 {
		ve.Add("gateway.max_body_bytes must be >= 0")
	}
	if cfg.Gateway.RateLimit.RequestsPerMin < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		ve.Add("gateway.rate_limit values must be >= 0")
	}
	for _, ip := range cfg.Gateway.RateLimit.TrustedProxies {
		if net.ParseIP(ip) == nil {
			ve.Add("gateway.rate_limit.trusted_proxies: %q is not an IP address", ip)
		}
	}
	seen := make(map[string]bool, len(cfg.Gateway.Tokens))
	for i, tok := range cfg.Gateway.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.tokens[%d].token is required", i)
		}
		if tok.Identity == "" {
			ve.Add("gateway.tokens[%d].identity is required", i)
		}
		if seen[tok.Token] && tok.Token != "" {
			ve.Add("gateway.tokens[%d] duplicates an earlier token", i)
		}
		seen[tok.Token] = true
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path is required when audit is enabled")
	}
	if cfg.Audit.MaxSizeMB < 0 || cfg.Audit.MaxBackups < 0 || cfg.Audit.MaxAgeDays < 0 {
		ve.Add("audit rotation limits must not be negative")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not supported", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is not supported (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is not supported (want noop or stdout)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1], got %g", cfg.Tracer.SampleRatio)
	}
}
