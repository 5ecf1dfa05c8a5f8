package main

import (
	"context"
	"fmt"
	"log/slog"

	"concierge-ai/internal/adapter/llm"
	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

// LLMComponents are the providers the router and the agents talk to.
type LLMComponents struct {
	Registry *llm.Registry
	// DefaultLLM drives the agents. It is the failover chain when enabled.
	DefaultLLM    domain.LLMProvider
	ClassifierLLM domain.LLMProvider
}

type providerFactory func(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error)

var providerFactories = map[string]providerFactory{
	"openai": func(_ context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
		return llm.NewOpenAIProvider(pc, log), nil
	},
	"anthropic": func(_ context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
		return llm.NewAnthropicProvider(pc, log), nil
	},
	"bedrock": func(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
		return llm.NewBedrockProvider(ctx, pc, log)
	},
}

// initLLM registers every configured provider, behind a circuit breaker
// when enabled, then resolves the default and classifier providers.
func initLLM(ctx context.Context, cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	breaker := cfg.LLM.CircuitBreaker
	registry := llm.NewRegistry()
	for _, pc := range cfg.LLM.Providers {
		p, err := buildProvider(ctx, pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
		if breaker.Enabled {
			p = llm.NewCircuitBreakerProvider(p, breaker, log)
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	log.Info("llm providers ready",
		"providers", registry.List(),
		"circuit_breaker", breaker.Enabled,
		"max_failures", breaker.MaxFailures,
	)

	var fallbacks []string
	if cfg.LLM.Failover.Enabled {
		fallbacks = cfg.LLM.Failover.Fallbacks
	}
	comp := &LLMComponents{Registry: registry}
	var err error
	if comp.DefaultLLM, err = registry.Resolve(cfg.LLM.DefaultProvider, fallbacks, log); err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}
	if fo, ok := comp.DefaultLLM.(*llm.FailoverProvider); ok {
		log.Info("llm failover chain", "providers", fo.Providers())
	}

	comp.ClassifierLLM = comp.DefaultLLM
	if name := cfg.LLM.ClassifierProvider; name != "" && name != cfg.LLM.DefaultProvider {
		if comp.ClassifierLLM, err = registry.Get(name); err != nil {
			return nil, fmt.Errorf("classifier llm provider: %w", err)
		}
	}
	return comp, nil
}

// buildProvider picks the factory by type, or by name when type is empty.
func buildProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	typ := pc.Type
	if typ == "" {
		typ = pc.Name
	}
	factory, ok := providerFactories[typ]
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q", typ)
	}
	return factory(ctx, pc, log)
}
