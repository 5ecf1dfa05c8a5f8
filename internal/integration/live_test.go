//go:build integration

// Package integration runs the agents against live providers. Each test
// skips unless the credential it needs is exported.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"concierge-ai/internal/adapter/llm"
	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

const liveTimeout = 90 * time.Second

// live returns the value of the credential in env plus a context bounded by
// liveTimeout, or skips the test.
func live(t *testing.T, env string) (context.Context, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("live provider test skipped in -short mode")
	}
	secret := os.Getenv(env)
	if secret == "" {
		t.Skipf("%s not set", env)
	}
	ctx, cancel := context.WithTimeout(context.Background(), liveTimeout)
	t.Cleanup(cancel)
	return ctx, secret
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openAI(key string) domain.LLMProvider {
	return llm.NewOpenAIProvider(config.ProviderConfig{
		Name:   "openai",
		Type:   "openai",
		APIKey: key,
		Model:  envOr("OPENAI_MODEL", "gpt-4o-mini"),
	}, nil)
}

func anthropic(key string) domain.LLMProvider {
	return llm.NewAnthropicProvider(config.ProviderConfig{
		Name:   "anthropic",
		Type:   "anthropic",
		APIKey: key,
		Model:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
	}, nil)
}
