package gateway

import (
	"errors"
	"net/http/httptest"
	"testing"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

func testTokens() []config.GatewayTokenConfig {
	return []config.GatewayTokenConfig{
		{Name: "web", Token: "tok-viewer", Identity: "viewer_1"},
		{Name: "ops", Token: "tok-manager", Identity: "manager_1"},
	}
}

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth(testTokens())

	info, err := auth.Authenticate("tok-manager")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "ops" || info.Identity != "manager_1" {
		t.Errorf("info = %+v", info)
	}

	// Callers get a copy, not the shared entry.
	info.Identity = "someone_else"
	again, _ := auth.Authenticate("tok-manager")
	if again.Identity != "manager_1" {
		t.Errorf("entry was mutated through returned info")
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth(testTokens())

	for _, tok := range []string{"wrong-token", "", "tok-viewe"} {
		_, err := auth.Authenticate(tok)
		if !errors.Is(err, domain.ErrGatewayAuthFailed) {
			t.Errorf("Authenticate(%q) err = %v, want ErrGatewayAuthFailed", tok, err)
		}
	}
}

func TestStaticTokenAuthSkipsEmptyTokens(t *testing.T) {
	auth := NewStaticTokenAuth([]config.GatewayTokenConfig{{Name: "blank", Identity: "x"}})
	if _, err := auth.Authenticate(""); err == nil {
		t.Fatal("empty token must never authenticate")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc ": "abc",
		"Basic abc":   "",
		"abc":         "",
		"":            "",
	}
	for header, want := range tests {
		r := httptest.NewRequest("POST", "/v1/route", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := bearerToken(r); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
