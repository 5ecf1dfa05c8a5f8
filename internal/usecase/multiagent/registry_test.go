package multiagent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"concierge-ai/internal/domain"
)

// stubAgent returns a fixed answer and records what it was given.
type stubAgent struct {
	mu      sync.Mutex
	name    string
	answer  domain.FinalAnswer
	err     error
	runs    int
	lastID  domain.Identity
	lastLen int
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Run(_ context.Context, identity domain.Identity, history []domain.Message) (domain.FinalAnswer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs++
	a.lastID = identity
	a.lastLen = len(history)
	// Appending to the received slice must never leak back to the caller.
	_ = append(history, domain.Message{Role: domain.RoleAssistant, Content: "scribble"})
	if len(history) > 0 {
		history[0].Content = "overwritten by agent"
	}
	return a.answer, a.err
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	agent := &stubAgent{name: "documents"}
	if err := r.Register(domain.RouteDocument, agent); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := r.Get(domain.RouteDocument)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "documents" {
		t.Errorf("Name = %q, want %q", got.Name(), "documents")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(domain.RouteMovie, &stubAgent{name: "movies"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(domain.RouteMovie, &stubAgent{name: "movies-2"})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegistryRejectsBadRoutes(t *testing.T) {
	r := NewRegistry(nil)
	for _, route := range []domain.RoutingDecision{domain.RouteUnroutable, "weather", ""} {
		if err := r.Register(route, &stubAgent{}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Register(%q) = %v, want ErrInvalidInput", route, err)
		}
	}
	if err := r.Register(domain.RouteDocument, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Register(nil agent) = %v, want ErrInvalidInput", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get(domain.RouteMovie)
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestRegistryRoutesSorted(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(domain.RouteMovie, &stubAgent{name: "movies"})
	r.Register(domain.RouteDocument, &stubAgent{name: "documents"})

	routes := r.Routes()
	if len(routes) != 2 || routes[0] != domain.RouteDocument || routes[1] != domain.RouteMovie {
		t.Errorf("Routes = %v", routes)
	}
}

func TestRegistryConcurrentGet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(domain.RouteDocument, &stubAgent{name: "documents"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get(domain.RouteDocument); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
}
