package llm

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"concierge-ai/internal/domain"
)

// Registry indexes the configured providers by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]domain.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]domain.LLMProvider)}
}

// Register indexes p under p.Name(). Names must be unique and non-empty.
func (r *Registry) Register(p domain.LLMProvider) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: provider name is empty", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("%w: provider %q already registered", domain.ErrDuplicate, name)
	}
	r.byName[name] = p
	return nil
}

func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	p, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Resolve returns the provider called name. When fallbacks are given the
// result is a FailoverProvider trying them in order after name fails.
// Every name must already be registered.
func (r *Registry) Resolve(name string, fallbacks []string, logger *slog.Logger) (domain.LLMProvider, error) {
	primary, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if len(fallbacks) == 0 {
		return primary, nil
	}

	chain := make([]domain.LLMProvider, 0, len(fallbacks))
	for _, fb := range fallbacks {
		if fb == name {
			return nil, fmt.Errorf("%w: provider %q cannot be its own fallback", domain.ErrInvalidInput, name)
		}
		p, err := r.Get(fb)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	return NewFailoverProvider(primary, chain, logger), nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
