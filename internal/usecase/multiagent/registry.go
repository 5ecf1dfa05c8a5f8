package multiagent

import (
	"log/slog"
	"sort"
	"sync"

	"concierge-ai/internal/domain"
)

// Registry maps routing decisions onto the domain agents that handle them.
// It is filled at startup and read concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	agents map[domain.RoutingDecision]domain.DomainAgent
	logger *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		agents: make(map[domain.RoutingDecision]domain.DomainAgent),
		logger: logger,
	}
}

// Register binds agent to route. Unroutable cannot be bound: it never
// reaches an agent. Returns ErrDuplicate if route is already taken.
func (r *Registry) Register(route domain.RoutingDecision, agent domain.DomainAgent) error {
	if !route.IsValid() || route == domain.RouteUnroutable {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "cannot bind route "+string(route))
	}
	if agent == nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[route]; exists {
		return domain.ErrDuplicate
	}
	r.agents[route] = agent
	r.logger.Info("agent registered", "route", route, "agent", agent.Name())
	return nil
}

// Get returns the agent bound to route, or ErrAgentNotFound.
func (r *Registry) Get(route domain.RoutingDecision) (domain.DomainAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[route]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, string(route))
	}
	return agent, nil
}

// Routes lists the bound routes, sorted.
func (r *Registry) Routes() []domain.RoutingDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]domain.RoutingDecision, 0, len(r.agents))
	for route := range r.agents {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i] < routes[j] })
	return routes
}
