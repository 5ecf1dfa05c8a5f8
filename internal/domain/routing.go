package domain

import "context"

// RoutingDecision names the agent a request is routed to.
type RoutingDecision string

const (
	RouteDocument   RoutingDecision = "document"
	RouteMovie      RoutingDecision = "movie"
	RouteUnroutable RoutingDecision = "unroutable"
)

// IsValid reports whether d is one of the known decisions.
func (d RoutingDecision) IsValid() bool {
	switch d {
	case RouteDocument, RouteMovie, RouteUnroutable:
		return true
	}
	return false
}

// Classifier maps the latest user message onto a routing decision.
// RouteUnroutable is a successful classification, not an error.
type Classifier interface {
	Classify(ctx context.Context, message string) (RoutingDecision, error)
}

// RunStatus is the terminal state of a request.
type RunStatus string

const (
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
	RunClarify RunStatus = "clarify"
)

// FinalAnswer is what the router hands back to its caller.
type FinalAnswer struct {
	Text   string          `json:"text"`
	Route  RoutingDecision `json:"route"`
	Status RunStatus       `json:"status"`
	Steps  int             `json:"steps"`
}

// DomainAgent is a bounded tool-use loop specialised to one task family.
// Run never mutates history; it works on its own copy.
type DomainAgent interface {
	Name() string
	Run(ctx context.Context, identity Identity, history []Message) (FinalAnswer, error)
}
