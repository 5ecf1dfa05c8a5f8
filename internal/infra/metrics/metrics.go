// Package metrics records Prometheus metrics for routing, permission checks,
// tool invocations, agent runs and LLM calls. Collectors register on the default
// registry and are served by the gateway at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the counters below.
const (
	OutcomeAllow       = "allow"
	OutcomeDeny        = "deny"
	OutcomeUnavailable = "unavailable"
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid"
)

var (
	routingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_routing_decisions_total",
			Help: "Total routing decisions by outcome",
		},
		[]string{"decision"},
	)

	permissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_permission_checks_total",
			Help: "Total permission oracle checks",
		},
		[]string{"action", "resource", "outcome"},
	)

	toolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_tool_invocations_total",
			Help: "Total tool invocations",
		},
		[]string{"tool", "outcome"},
	)

	agentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_agent_runs_total",
			Help: "Total domain agent runs by terminal status",
		},
		[]string{"agent", "status"},
	)

	agentSteps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_agent_steps",
			Help:    "Reasoning steps taken per agent run",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 20, 50},
		},
		[]string{"agent"},
	)

	llmCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_llm_calls_total",
			Help: "Total LLM provider round trips",
		},
		[]string{"provider", "outcome"},
	)

	llmTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_llm_tokens_total",
			Help: "Tokens consumed by LLM calls",
		},
		[]string{"provider", "kind"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_llm_call_duration_seconds",
			Help:    "LLM provider round-trip latency in seconds",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
		[]string{"provider"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_http_requests_total",
			Help: "Total gateway HTTP requests",
		},
		[]string{"path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_http_request_duration_seconds",
			Help:    "Gateway HTTP request latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"path"},
	)
)

// RecordRouting counts one routing decision.
func RecordRouting(decision string) {
	routingDecisions.WithLabelValues(decision).Inc()
}

// RecordPermissionCheck counts one oracle consultation.
func RecordPermissionCheck(action, resource, outcome string) {
	permissionChecks.WithLabelValues(action, resource, outcome).Inc()
}

// RecordToolInvocation counts one tool invocation attempt.
func RecordToolInvocation(tool, outcome string) {
	toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// RecordAgentRun counts a finished agent run and observes its step count.
func RecordAgentRun(agent, status string, steps int) {
	agentRuns.WithLabelValues(agent, status).Inc()
	agentSteps.WithLabelValues(agent).Observe(float64(steps))
}

// RecordLLMCall records one provider round trip. Token counts are only
// added for successful calls.
func RecordLLMCall(provider, outcome string, duration time.Duration, promptTokens, completionTokens int) {
	llmCalls.WithLabelValues(provider, outcome).Inc()
	llmDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
		llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordHTTPRequest records a served gateway request.
func RecordHTTPRequest(path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(path).Observe(duration.Seconds())
}
