package main

import (
	"fmt"
	"log/slog"

	"concierge-ai/internal/adapter/oracle"
	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/security"
	"concierge-ai/internal/usecase"
)

// SecurityComponents holds the permission oracle and the audit trail.
type SecurityComponents struct {
	Oracle domain.PermissionOracle
	// AuditLogger is nil when auditing is disabled.
	AuditLogger domain.AuditLogger
}

// initSecurity builds the oracle and the audit logger.
// Returns the components, a cleanup function, and any error.
func initSecurity(cfg *config.Config, log *slog.Logger) (*SecurityComponents, func(), error) {
	comp := &SecurityComponents{}
	cleanup := func() {}

	switch cfg.Oracle.Type {
	case "http":
		comp.Oracle = oracle.NewHTTPOracle(cfg.Oracle, nil, log)
		log.Info("permission oracle initialized",
			"type", "http",
			"endpoint", cfg.Oracle.Endpoint,
			"circuit_breaker", cfg.Oracle.CircuitBreaker.Enabled,
		)
	case "static", "":
		comp.Oracle = usecase.NewRBACOracle(cfg.Oracle.Identities)
		if len(cfg.Oracle.Identities) == 0 {
			log.Warn("static oracle has no identities, every tool call will be denied")
		}
		log.Info("permission oracle initialized", "type", "static", "identities", len(cfg.Oracle.Identities))
	default:
		return nil, nil, fmt.Errorf("oracle: unsupported type %q", cfg.Oracle.Type)
	}

	if cfg.Audit.Enabled {
		trail, err := security.NewAuditTrail(cfg.Audit)
		if err != nil {
			return nil, nil, fmt.Errorf("audit trail: %w", err)
		}
		comp.AuditLogger = trail
		cleanup = func() {
			if err := trail.Close(); err != nil {
				log.Warn("audit trail close failed", "error", err)
			}
		}
		log.Info("audit trail enabled", "path", trail.Path())
	}

	return comp, cleanup, nil
}
