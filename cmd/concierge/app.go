package main

import (
	"context"
	"fmt"
	"log/slog"

	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/infra/logger"
	"concierge-ai/internal/infra/tracer"
	"concierge-ai/internal/usecase/multiagent"
)

// app is the fully wired process: config, logging, tracing and the router.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	llm        *LLMComponents
	security   *SecurityComponents
	agents     *AgentComponents
	supervisor *multiagent.Supervisor
	cleanups   []func()
}

// buildApp loads config from path and wires every component.
// The returned app must be closed.
func buildApp(ctx context.Context, path string) (a *app, err error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a = &app{cfg: cfg, log: log}
	a.cleanups = append(a.cleanups, func() { _ = closeLog() })
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.cleanups = append(a.cleanups, func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	})

	a.llm, err = initLLM(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	sec, cleanupSec, err := initSecurity(cfg, log)
	if err != nil {
		return nil, err
	}
	a.security = sec
	a.cleanups = append(a.cleanups, cleanupSec)

	agents, cleanupAgents, err := initAgents(cfg, a.llm.DefaultLLM, sec, log)
	if err != nil {
		return nil, err
	}
	a.agents = agents
	a.cleanups = append(a.cleanups, cleanupAgents)

	a.supervisor = multiagent.NewSupervisor(multiagent.SupervisorDeps{
		Classifier:    multiagent.NewLLMClassifier(a.llm.ClassifierLLM, log,
			multiagent.WithClassifierPrompt(cfg.Agent.ClassifierPrompt)),
		Agents:        agents.Agents,
		Audit:         sec.AuditLogger,
		Logger:        log,
		Clarification: cfg.Agent.Clarification,
		Timeout:       cfg.Agent.Timeout,
	})

	log.Info("concierge ready",
		"default_llm", a.llm.DefaultLLM.Name(),
		"classifier_llm", a.llm.ClassifierLLM.Name(),
		"providers", a.llm.Registry.List(),
		"oracle", cfg.Oracle.Type,
		"max_steps", cfg.Agent.MaxSteps,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
