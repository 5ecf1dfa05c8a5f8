package main

import (
	"fmt"
	"log/slog"

	"concierge-ai/internal/adapter/catalog"
	"concierge-ai/internal/adapter/store"
	"concierge-ai/internal/adapter/tool"
	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/usecase"
	"concierge-ai/internal/usecase/multiagent"
)

const documentAgentPrompt = `You manage the user's documents. Use the document tools to list, read, create, update or delete documents.
Never invent document ids: list documents first when you do not know one.
When a tool reports that access was denied, tell the user plainly and do not retry the same action.
Answer briefly once the task is done.`

const movieAgentPrompt = `You help the user find movies. Use search_movies to find titles and get_movie for details such as release date, runtime, genres and rating.
Only state facts returned by the tools. If nothing matches, say so and suggest a different search.
Answer briefly once you have what the user asked for.`

// AgentComponents holds the domain collaborators and the agents built on them.
type AgentComponents struct {
	Documents *store.SQLiteDocumentStore
	Catalog   *catalog.TMDBCatalog
	Agents    *multiagent.Registry
}

// initAgents builds the document and movie agents, each with its own tool
// registry guarded by the shared oracle.
// Returns the components, a cleanup function, and any error.
func initAgents(cfg *config.Config, llm domain.LLMProvider, sec *SecurityComponents, log *slog.Logger) (*AgentComponents, func(), error) {
	docs, err := store.NewSQLiteDocumentStore(cfg.Documents.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("document store: %w", err)
	}
	cleanup := func() {
		if err := docs.Close(); err != nil {
			log.Warn("document store close failed", "error", err)
		}
	}
	log.Info("document store opened", "path", cfg.Documents.Path)

	movies := catalog.NewTMDBCatalog(cfg.Movies, nil, log)
	if cfg.Movies.APIKey == "" {
		log.Warn("movies.api_key not set, catalogue requests will be rejected")
	}

	var regOpts []tool.RegistryOption
	if sec.AuditLogger != nil {
		regOpts = append(regOpts, tool.WithAuditLogger(sec.AuditLogger))
	}

	docTools := tool.NewRegistry(sec.Oracle, log.With("tools", "document"), regOpts...)
	if err := docTools.RegisterAll(tool.NewDocumentTools(docs, log).Specs()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("document tools: %w", err)
	}
	movieTools := tool.NewRegistry(sec.Oracle, log.With("tools", "movie"), regOpts...)
	if err := movieTools.RegisterAll(tool.NewMovieTools(movies, log).Specs()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("movie tools: %w", err)
	}

	agents := multiagent.NewRegistry(log)
	bindings := []struct {
		route  domain.RoutingDecision
		tools  domain.ToolInvoker
		prompt string
	}{
		{domain.RouteDocument, docTools, orDefault(cfg.Agent.DocumentPrompt, documentAgentPrompt)},
		{domain.RouteMovie, movieTools, orDefault(cfg.Agent.MoviePrompt, movieAgentPrompt)},
	}
	for _, b := range bindings {
		agent := usecase.NewAgent(usecase.AgentDeps{
			Name:         string(b.route),
			Route:        b.route,
			LLM:          llm,
			Tools:        b.tools,
			SystemPrompt: b.prompt,
			MaxSteps:     cfg.Agent.MaxSteps,
			Logger:       log,
		})
		if err := agents.Register(b.route, agent); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("register %s agent: %w", b.route, err)
		}
	}

	log.Info("agents ready", "routes", agents.Routes())

	return &AgentComponents{
		Documents: docs,
		Catalog:   movies,
		Agents:    agents,
	}, cleanup, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
