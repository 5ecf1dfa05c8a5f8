package tool

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/tracer"
)

const movieNotFound = "Movie not found."

// MovieTools builds the movie domain's tool specs over a catalogue.
type MovieTools struct {
	catalog domain.MovieCatalog
	logger  *slog.Logger
}

// NewMovieTools creates the movie tool set.
func NewMovieTools(catalog domain.MovieCatalog, logger *slog.Logger) *MovieTools {
	return &MovieTools{catalog: catalog, logger: orDiscard(logger)}
}

type searchMoviesParams struct {
	Query string `json:"query"`
	Page  int    `json:"page"`
}

type getMovieParams struct {
	MovieID int64 `json:"movie_id"`
}

// Specs returns the search and lookup specs. Both only read the catalogue.
func (t *MovieTools) Specs() []domain.ToolSpec {
	return []domain.ToolSpec{
		{
			Name:        "search_movies",
			Description: "Search the movie catalogue by title or keywords.",
			Parameters: objectSchema(map[string]any{
				"query": map[string]any{"type": "string", "minLength": 1, "description": "Search text"},
				"page":  map[string]any{"type": "integer", "minimum": 1, "maximum": 500, "description": "Result page, starting at 1"},
			}, "query"),
			Permission: domain.PermMovieRead,
			Executor:   Typed("tool.search_movies", t.logger, t.search),
		},
		{
			Name:        "get_movie",
			Description: "Get details for a movie by its catalogue ID.",
			Parameters: objectSchema(map[string]any{
				"movie_id": map[string]any{"type": "integer", "minimum": 1, "description": "Catalogue ID of the movie"},
			}, "movie_id"),
			Permission: domain.PermMovieRead,
			Executor:   Typed("tool.get_movie", t.logger, t.get),
		},
	}
}

func (t *MovieTools) search(ctx context.Context, span trace.Span, p searchMoviesParams) (any, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, domain.NewDomainError("tool.search_movies", domain.ErrInvalidInput, "query must not be blank")
	}
	if p.Page < 1 {
		p.Page = 1
	}
	res, err := t.catalog.Search(ctx, query, p.Page)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("movies.results", len(res.Results)))
	return res, nil
}

func (t *MovieTools) get(ctx context.Context, _ trace.Span, p getMovieParams) (any, error) {
	movie, err := t.catalog.Get(ctx, p.MovieID)
	if errors.Is(err, domain.ErrNotFound) {
		return notFound{Error: movieNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return movie, nil
}
