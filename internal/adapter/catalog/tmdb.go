// Package catalog talks to the external movie catalogue.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/breaker"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/infra/logger"
	"concierge-ai/internal/infra/tracer"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

// TMDBCatalog implements domain.MovieCatalog against a TMDB-compatible API.
type TMDBCatalog struct {
	baseURL  string
	apiKey   string
	language string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	logger   *slog.Logger
}

// NewTMDBCatalog creates a catalogue client. A nil client gets one with the
// configured timeout.
func NewTMDBCatalog(cfg config.MoviesConfig, client *http.Client, logger *slog.Logger) *TMDBCatalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	c := &TMDBCatalog{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		client:   client,
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.CircuitBreaker.Enabled {
		// A missing movie is an answer, not an outage.
		c.breaker = breaker.New[[]byte]("catalog:tmdb", cfg.CircuitBreaker, logger, domain.ErrNotFound, context.Canceled)
	}
	return c
}

type tmdbMovie struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Overview    string      `json:"overview"`
	ReleaseDate string      `json:"release_date"`
	VoteAverage float64     `json:"vote_average"`
	Runtime     int         `json:"runtime"`
	Genres      []tmdbGenre `json:"genres"`
}

type tmdbGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbSearchResponse struct {
	Page         int         `json:"page"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
	Results      []tmdbMovie `json:"results"`
}

func (m tmdbMovie) toDomain() domain.Movie {
	movie := domain.Movie{
		ID:          m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
		VoteAverage: m.VoteAverage,
		Runtime:     m.Runtime,
	}
	for _, g := range m.Genres {
		movie.Genres = append(movie.Genres, g.Name)
	}
	return movie
}

// Search implements domain.MovieCatalog.
func (c *TMDBCatalog) Search(ctx context.Context, query string, page int) (*domain.MovieSearchResult, error) {
	if page < 1 {
		page = 1
	}
	ctx, span := tracer.StartSpan(ctx, "catalog.search",
		trace.WithAttributes(
			tracer.StringAttr("catalog.query", query),
			tracer.IntAttr("catalog.page", page),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")

	data, err := c.get(ctx, "/search/movie", params)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp tmdbSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		err = fmt.Errorf("%w: catalogue search response: %w", domain.ErrProviderError, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &domain.MovieSearchResult{
		Page:         resp.Page,
		TotalPages:   resp.TotalPages,
		TotalResults: resp.TotalResults,
		Results:      make([]domain.Movie, 0, len(resp.Results)),
	}
	for _, m := range resp.Results {
		result.Results = append(result.Results, m.toDomain())
	}
	span.SetAttributes(tracer.IntAttr("catalog.results", len(result.Results)))
	tracer.SetOK(span)
	return result, nil
}

// Get implements domain.MovieCatalog. Unknown IDs return domain.ErrNotFound.
func (c *TMDBCatalog) Get(ctx context.Context, id int64) (*domain.Movie, error) {
	ctx, span := tracer.StartSpan(ctx, "catalog.get",
		trace.WithAttributes(tracer.IntAttr("catalog.movie_id", int(id))),
	)
	defer span.End()

	if id <= 0 {
		return nil, domain.NewDomainError("TMDBCatalog.Get", domain.ErrNotFound, strconv.FormatInt(id, 10))
	}

	data, err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), url.Values{})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var m tmdbMovie
	if err := json.Unmarshal(data, &m); err != nil {
		err = fmt.Errorf("%w: catalogue movie response: %w", domain.ErrProviderError, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	movie := m.toDomain()
	tracer.SetOK(span)
	return &movie, nil
}

func (c *TMDBCatalog) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.WrapOp("catalog.ratelimit", err)
		}
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	if c.breaker == nil {
		return c.do(ctx, endpoint)
	}
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint)
	})
	if breaker.IsOpen(err) {
		return nil, fmt.Errorf("%w: movie catalogue: %w", domain.ErrCircuitOpen, err)
	}
	return data, err
}

func (c *TMDBCatalog) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: movie catalogue request: %w", domain.ErrProviderError, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read catalogue response: %w", domain.ErrProviderError, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: movie catalogue", domain.ErrRateLimit)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: movie catalogue rejected credentials", domain.ErrAuthInvalid)
	default:
		c.logger.Warn("movie catalogue error", "status", resp.StatusCode, "body", logger.Truncate(string(data), 200))
		return nil, fmt.Errorf("%w: movie catalogue returned %d", domain.ErrProviderError, resp.StatusCode)
	}
}

var _ domain.MovieCatalog = (*TMDBCatalog)(nil)
