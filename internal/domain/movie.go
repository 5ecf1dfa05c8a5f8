package domain

import "context"

// Movie is a catalogue entry as returned by the external movie service.
type Movie struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	VoteAverage float64  `json:"vote_average,omitempty"`
	Runtime     int      `json:"runtime,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// MovieSearchResult is one page of search hits.
type MovieSearchResult struct {
	Page         int     `json:"page"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
	Results      []Movie `json:"results"`
}

// MovieCatalog looks movies up in an external catalogue.
type MovieCatalog interface {
	Search(ctx context.Context, query string, page int) (*MovieSearchResult, error)
	Get(ctx context.Context, id int64) (*Movie, error)
}
