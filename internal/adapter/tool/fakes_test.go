package tool

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"concierge-ai/internal/domain"
)

type oracleCall struct {
	Identity domain.Identity
	Action   string
	Resource string
}

// fakeOracle answers from a fixed allow set and records every call.
type fakeOracle struct {
	mu      sync.Mutex
	allowed map[string]bool // "identity|action|resource"
	err     error
	calls   []oracleCall
}

func newFakeOracle(allowed ...string) *fakeOracle {
	o := &fakeOracle{allowed: make(map[string]bool)}
	for _, a := range allowed {
		o.allowed[a] = true
	}
	return o
}

func (o *fakeOracle) Check(_ context.Context, id domain.Identity, action, resource string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, oracleCall{id, action, resource})
	if o.err != nil {
		return false, o.err
	}
	return o.allowed[string(id)+"|"+action+"|"+resource], nil
}

// countingExecutor records how often it ran.
type countingExecutor struct {
	mu     sync.Mutex
	calls  int
	lastID domain.Identity
	result *domain.ToolResult
	err    error
}

func (e *countingExecutor) Execute(ctx context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastID, _ = domain.IdentityFromContext(ctx)
	return e.result, e.err
}

// memStore is an in-memory domain.DocumentStore.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]*domain.Document
	err    error
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, docs: make(map[int64]*domain.Document)}
}

func (s *memStore) List(context.Context) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Document
	for _, d := range s.docs {
		if d.Active {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Get(_ context.Context, id int64) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || !d.Active {
		return nil, domain.NewDomainError("memStore.Get", domain.ErrNotFound, "")
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	now := time.Now()
	doc.ID = s.nextID
	s.nextID++
	doc.CreatedAt, doc.UpdatedAt = now, now
	doc.SyncActiveAt(now)
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memStore) Update(_ context.Context, id int64, upd domain.DocumentUpdate) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || !d.Active {
		return nil, domain.NewDomainError("memStore.Update", domain.ErrNotFound, "")
	}
	if upd.Title != nil {
		d.Title = *upd.Title
	}
	if upd.Content != nil {
		d.Content = *upd.Content
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || !d.Active {
		return domain.NewDomainError("memStore.Delete", domain.ErrNotFound, "")
	}
	d.Active = false
	d.SyncActiveAt(time.Now())
	return nil
}

// fakeCatalog serves a fixed movie list.
type fakeCatalog struct {
	movies    []domain.Movie
	err       error
	lastQuery string
	lastPage  int
}

func (c *fakeCatalog) Search(_ context.Context, query string, page int) (*domain.MovieSearchResult, error) {
	c.lastQuery, c.lastPage = query, page
	if c.err != nil {
		return nil, c.err
	}
	return &domain.MovieSearchResult{Page: page, TotalPages: 1, TotalResults: len(c.movies), Results: c.movies}, nil
}

func (c *fakeCatalog) Get(_ context.Context, id int64) (*domain.Movie, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, m := range c.movies {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, domain.NewDomainError("fakeCatalog.Get", domain.ErrNotFound, "")
}
