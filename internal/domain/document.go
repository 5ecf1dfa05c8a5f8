package domain

import (
	"context"
	"time"
)

// Document is a titled piece of text owned by a user. Inactive documents are
// soft-deleted: they stay in storage but are invisible to reads.
type Document struct {
	ID        int64      `json:"id"`
	Owner     Identity   `json:"owner"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	Active    bool       `json:"active"`
	ActiveAt  *time.Time `json:"active_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SyncActiveAt keeps ActiveAt consistent with Active before a save: it is
// stamped the first time a document is active and cleared when it is not.
func (d *Document) SyncActiveAt(now time.Time) {
	switch {
	case d.Active && d.ActiveAt == nil:
		t := now
		d.ActiveAt = &t
	case !d.Active:
		d.ActiveAt = nil
	}
}

// DocumentUpdate carries the optional fields of a partial update.
type DocumentUpdate struct {
	Title   *string
	Content *string
	Active  *bool
}

// DocumentStore persists documents. Get, Update and Delete return an error
// wrapping ErrNotFound for missing or inactive documents.
type DocumentStore interface {
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id int64) (*Document, error)
	Create(ctx context.Context, doc *Document) error
	Update(ctx context.Context, id int64, upd DocumentUpdate) (*Document, error)
	Delete(ctx context.Context, id int64) error
}
