package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"concierge-ai/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteDocumentStore implements domain.DocumentStore using SQLite.
type SQLiteDocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteDocumentStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteDocumentStore(dbPath string) (*SQLiteDocumentStore, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create document db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}
	if dbPath == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate document db: %w", err)
	}
	return &SQLiteDocumentStore{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			owner      TEXT NOT NULL,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			active     INTEGER NOT NULL DEFAULT 1,
			active_at  TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_active ON documents(active);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteDocumentStore) Close() error {
	return s.db.Close()
}

const selectColumns = "SELECT id, owner, title, content, active, active_at, created_at, updated_at FROM documents"

// List returns the active documents ordered by ID.
func (s *SQLiteDocumentStore) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, domain.WrapOp("SQLiteDocumentStore.List", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, domain.WrapOp("SQLiteDocumentStore.List", err)
		}
		docs = append(docs, *d)
	}
	return docs, domain.WrapOp("SQLiteDocumentStore.List", rows.Err())
}

// Get returns an active document.
func (s *SQLiteDocumentStore) Get(ctx context.Context, id int64) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ? AND active = 1", id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("SQLiteDocumentStore.Get", id)
	}
	if err != nil {
		return nil, domain.WrapOp("SQLiteDocumentStore.Get", err)
	}
	return d, nil
}

// Create inserts doc and fills in its ID and timestamps.
func (s *SQLiteDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	now := s.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.SyncActiveAt(now)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (owner, title, content, active, active_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		doc.Owner.String(), doc.Title, doc.Content, boolToInt(doc.Active), formatTimePtr(doc.ActiveAt),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.WrapOp("SQLiteDocumentStore.Create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WrapOp("SQLiteDocumentStore.Create", err)
	}
	doc.ID = id
	return nil
}

// Update applies the non-nil fields of upd to an active document.
func (s *SQLiteDocumentStore) Update(ctx context.Context, id int64, upd domain.DocumentUpdate) (*domain.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.WrapOp("SQLiteDocumentStore.Update", err)
	}
	defer tx.Rollback()

	d, err := scanDocument(tx.QueryRowContext(ctx, selectColumns+" WHERE id = ? AND active = 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("SQLiteDocumentStore.Update", id)
	}
	if err != nil {
		return nil, domain.WrapOp("SQLiteDocumentStore.Update", err)
	}

	if upd.Title != nil {
		d.Title = *upd.Title
	}
	if upd.Content != nil {
		d.Content = *upd.Content
	}
	if upd.Active != nil {
		d.Active = *upd.Active
	}
	now := s.now().UTC()
	d.UpdatedAt = now
	d.SyncActiveAt(now)

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET title = ?, content = ?, active = ?, active_at = ?, updated_at = ? WHERE id = ?",
		d.Title, d.Content, boolToInt(d.Active), formatTimePtr(d.ActiveAt), now.Format(time.RFC3339Nano), id,
	); err != nil {
		return nil, domain.WrapOp("SQLiteDocumentStore.Update", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.WrapOp("SQLiteDocumentStore.Update", err)
	}
	return d, nil
}

// Delete soft-deletes an active document.
func (s *SQLiteDocumentStore) Delete(ctx context.Context, id int64) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET active = 0, active_at = NULL, updated_at = ? WHERE id = ? AND active = 1",
		now, id,
	)
	if err != nil {
		return domain.WrapOp("SQLiteDocumentStore.Delete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("SQLiteDocumentStore.Delete", id)
	}
	return nil
}

func notFound(op string, id int64) error {
	return domain.NewDomainError(op, domain.ErrNotFound, "document "+strconv.FormatInt(id, 10))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		d                      domain.Document
		owner                  string
		active                 int
		activeAt               sql.NullString
		createdStr, updatedStr string
	)
	if err := row.Scan(&d.ID, &owner, &d.Title, &d.Content, &active, &activeAt, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	d.Owner = domain.Identity(owner)
	d.Active = active != 0
	if activeAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, activeAt.String); err == nil {
			d.ActiveAt = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
