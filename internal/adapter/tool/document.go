package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/tracer"
)

const documentNotFound = "Document not found."

// DocumentSummary is the list_documents entry.
type DocumentSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// DocumentTools builds the document domain's tool specs over a store.
type DocumentTools struct {
	store  domain.DocumentStore
	logger *slog.Logger
}

// NewDocumentTools creates the document tool set.
func NewDocumentTools(store domain.DocumentStore, logger *slog.Logger) *DocumentTools {
	return &DocumentTools{store: store, logger: orDiscard(logger)}
}

type documentIDParams struct {
	DocumentID int64 `json:"document_id"`
}

type createDocumentParams struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateDocumentParams struct {
	DocumentID int64   `json:"document_id"`
	Title      *string `json:"title"`
	Content    *string `json:"content"`
}

var documentIDProperty = map[string]any{
	"type":        "integer",
	"minimum":     1,
	"description": "ID of the document",
}

// Specs returns list, get, create, update and delete specs, each bound to
// the permission it requires.
func (t *DocumentTools) Specs() []domain.ToolSpec {
	return []domain.ToolSpec{
		{
			Name:        "list_documents",
			Description: "List the active documents with their IDs and titles.",
			Parameters:  objectSchema(map[string]any{}),
			Permission:  domain.PermDocumentRead,
			Executor:    Typed("tool.list_documents", t.logger, t.list),
		},
		{
			Name:        "get_document",
			Description: "Get a single active document by ID, including its content.",
			Parameters:  objectSchema(map[string]any{"document_id": documentIDProperty}, "document_id"),
			Permission:  domain.PermDocumentRead,
			Executor:    Typed("tool.get_document", t.logger, t.get),
		},
		{
			Name:        "create_document",
			Description: "Create a new document with a title and optional content.",
			Parameters: objectSchema(map[string]any{
				"title":   map[string]any{"type": "string", "minLength": 1, "maxLength": 200, "description": "Document title"},
				"content": map[string]any{"type": "string", "description": "Document body"},
			}, "title"),
			Permission: domain.PermDocumentCreate,
			Executor:   Typed("tool.create_document", t.logger, t.create),
		},
		{
			Name:        "update_document",
			Description: "Change the title and/or content of an existing document.",
			Parameters: objectSchema(map[string]any{
				"document_id": documentIDProperty,
				"title":       map[string]any{"type": "string", "minLength": 1, "maxLength": 200},
				"content":     map[string]any{"type": "string"},
			}, "document_id"),
			Permission: domain.PermDocumentUpdate,
			Executor:   Typed("tool.update_document", t.logger, t.update),
		},
		{
			Name:        "delete_document",
			Description: "Delete a document by ID.",
			Parameters:  objectSchema(map[string]any{"document_id": documentIDProperty}, "document_id"),
			Permission:  domain.PermDocumentDelete,
			Executor:    Typed("tool.delete_document", t.logger, t.delete),
		},
	}
}

func (t *DocumentTools) list(ctx context.Context, span trace.Span, _ struct{}) (any, error) {
	docs, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("documents.count", len(docs)))
	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentSummary{ID: d.ID, Title: d.Title})
	}
	return out, nil
}

func (t *DocumentTools) get(ctx context.Context, _ trace.Span, p documentIDParams) (any, error) {
	doc, err := t.store.Get(ctx, p.DocumentID)
	if errors.Is(err, domain.ErrNotFound) {
		return notFound{Error: documentNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *DocumentTools) create(ctx context.Context, _ trace.Span, p createDocumentParams) (any, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, domain.NewDomainError("tool.create_document", domain.ErrInvalidInput, "title must not be blank")
	}
	owner, _ := domain.IdentityFromContext(ctx)
	doc := &domain.Document{
		Owner:   owner,
		Title:   title,
		Content: p.Content,
		Active:  true,
	}
	if err := t.store.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *DocumentTools) update(ctx context.Context, _ trace.Span, p updateDocumentParams) (any, error) {
	if p.Title == nil && p.Content == nil {
		return nil, domain.NewDomainError("tool.update_document", domain.ErrInvalidInput, "nothing to update")
	}
	if p.Title != nil {
		trimmed := strings.TrimSpace(*p.Title)
		if trimmed == "" {
			return nil, domain.NewDomainError("tool.update_document", domain.ErrInvalidInput, "title must not be blank")
		}
		p.Title = &trimmed
	}
	doc, err := t.store.Update(ctx, p.DocumentID, domain.DocumentUpdate{Title: p.Title, Content: p.Content})
	if errors.Is(err, domain.ErrNotFound) {
		return notFound{Error: documentNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *DocumentTools) delete(ctx context.Context, _ trace.Span, p documentIDParams) (any, error) {
	err := t.store.Delete(ctx, p.DocumentID)
	if errors.Is(err, domain.ErrNotFound) {
		return notFound{Error: documentNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Document %d deleted.", p.DocumentID), nil
}
