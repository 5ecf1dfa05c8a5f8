package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-ai/internal/domain"
)

// allowAll permits every check.
type allowAll struct{}

func (allowAll) Check(context.Context, domain.Identity, string, string) (bool, error) {
	return true, nil
}

func newDocumentRegistry(t *testing.T, store domain.DocumentStore) *Registry {
	t.Helper()
	reg := NewRegistry(allowAll{}, nil)
	require.NoError(t, reg.RegisterAll(NewDocumentTools(store, nil).Specs()))
	return reg
}

func invokeTool(t *testing.T, reg *Registry, name string, id domain.Identity, args string) (*domain.ToolResult, error) {
	t.Helper()
	spec, err := reg.Resolve(name)
	require.NoError(t, err)
	return reg.Invoke(context.Background(), spec, id, json.RawMessage(args))
}

func TestDocumentToolsPermissions(t *testing.T) {
	want := map[string]domain.Permission{
		"list_documents":  domain.PermDocumentRead,
		"get_document":    domain.PermDocumentRead,
		"create_document": domain.PermDocumentCreate,
		"update_document": domain.PermDocumentUpdate,
		"delete_document": domain.PermDocumentDelete,
	}
	for _, spec := range NewDocumentTools(newMemStore(), nil).Specs() {
		assert.Equal(t, want[spec.Name], spec.Permission, spec.Name)
	}
}

func TestDocumentCreateSetsOwner(t *testing.T) {
	store := newMemStore()
	reg := newDocumentRegistry(t, store)

	res, err := invokeTool(t, reg, "create_document", "manager_1", `{"title": "  Notes ", "content": "hello"}`)
	require.NoError(t, err)

	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(res.Content), &doc))
	assert.Equal(t, int64(1), doc.ID)
	assert.Equal(t, "Notes", doc.Title)
	assert.Equal(t, domain.Identity("manager_1"), doc.Owner)
	assert.True(t, doc.Active)
	assert.NotNil(t, doc.ActiveAt)
}

func TestDocumentCreateBlankTitle(t *testing.T) {
	reg := newDocumentRegistry(t, newMemStore())
	_, err := invokeTool(t, reg, "create_document", "manager_1", `{"title": "   "}`)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = invokeTool(t, reg, "create_document", "manager_1", `{"content": "no title"}`)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentListAndGet(t *testing.T) {
	store := newMemStore()
	reg := newDocumentRegistry(t, store)
	for _, title := range []string{"Alpha", "Beta"} {
		_, err := invokeTool(t, reg, "create_document", "manager_1", `{"title": "`+title+`"}`)
		require.NoError(t, err)
	}

	res, err := invokeTool(t, reg, "list_documents", "viewer_1", `{}`)
	require.NoError(t, err)
	var list []DocumentSummary
	require.NoError(t, json.Unmarshal([]byte(res.Content), &list))
	assert.Equal(t, []DocumentSummary{{ID: 1, Title: "Alpha"}, {ID: 2, Title: "Beta"}}, list)

	// No arguments at all is fine for list.
	_, err = reg.Invoke(context.Background(), &domain.ToolSpec{Name: "list_documents"}, "viewer_1", nil)
	require.NoError(t, err)

	res, err = invokeTool(t, reg, "get_document", "viewer_1", `{"document_id": 2}`)
	require.NoError(t, err)
	assert.Contains(t, res.Content, `"title":"Beta"`)
}

func TestDocumentNotFoundIsAResult(t *testing.T) {
	reg := newDocumentRegistry(t, newMemStore())

	for _, tc := range []struct{ tool, args string }{
		{"get_document", `{"document_id": 99}`},
		{"update_document", `{"document_id": 99, "title": "x"}`},
		{"delete_document", `{"document_id": 99}`},
	} {
		res, err := invokeTool(t, reg, tc.tool, "manager_1", tc.args)
		require.NoError(t, err, tc.tool)
		assert.JSONEq(t, `{"error":"Document not found."}`, res.Content, tc.tool)
		assert.False(t, res.IsError)
	}
}

func TestDocumentUpdateAndDelete(t *testing.T) {
	store := newMemStore()
	reg := newDocumentRegistry(t, store)
	_, err := invokeTool(t, reg, "create_document", "manager_1", `{"title": "Draft"}`)
	require.NoError(t, err)

	res, err := invokeTool(t, reg, "update_document", "manager_1", `{"document_id": 1, "content": "body"}`)
	require.NoError(t, err)
	assert.Contains(t, res.Content, `"content":"body"`)

	_, err = invokeTool(t, reg, "update_document", "manager_1", `{"document_id": 1}`)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	res, err = invokeTool(t, reg, "delete_document", "manager_1", `{"document_id": 1}`)
	require.NoError(t, err)
	assert.Equal(t, "Document 1 deleted.", res.Content)

	// Soft-deleted documents disappear from reads.
	res, err = invokeTool(t, reg, "get_document", "manager_1", `{"document_id": 1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Document not found."}`, res.Content)
}

func TestDocumentStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("database is locked")
	reg := newDocumentRegistry(t, store)

	_, err := invokeTool(t, reg, "list_documents", "manager_1", `{}`)
	assert.ErrorIs(t, err, domain.ErrToolFailure)
}
