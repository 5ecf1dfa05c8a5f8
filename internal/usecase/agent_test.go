package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-ai/internal/domain"
)

// --- Fakes ---

// scriptedLLM replays a fixed list of assistant messages. Once the script
// runs out it keeps repeating the last entry.
type scriptedLLM struct {
	mu       sync.Mutex
	script   []domain.Message
	err      error
	requests []domain.ChatRequest
	onChat   func()
}

func (s *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.onChat != nil {
		s.onChat()
	}
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return &domain.ChatResponse{Message: s.script[idx]}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// fakeInvoker answers Invoke from a per-tool table of results or errors.
type fakeInvoker struct {
	mu      sync.Mutex
	known   map[string]domain.Permission
	results map[string]*domain.ToolResult
	errs    map[string]error
	invoked []string
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		known: map[string]domain.Permission{
			"list_documents":  domain.PermDocumentRead,
			"delete_document": domain.PermDocumentDelete,
		},
		results: make(map[string]*domain.ToolResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeInvoker) Resolve(name string) (*domain.ToolSpec, error) {
	perm, ok := f.known[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return &domain.ToolSpec{Name: name, Permission: perm}, nil
}

func (f *fakeInvoker) Invoke(_ context.Context, spec *domain.ToolSpec, _ domain.Identity, _ json.RawMessage) (*domain.ToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, spec.Name)
	if err := f.errs[spec.Name]; err != nil {
		return nil, err
	}
	if res := f.results[spec.Name]; res != nil {
		return res, nil
	}
	return &domain.ToolResult{Content: "ok"}, nil
}

func (f *fakeInvoker) Schemas() []domain.ToolSchema {
	return []domain.ToolSchema{{Name: "list_documents"}, {Name: "delete_document"}}
}

func toolCallMsg(calls ...domain.ToolCall) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, ToolCalls: calls}
}

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func answer(text string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: text}
}

func userHistory(text string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: text}}
}

func newTestAgent(llm domain.LLMProvider, tools domain.ToolInvoker, maxSteps int) *Agent {
	return NewAgent(AgentDeps{
		Name:         "documents",
		Route:        domain.RouteDocument,
		LLM:          llm,
		Tools:        tools,
		SystemPrompt: "You manage documents.",
		MaxSteps:     maxSteps,
	})
}

// --- Tests ---

func TestAgentDirectAnswer(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{answer("You have no documents.")}}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("list my docs"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunDone, got.Status)
	assert.Equal(t, domain.RouteDocument, got.Route)
	assert.Equal(t, "You have no documents.", got.Text)
	assert.Equal(t, 1, got.Steps)

	require.Len(t, llm.requests, 1)
	msgs := llm.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You manage documents.", msgs[0].Content)
	assert.Equal(t, "list my docs", msgs[1].Content)
	assert.Len(t, llm.requests[0].Tools, 2)
}

func TestAgentToolThenAnswer(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{
		toolCallMsg(call("c1", "list_documents", `{}`)),
		answer("Here they are."),
	}}
	tools := newFakeInvoker()
	tools.results["list_documents"] = &domain.ToolResult{Content: `[{"id":1,"title":"Notes"}]`}
	agent := newTestAgent(llm, tools, 0)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("list"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunDone, got.Status)
	assert.Equal(t, 2, got.Steps)
	assert.Equal(t, []string{"list_documents"}, tools.invoked)

	second := llm.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, domain.RoleTool, last.Role)
	assert.Equal(t, "list_documents", last.Name)
	assert.Equal(t, `[{"id":1,"title":"Notes"}]`, last.Content)
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "c1", last.ToolCalls[0].ID)
}

func TestAgentToolCallsTakePrecedenceOverContent(t *testing.T) {
	first := toolCallMsg(call("c1", "list_documents", `{}`))
	first.Content = "Let me check."
	llm := &scriptedLLM{script: []domain.Message{first, answer("Done.")}}
	tools := newFakeInvoker()
	agent := newTestAgent(llm, tools, 0)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("list"))
	require.NoError(t, err)
	assert.Equal(t, "Done.", got.Text)
	assert.Equal(t, []string{"list_documents"}, tools.invoked)
}

func TestAgentStepBudget(t *testing.T) {
	// Different arguments every time so the repeated-failure rule never fires.
	llm := &scriptedLLM{}
	for i := 0; i < 10; i++ {
		llm.script = append(llm.script, toolCallMsg(call(fmt.Sprint(i), "list_documents", fmt.Sprintf(`{"n":%d}`, i))))
	}
	agent := newTestAgent(llm, newFakeInvoker(), 3)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("loop forever"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, FailureAnswer, got.Text)
	assert.Equal(t, 3, got.Steps)
	assert.Equal(t, 3, llm.calls())
}

func TestAgentDefaultStepBudget(t *testing.T) {
	llm := &scriptedLLM{}
	for i := 0; i < 20; i++ {
		llm.script = append(llm.script, toolCallMsg(call("", "list_documents", fmt.Sprintf(`{"n":%d}`, i))))
	}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("loop"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, DefaultMaxSteps, llm.calls())
}

func TestAgentPermissionDenied(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{
		toolCallMsg(call("c1", "delete_document", `{"document_id":1}`)),
		answer("You are not allowed to delete documents."),
	}}
	tools := newFakeInvoker()
	tools.errs["delete_document"] = &domain.PermissionDeniedError{
		Tool: "delete_document", Action: domain.ActionDelete, Resource: domain.ResourceDocument,
	}
	agent := newTestAgent(llm, tools, 0)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("delete document 1"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunDone, got.Status)
	assert.Equal(t, "You are not allowed to delete documents.", got.Text)

	msgs := llm.requests[1].Messages
	toolMsg := msgs[len(msgs)-1]
	assert.True(t, toolMsg.IsError)
	assert.Contains(t, toolMsg.Content, "delete_document")
	assert.Contains(t, toolMsg.Content, "delete")
	assert.Contains(t, toolMsg.Content, "Permission denied")
}

func TestAgentRepeatedFailure(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		err   error
		argsB string
	}{
		{"denied twice", "delete_document", &domain.PermissionDeniedError{Tool: "delete_document", Action: "delete", Resource: "document"}, `{"document_id":1}`},
		{"unknown tool twice", "drop_tables", nil, `{}`},
		{"execution error twice", "list_documents", fmt.Errorf("%w: boom", domain.ErrToolFailure), `{}`},
		{"key order ignored", "delete_document", &domain.PermissionDeniedError{Tool: "delete_document"}, `{ "document_id" : 1 }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argsA := `{"document_id":1}`
			if tt.tool != "delete_document" {
				argsA = `{}`
			}
			llm := &scriptedLLM{script: []domain.Message{
				toolCallMsg(call("a", tt.tool, argsA)),
				toolCallMsg(call("b", tt.tool, tt.argsB)),
				answer("should not be reached"),
			}}
			tools := newFakeInvoker()
			if tt.err != nil {
				tools.errs[tt.tool] = tt.err
			}
			agent := newTestAgent(llm, tools, 0)

			got, err := agent.Run(context.Background(), "viewer_1", userHistory("try"))
			require.NoError(t, err)
			assert.Equal(t, domain.RunFailed, got.Status)
			assert.Equal(t, FailureAnswer, got.Text)
			assert.Equal(t, 2, llm.calls())
		})
	}
}

func TestAgentDifferentFailuresContinue(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{
		toolCallMsg(call("a", "drop_tables", `{}`)),
		toolCallMsg(call("b", "list_documents", `{}`)),
		answer("recovered"),
	}}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	got, err := agent.Run(context.Background(), "viewer_1", userHistory("try"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunDone, got.Status)
	assert.Equal(t, "recovered", got.Text)
}

func TestAgentGenericFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		call domain.ToolCall
		err  error
		want string
	}{
		{"unknown tool", call("a", "drop_tables", `{}`), nil, "does not exist"},
		{"invalid arguments", call("a", "list_documents", `{}`), domain.NewDomainError("Registry.Invoke", domain.ErrInvalidInput, "secret schema detail"), "arguments for list_documents were invalid"},
		{"execution error", call("a", "list_documents", `{}`), fmt.Errorf("%w: list_documents: disk on fire", domain.ErrToolFailure), "list_documents failed to run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &scriptedLLM{script: []domain.Message{toolCallMsg(tt.call), answer("ok")}}
			tools := newFakeInvoker()
			if tt.err != nil {
				tools.errs[tt.call.Name] = tt.err
			}
			agent := newTestAgent(llm, tools, 0)

			_, err := agent.Run(context.Background(), "viewer_1", userHistory("x"))
			require.NoError(t, err)
			msgs := llm.requests[1].Messages
			toolMsg := msgs[len(msgs)-1]
			assert.True(t, toolMsg.IsError)
			assert.Contains(t, toolMsg.Content, tt.want)
			assert.NotContains(t, toolMsg.Content, "disk on fire")
			assert.NotContains(t, toolMsg.Content, "secret schema detail")
		})
	}
}

func TestAgentAuthorizationUnavailablePropagates(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{
		toolCallMsg(call("a", "list_documents", `{}`)),
		answer("unreachable"),
	}}
	tools := newFakeInvoker()
	tools.errs["list_documents"] = domain.NewDomainError("Registry.Invoke", domain.ErrAuthorizationUnavailable, "list_documents")
	agent := newTestAgent(llm, tools, 0)

	_, err := agent.Run(context.Background(), "viewer_1", userHistory("list"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorizationUnavailable)
	assert.Equal(t, 1, llm.calls())
}

func TestAgentLLMErrorPropagates(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("upstream 500")}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	_, err := agent.Run(context.Background(), "viewer_1", userHistory("list"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.True(t, domain.IsRetryableError(err))
}

func TestAgentCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &scriptedLLM{script: []domain.Message{answer("never")}}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	_, err := agent.Run(ctx, "viewer_1", userHistory("list"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, llm.calls())
}

func TestAgentCancelledDuringDecisionDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := &scriptedLLM{
		script: []domain.Message{toolCallMsg(call("a", "delete_document", `{"document_id":1}`))},
		onChat: cancel,
	}
	tools := newFakeInvoker()
	agent := newTestAgent(llm, tools, 0)

	_, err := agent.Run(ctx, "manager_1", userHistory("delete 1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tools.invoked)
}

func TestAgentDoesNotMutateHistory(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{
		toolCallMsg(call("a", "list_documents", `{}`)),
		answer("done"),
	}}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	history := make([]domain.Message, 1, 8)
	history[0] = domain.Message{Role: domain.RoleUser, Content: "list"}
	_, err := agent.Run(context.Background(), "viewer_1", history)
	require.NoError(t, err)

	assert.Len(t, history, 1)
	assert.Equal(t, "list", history[0].Content)
	// Spare capacity in the caller's slice must not be written either.
	spare := history[:2]
	assert.Empty(t, spare[1].Role)
}

func TestAgentFillsMissingToolCallIDs(t *testing.T) {
	llm := &scriptedLLM{script: []domain.Message{
		toolCallMsg(call("", "list_documents", `{}`)),
		answer("done"),
	}}
	agent := newTestAgent(llm, newFakeInvoker(), 0)

	_, err := agent.Run(context.Background(), "viewer_1", userHistory("list"))
	require.NoError(t, err)

	msgs := llm.requests[1].Messages
	assistant := msgs[len(msgs)-2]
	toolMsg := msgs[len(msgs)-1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(assistant.ToolCalls[0].ID, "call_"))
	assert.Equal(t, assistant.ToolCalls[0].ID, toolMsg.ToolCalls[0].ID)
}

func TestAgentName(t *testing.T) {
	a := NewAgent(AgentDeps{Route: domain.RouteMovie})
	assert.Equal(t, "movie", a.Name())
}

func TestFingerprintCanonicalArgs(t *testing.T) {
	a := fingerprint(call("1", "t", `{"a":1,"b":2}`), failDenied)
	b := fingerprint(call("2", "t", `{ "b": 2, "a": 1 }`), failDenied)
	c := fingerprint(call("3", "t", `{"a":1,"b":2}`), failExecution)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
