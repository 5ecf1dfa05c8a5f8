package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-ai/internal/domain"
)

// fakeConverser records the last input and replies with blocks or fails.
type fakeConverser struct {
	got    *bedrockruntime.ConverseInput
	blocks []types.ContentBlock
	err    error
}

func (f *fakeConverser) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: f.blocks,
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(12), OutputTokens: aws.Int32(3)},
	}, nil
}

func text(s string) types.ContentBlock { return &types.ContentBlockMemberText{Value: s} }

func toolUse(id, name string, input map[string]any) types.ContentBlock {
	return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
		ToolUseId: aws.String(id),
		Name:      aws.String(name),
		Input:     document.NewLazyDocument(input),
	}}
}

func toolOutcome(t *testing.T, b types.ContentBlock) types.ToolResultBlock {
	t.Helper()
	res, ok := b.(*types.ContentBlockMemberToolResult)
	require.True(t, ok, "block is %T, want tool result", b)
	return res.Value
}

func TestBedrockChatText(t *testing.T) {
	fake := &fakeConverser{blocks: []types.ContentBlock{text("movie")}}
	p := newBedrockProviderWithClient("bedrock-eu", "anthropic.claude-3-5-sonnet", fake, newTestLogger())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: "Classify the request."},
		{Role: domain.RoleUser, Content: "anything like Heat?"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "bedrock-eu", p.Name())
	assert.Equal(t, "movie", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	in := fake.got
	assert.Equal(t, "anthropic.claude-3-5-sonnet", aws.ToString(in.ModelId))
	assert.Len(t, in.System, 1, "system prompt moves out of the turns")
	assert.Len(t, in.Messages, 1)
	assert.Equal(t, int32(defaultAnthropicMaxTokens), aws.ToInt32(in.InferenceConfig.MaxTokens))
	require.NotNil(t, in.InferenceConfig.Temperature, "temperature 0 must still be sent")
	assert.Zero(t, *in.InferenceConfig.Temperature)
	assert.Nil(t, in.ToolConfig)
}

func TestBedrockChatToolUse(t *testing.T) {
	fake := &fakeConverser{blocks: []types.ContentBlock{
		text("Checking."),
		toolUse("tu_1", "get_movie", map[string]any{"movie_id": 949}),
	}}
	p := newBedrockProviderWithClient("bedrock", "m", fake, nil)

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "details for Heat"}},
		Tools:    []domain.ToolSchema{{Name: "get_movie", Description: "Look up a movie", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)

	require.NotNil(t, fake.got.ToolConfig)
	assert.Len(t, fake.got.ToolConfig.Tools, 1)
	assert.Equal(t, "Checking.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	call := resp.Message.ToolCalls[0]
	assert.Equal(t, "tu_1", call.ID)
	assert.Equal(t, "get_movie", call.Name)
	assert.JSONEq(t, `{"movie_id":949}`, string(call.Arguments))
}

func TestBedrockTranscriptShape(t *testing.T) {
	deleteCall := domain.ToolCall{ID: "b", Name: "delete_document", Arguments: json.RawMessage(`{"document_id":1}`)}
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "list then delete"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "a", Name: "list_documents"}, deleteCall}},
		{Role: domain.RoleTool, Content: "[]", ToolCalls: []domain.ToolCall{{ID: "a"}}},
		{Role: domain.RoleTool, Content: "Permission denied", IsError: true, ToolCalls: []domain.ToolCall{{ID: "b"}}},
		{Role: domain.RoleUser, Content: "never mind"},
	}

	in, err := toBedrockConverseInput(domain.ChatRequest{Model: "m", Messages: history, MaxTokens: 2048, Temperature: 0.5})
	require.NoError(t, err)

	assert.Equal(t, int32(2048), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.Equal(t, float32(0.5), aws.ToFloat32(in.InferenceConfig.Temperature))

	require.Len(t, in.Messages, 3)
	last := in.Messages[2]
	assert.Equal(t, types.ConversationRoleUser, last.Role)
	require.Len(t, last.Content, 3, "both results and the follow-up share one user turn")

	assert.Equal(t, types.ToolResultStatusSuccess, toolOutcome(t, last.Content[0]).Status)
	denied := toolOutcome(t, last.Content[1])
	assert.Equal(t, "b", aws.ToString(denied.ToolUseId))
	assert.Equal(t, types.ToolResultStatusError, denied.Status)
	assert.Equal(t, text("never mind"), last.Content[2])
}

func TestBedrockReplaysMalformedToolArguments(t *testing.T) {
	in, err := toBedrockConverseInput(domain.ChatRequest{Messages: []domain.Message{
		{Role: domain.RoleUser, Content: "show document seven"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "x", Name: "get_document", Arguments: json.RawMessage(`{oops`)}}},
		{Role: domain.RoleTool, Content: "invalid arguments", IsError: true, ToolCalls: []domain.ToolCall{{ID: "x"}}},
	}})
	require.NoError(t, err)
	require.Len(t, in.Messages, 3)

	use, ok := in.Messages[1].Content[0].(*types.ContentBlockMemberToolUse)
	require.True(t, ok)
	var args map[string]any
	require.NoError(t, use.Value.Input.UnmarshalSmithyDocument(&args))
	assert.Equal(t, map[string]any{"_raw": "{oops"}, args)
}

// apiError is a minimal smithy.APIError.
type apiError struct{ code, msg string }

func (e apiError) Error() string                 { return e.code + ": " + e.msg }
func (e apiError) ErrorCode() string             { return e.code }
func (e apiError) ErrorMessage() string          { return e.msg }
func (e apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestBedrockErrorMapping(t *testing.T) {
	tests := map[string]struct {
		err  error
		want error
	}{
		"throttled":         {apiError{"ThrottlingException", "slow down"}, domain.ErrRateLimit},
		"too many requests": {apiError{"TooManyRequestsException", "busy"}, domain.ErrRateLimit},
		"access denied":     {apiError{"AccessDeniedException", "no model access"}, domain.ErrAuthInvalid},
		"prompt too long":   {apiError{"ValidationException", "input is too long for requested model"}, domain.ErrContextOverflow},
		"internal":          {apiError{"InternalServerException", "oops"}, domain.ErrProviderError},
		"unavailable":       {apiError{"ServiceUnavailableException", "later"}, domain.ErrProviderError},
		"network":           {errors.New("dial tcp: connection refused"), domain.ErrProviderError},
		"cancelled":         {context.Canceled, context.Canceled},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := newBedrockProviderWithClient("bedrock", "m", &fakeConverser{err: tt.err}, nil)
			_, err := p.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDocumentArguments(t *testing.T) {
	assert.Equal(t, "{}", string(documentArguments(nil)))
	assert.JSONEq(t, `{"query":"heat"}`, string(documentArguments(document.NewLazyDocument(map[string]any{"query": "heat"}))))
}
