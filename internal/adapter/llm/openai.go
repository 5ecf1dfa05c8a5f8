package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

var _ domain.LLMProvider = (*OpenAIProvider)(nil)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	providerCore
	baseURL string
	client  openai.Client
}

// NewOpenAIProvider builds the SDK client with retries disabled; failover
// and the circuit breaker decide what happens after a failure.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
		option.WithBaseURL(base + "/"),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &OpenAIProvider{
		providerCore: newProviderCore(cfg, logger),
		baseURL:      base,
		client:       openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.roundTrip(ctx, req, p.send)
}

func (p *OpenAIProvider) send(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	params, err := toOpenAIParams(req)
	if err != nil {
		return nil, err
	}

	var httpResp *http.Response
	completion, err := p.client.Chat.Completions.New(ctx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		status := 0
		var apiErr *openai.Error
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.StatusCode
		case httpResp != nil && httpResp.StatusCode >= 400:
			status = httpResp.StatusCode
		}
		return nil, statusError(p.name, status, err)
	}
	return p.fromCompletion(completion)
}

// toOpenAIParams maps the conversation one message to one message; the
// chat completions API accepts consecutive tool results as they are.
func toOpenAIParams(req domain.ChatRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		// Zero is sent explicitly: routing depends on deterministic replies.
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	for _, m := range req.Messages {
		switch {
		case m.Role == domain.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case m.Role == domain.RoleTool:
			params.Messages = append(params.Messages, openai.ToolMessage(m.Content, resultCallID(m)))
		case m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0:
			var reply openai.ChatCompletionAssistantMessageParam
			if m.Content != "" {
				reply.Content.OfString = openai.String(m.Content)
			}
			for _, call := range m.ToolCalls {
				args := string(call.Arguments)
				if args == "" {
					args = "{}"
				}
				reply.ToolCalls = append(reply.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      call.Name,
							Arguments: args,
						},
					},
				})
			}
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &reply})
		case m.Role == domain.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	for _, tool := range req.Tools {
		schema, err := parameterSchema(tool)
		if err != nil {
			return params, err
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(schema),
				},
			},
		})
	}
	return params, nil
}

// fromCompletion reads the first choice. A reply cut off by the token cap
// while emitting tool calls is rejected: the arguments are incomplete.
func (p *OpenAIProvider) fromCompletion(c *openai.ChatCompletion) (*domain.ChatResponse, error) {
	if c == nil || len(c.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s: response has no choices", domain.ErrProviderError, p.name)
	}
	choice := c.Choices[0]
	calls := choice.Message.ToolCalls
	if choice.FinishReason == "length" && len(calls) > 0 {
		return nil, fmt.Errorf("%w: %s: reply truncated during tool call", domain.ErrProviderError, p.name)
	}

	created := time.Unix(c.Created, 0)
	reply := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   choice.Message.Content,
		Timestamp: created,
	}
	if reply.Content == "" && choice.Message.Refusal != "" {
		reply.Content = choice.Message.Refusal
	}
	for _, call := range calls {
		args := call.Function.Arguments
		if args == "" {
			args = "{}"
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(args),
		})
	}

	return &domain.ChatResponse{
		ID:      c.ID,
		Model:   c.Model,
		Message: reply,
		Usage: domain.Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
		CreatedAt: created,
	}, nil
}
