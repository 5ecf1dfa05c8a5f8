package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

// The Messages API requires max_tokens on every request.
const defaultAnthropicMaxTokens = 4096

var _ domain.LLMProvider = (*AnthropicProvider)(nil)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	providerCore
	client anthropic.Client
}

// NewAnthropicProvider builds the SDK client with retries disabled; failover
// and the circuit breaker decide what happens after a failure.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}

	core := newProviderCore(cfg, logger)
	core.maxTokens = orPositive(core.maxTokens, defaultAnthropicMaxTokens)
	return &AnthropicProvider{providerCore: core, client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.roundTrip(ctx, req, p.send)
}

func (p *AnthropicProvider) send(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	params, err := toAnthropicParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, statusError(p.name, status, err)
	}
	return fromAnthropicMessage(msg), nil
}

func toAnthropicParams(req domain.ChatRequest) (anthropic.MessageNewParams, error) {
	conv := newTranscript(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(orPositive(req.MaxTokens, defaultAnthropicMaxTokens)),
		Temperature: anthropic.Float(req.Temperature),
	}
	for _, s := range conv.system {
		params.System = append(params.System, anthropic.TextBlockParam{Text: s})
	}

	for _, t := range conv.turns {
		var blocks []anthropic.ContentBlockParamUnion
		if t.assistant {
			if t.text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.text))
			}
			for _, call := range t.calls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, callInput(call), call.Name))
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
			continue
		}

		// Tool results must lead the user turn that answers them.
		for _, r := range t.results {
			blocks = append(blocks, anthropic.NewToolResultBlock(r.callID, r.content, r.isError))
		}
		if t.text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(t.text))
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
	}

	for _, tool := range req.Tools {
		schema, err := parameterSchema(tool)
		if err != nil {
			return params, err
		}
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					input.Required = append(input.Required, name)
				}
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: input,
			},
		})
	}
	return params, nil
}

func fromAnthropicMessage(msg *anthropic.Message) *domain.ChatResponse {
	now := time.Now()
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	reply := domain.Message{Role: domain.RoleAssistant, Timestamp: now}

	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := block.Input
			if len(args) == 0 {
				args = []byte("{}")
			}
			reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	reply.Content = strings.Join(text, "\n")

	return &domain.ChatResponse{
		ID:        msg.ID,
		Model:     string(msg.Model),
		Message:   reply,
		Usage:     domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		CreatedAt: now,
	}
}
