package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

const defaultBedrockRegion = "us-east-1"

var _ domain.LLMProvider = (*BedrockProvider)(nil)

// converser is the slice of the Bedrock runtime client the provider uses.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider talks to models hosted on AWS Bedrock through the
// Converse API.
type BedrockProvider struct {
	providerCore
	client converser
}

// NewBedrockProvider resolves credentials through the default AWS chain.
// The SDK makes a single attempt per call.
func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = defaultBedrockRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(NewHTTPClient(cfg)),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockProvider{
		providerCore: newProviderCore(cfg, logger),
		client:       bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

func newBedrockProviderWithClient(name, model string, client converser, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{
		providerCore: newProviderCore(config.ProviderConfig{Name: name, Model: model}, logger),
		client:       client,
	}
}

func (p *BedrockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.roundTrip(ctx, req, p.send)
}

func (p *BedrockProvider) send(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	input, err := toBedrockConverseInput(req)
	if err != nil {
		return nil, err
	}
	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, bedrockError(p.name, err)
	}
	return fromBedrockConverseOutput(out, req.Model), nil
}

func toBedrockConverseInput(req domain.ChatRequest) (*bedrockruntime.ConverseInput, error) {
	conv := newTranscript(req.Messages)
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(orPositive(req.MaxTokens, defaultAnthropicMaxTokens))),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	for _, s := range conv.system {
		input.System = append(input.System, &types.SystemContentBlockMemberText{Value: s})
	}

	for _, t := range conv.turns {
		msg := types.Message{Role: types.ConversationRoleUser}
		if t.assistant {
			msg.Role = types.ConversationRoleAssistant
		}
		for _, r := range t.results {
			status := types.ToolResultStatusSuccess
			if r.isError {
				status = types.ToolResultStatusError
			}
			msg.Content = append(msg.Content, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(r.callID),
				Status:    status,
				Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: r.content}},
			}})
		}
		if t.text != "" {
			msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: t.text})
		}
		for _, call := range t.calls {
			msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String(call.ID),
				Name:      aws.String(call.Name),
				Input:     document.NewLazyDocument(callInput(call)),
			}})
		}
		input.Messages = append(input.Messages, msg)
	}

	if len(req.Tools) == 0 {
		return input, nil
	}
	specs := make([]types.Tool, 0, len(req.Tools))
	for _, tool := range req.Tools {
		schema, err := parameterSchema(tool)
		if err != nil {
			return nil, err
		}
		specs = append(specs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(tool.Name),
			Description: aws.String(tool.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	input.ToolConfig = &types.ToolConfiguration{Tools: specs}
	return input, nil
}

func fromBedrockConverseOutput(out *bedrockruntime.ConverseOutput, model string) *domain.ChatResponse {
	now := time.Now()
	resp := &domain.ChatResponse{Model: model, CreatedAt: now}
	if out.Usage != nil {
		in, gen := int(aws.ToInt32(out.Usage.InputTokens)), int(aws.ToInt32(out.Usage.OutputTokens))
		resp.Usage = domain.Usage{PromptTokens: in, CompletionTokens: gen, TotalTokens: in + gen}
	}

	reply := domain.Message{Role: domain.RoleAssistant, Timestamp: now}
	if m, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		var text []string
		for _, block := range m.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				text = append(text, b.Value)
			case *types.ContentBlockMemberToolUse:
				reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
					ID:        aws.ToString(b.Value.ToolUseId),
					Name:      aws.ToString(b.Value.Name),
					Arguments: documentArguments(b.Value.Input),
				})
			}
		}
		reply.Content = strings.Join(text, "\n")
	}
	resp.Message = reply
	return resp
}

func documentArguments(doc document.Interface) json.RawMessage {
	if doc == nil {
		return argumentsJSON(nil)
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return argumentsJSON(nil)
	}
	return argumentsJSON(v)
}

// bedrockErrorCodes maps Bedrock exception codes onto domain sentinels.
var bedrockErrorCodes = map[string]error{
	"ThrottlingException":         domain.ErrRateLimit,
	"TooManyRequestsException":    domain.ErrRateLimit,
	"AccessDeniedException":       domain.ErrAuthInvalid,
	"UnrecognizedClientException": domain.ErrAuthInvalid,
	"ModelNotReadyException":      domain.ErrProviderError,
	"ModelTimeoutException":       domain.ErrProviderError,
	"ServiceUnavailableException": domain.ErrProviderError,
	"InternalServerException":     domain.ErrProviderError,
}

// bedrockError classifies by exception code first, then by HTTP status.
// Bedrock reports an oversized prompt as a ValidationException.
func bedrockError(provider string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := bedrockErrorCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s: %w", sentinel, provider, err)
		}
		if apiErr.ErrorCode() == "ValidationException" && strings.Contains(apiErr.ErrorMessage(), "too long") {
			return fmt.Errorf("%w: %s: %w", domain.ErrContextOverflow, provider, err)
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return statusError(provider, respErr.HTTPStatusCode(), err)
	}
	if apiErr != nil {
		return domain.WrapOp(provider, err)
	}
	return statusError(provider, 0, err)
}
