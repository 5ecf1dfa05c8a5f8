package llm

import (
	"encoding/json"
	"fmt"

	"concierge-ai/internal/domain"
)

// transcript is a conversation folded into strictly alternating turns, the
// shape the Anthropic and Bedrock APIs both insist on. System messages are
// pulled out since both APIs take them apart from the turns.
type transcript struct {
	system []string
	turns  []turn
}

// turn is one side of the exchange. A user turn carries tool results and
// text, an assistant turn carries text and tool calls.
type turn struct {
	assistant bool
	text      string
	calls     []domain.ToolCall
	results   []toolResult
}

type toolResult struct {
	callID  string
	content string
	isError bool
}

// newTranscript folds history into turns. Consecutive tool results and user
// messages collapse into one user turn. Empty messages are dropped.
func newTranscript(history []domain.Message) transcript {
	var t transcript
	for _, m := range history {
		switch m.Role {
		case domain.RoleSystem:
			if m.Content != "" {
				t.system = append(t.system, m.Content)
			}
		case domain.RoleAssistant:
			if m.Content == "" && len(m.ToolCalls) == 0 {
				continue
			}
			t.turns = append(t.turns, turn{assistant: true, text: m.Content, calls: m.ToolCalls})
		case domain.RoleTool:
			u := t.userTurn()
			u.results = append(u.results, toolResult{
				callID:  resultCallID(m),
				content: m.Content,
				isError: m.IsError,
			})
		default:
			if m.Content == "" {
				continue
			}
			u := t.userTurn()
			if u.text != "" {
				u.text += "\n\n"
			}
			u.text += m.Content
		}
	}
	return t
}

// userTurn returns the trailing user turn, opening a new one after an
// assistant turn.
func (t *transcript) userTurn() *turn {
	if n := len(t.turns); n > 0 && !t.turns[n-1].assistant {
		return &t.turns[n-1]
	}
	t.turns = append(t.turns, turn{})
	return &t.turns[len(t.turns)-1]
}

// resultCallID returns the id of the call a tool message answers. The agent
// echoes the originating call as the message's only ToolCall.
func resultCallID(m domain.Message) string {
	if len(m.ToolCalls) > 0 {
		return m.ToolCalls[0].ID
	}
	return ""
}

// callInput decodes a call's arguments into a JSON object. Models sometimes
// send no arguments at all for parameterless tools. Arguments that are not an
// object were already answered with an invalid-arguments tool result, so they
// are replayed verbatim under "_raw" instead of failing the whole request.
func callInput(call domain.ToolCall) map[string]any {
	if len(call.Arguments) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(call.Arguments, &input); err != nil {
		return map[string]any{"_raw": string(call.Arguments)}
	}
	if input == nil {
		input = map[string]any{}
	}
	return input
}

// parameterSchema decodes a tool's JSON schema, defaulting to an empty
// object schema.
func parameterSchema(tool domain.ToolSchema) (map[string]any, error) {
	schema := map[string]any{"type": "object"}
	if len(tool.Parameters) == 0 {
		return schema, nil
	}
	if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
		return nil, fmt.Errorf("%w: tool %s schema: %w", domain.ErrInvalidInput, tool.Name, err)
	}
	return schema, nil
}

// argumentsJSON re-encodes decoded call input, falling back to an empty
// object when there is nothing usable.
func argumentsJSON(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return json.RawMessage("{}")
	}
	return data
}
