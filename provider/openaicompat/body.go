package openaicompat

import (
	"encoding/json"

	sift "github.com/ihubanov/sift"
)

// BuildBody converts a sift.ChatRequest into a chat completions request
// body. Assistant tool calls round-trip with arguments re-serialized as a
// JSON string; tool results carry their tool_call_id.
func BuildBody(req sift.ChatRequest, model string) ChatRequest {
	msgs := make([]Message, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			tcs := make([]ToolCallRequest, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, ToolCallRequest{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			msgs = append(msgs, Message{
				Role:      "assistant",
				Content:   m.Content,
				ToolCalls: tcs,
			})

		case m.Role == "tool":
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})

		default:
			msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
		}
	}

	body := ChatRequest{
		Model:       model,
		Messages:    msgs,
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		body.Tools = BuildToolDefs(req.Tools)
	}
	return body
}

// BuildToolDefs converts sift tool definitions to the wire tool format.
func BuildToolDefs(tools []sift.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
