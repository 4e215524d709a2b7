package sift

import (
	"encoding/json"
	"fmt"
)

// --- Conversation types ---

// ChatMessage is one message in a model conversation.
// Role is one of "system", "user", "assistant", or "tool".
// ToolCalls is set only on assistant messages; ToolCallID only on tool
// messages, where it must reference a call emitted by the immediately
// preceding assistant message.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured request from the model to invoke a named function.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolCallSet is the frozen, emission-ordered list of tool calls for one turn.
type ToolCallSet []ToolCall

// ChatRequest is a model invocation: the current message list plus the tool
// schema (omitted once the call budget is exhausted).
type ChatRequest struct {
	Messages    []ChatMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// Usage contains token usage accumulated across model calls.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolDefinition describes one callable function in model-agnostic form.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// --- Content union ---

// Content is the body of an inbound message: either plain text or a list of
// typed parts. The two shapes are kept as a tagged variant so the single
// point that extracts the latest user message can match exhaustively
// instead of type-testing at runtime.
type Content struct {
	text  string
	parts []ContentPart
	typed bool
}

// ContentPart is one typed block in a multi-part message body.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent returns a plain-text Content.
func TextContent(s string) Content { return Content{text: s} }

// PartsContent returns a typed-parts Content.
func PartsContent(parts ...ContentPart) Content {
	return Content{parts: parts, typed: true}
}

// UnmarshalJSON accepts a JSON string or an array of part objects.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{text: s}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		*c = Content{parts: parts, typed: true}
		return nil
	}
	// null content arrives from some clients on assistant tool-call messages.
	if string(data) == "null" {
		*c = Content{}
		return nil
	}
	return fmt.Errorf("content: neither string nor part list: %s", truncateStr(string(data), 80))
}

// MarshalJSON emits the shape the value was built with.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.typed {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// Flatten collapses the content to plain text. This is the one place the
// text/parts variant is matched: plain text passes through, typed parts
// contribute their text blocks in order.
func (c Content) Flatten() string {
	if !c.typed {
		return c.text
	}
	var out string
	for _, p := range c.parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
