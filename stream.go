package sift

// FinishReason is the terminal signal reported at the end of a model turn.
type FinishReason string

const (
	// FinishNone means no terminal signal has been seen yet.
	FinishNone FinishReason = ""
	// FinishStop is a plain textual stop.
	FinishStop FinishReason = "stop"
	// FinishToolCalls means the turn ended with tool calls pending.
	FinishToolCalls FinishReason = "tool_calls"
)

// Delta is one incremental unit of provider output: a content fragment,
// tool-call fragments, a finish signal, or any combination.
type Delta struct {
	// Content is an incremental text chunk, forwarded to the caller as-is.
	Content string
	// ToolCalls carries tool-call fragments keyed by stream index.
	ToolCalls []ToolCallDelta
	// Finish is the terminal signal, when this delta carries one.
	Finish FinishReason
	// Usage is the turn's token accounting, on streams that report it.
	Usage *Usage
}

// ToolCallDelta is one fragment of a tool call split across the token
// stream. ID and Name are emitted once; Arguments arrives as string pieces
// that concatenate into a JSON document.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}
