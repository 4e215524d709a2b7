package sift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// scriptProvider is a test Provider that streams canned delta sequences,
// one per model call, and captures every request it receives.
type scriptProvider struct {
	turns [][]Delta
	errs  []error // optional per-call stream error, nil = clean close
	calls int
	reqs  []ChatRequest
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) StreamChat(ctx context.Context, req ChatRequest, ch chan<- Delta) error {
	defer close(ch)
	p.reqs = append(p.reqs, req)
	i := p.calls
	p.calls++
	if i >= len(p.turns) {
		return errors.New("script exhausted")
	}
	for _, d := range p.turns[i] {
		select {
		case ch <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return p.errs[i]
	}
	return nil
}

func textDelta(s string) Delta { return Delta{Content: s} }

func callDelta(index int, id, name, args string) Delta {
	return Delta{ToolCalls: []ToolCallDelta{{Index: index, ID: id, Name: name, Arguments: args}}}
}

func finishDelta(r FinishReason) Delta { return Delta{Finish: r} }

func usageDelta(in, out int) Delta {
	return Delta{Usage: &Usage{InputTokens: in, OutputTokens: out}}
}

// --- Tool mocks ---

// echoTool returns canned content for a single named tool.
type echoTool struct {
	name    string
	content string
}

func (e echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: e.name, Description: "Echo " + e.name}}
}

func (e echoTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: e.content}, nil
}

// countTool counts executions of a single named tool.
type countTool struct {
	name  string
	count *int
}

func (c countTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: c.name, Description: "Counting " + c.name}}
}

func (c countTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	*c.count++
	return ToolResult{Content: "ok"}, nil
}

// failTool always returns a handler error.
type failTool struct{}

func (failTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "fail", Description: "Always fails"}}
}

func (failTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

// softFailTool reports a tool-level error in the result.
type softFailTool struct{}

func (softFailTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "soft_fail", Description: "Reports an error"}}
}

func (softFailTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Error: "nothing found"}, nil
}

// panicTool panics on execution.
type panicTool struct{}

func (panicTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "boom", Description: "Panics"}}
}

func (panicTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	panic("kaboom")
}

// schemaTool declares a parameter schema requiring a string "query".
type schemaTool struct{}

func (schemaTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        "lookup",
		Description: "Schema-validated lookup",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	}}
}

func (schemaTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "looked up " + string(args)}, nil
}

// newTestCatalog builds a catalog with handlers registered per group.
func newTestCatalog(groups map[string][]Handler) *Catalog {
	c := NewCatalog()
	for group, handlers := range groups {
		c.AddGroup(group, "charter for "+group)
		for _, h := range handlers {
			if err := c.Register(group, h); err != nil {
				panic(fmt.Sprintf("register: %v", err))
			}
		}
	}
	return c
}
