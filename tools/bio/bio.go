// Package bio manages remembered facts about the user, backed by a
// sift.BioStore. It also serves those facts to the HTTP layer for
// system prompt injection.
package bio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ihubanov/sift"
)

// Tool reads and writes bio facts.
type Tool struct {
	store sift.BioStore
}

var _ sift.Handler = (*Tool)(nil)
var _ sift.BioSource = (*Tool)(nil)

// New creates a bio Tool backed by store.
func New(store sift.BioStore) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definitions() []sift.ToolDefinition {
	return []sift.ToolDefinition{{
		Name:        "bio",
		Description: "Manage remembered facts about the user. Use action \"write\" to save a new fact, \"delete\" with a fact id to forget one, and \"list\" to see all saved facts with their ids.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"action":{"type":"string","enum":["write","delete","list"],"description":"Operation to perform"},"content":{"type":"string","description":"Fact text, required for write"},"id":{"type":"string","description":"Fact id, required for delete"}},"required":["action"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sift.ToolResult, error) {
	var params struct {
		Action  string `json:"action"`
		Content string `json:"content"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return sift.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	switch params.Action {
	case "write":
		if strings.TrimSpace(params.Content) == "" {
			return sift.ToolResult{Error: "content is required for write"}, nil
		}
		fact, err := t.store.AddFact(ctx, params.Content)
		if err != nil {
			return sift.ToolResult{}, fmt.Errorf("save fact: %w", err)
		}
		return sift.ToolResult{Content: fmt.Sprintf("Saved fact %s.", fact.ID)}, nil

	case "delete":
		if params.ID == "" {
			return sift.ToolResult{Error: "id is required for delete"}, nil
		}
		if err := t.store.DeleteFact(ctx, params.ID); err != nil {
			return sift.ToolResult{}, fmt.Errorf("delete fact: %w", err)
		}
		return sift.ToolResult{Content: fmt.Sprintf("Deleted fact %s.", params.ID)}, nil

	case "list":
		facts, err := t.store.ListFacts(ctx)
		if err != nil {
			return sift.ToolResult{}, fmt.Errorf("list facts: %w", err)
		}
		if len(facts) == 0 {
			return sift.ToolResult{Content: "No saved facts."}, nil
		}
		var out strings.Builder
		for _, f := range facts {
			fmt.Fprintf(&out, "- [%s] %s\n", f.ID, f.Content)
		}
		return sift.ToolResult{Content: strings.TrimRight(out.String(), "\n")}, nil

	default:
		return sift.ToolResult{Error: fmt.Sprintf("unknown action %q", params.Action)}, nil
	}
}

// Facts returns all saved fact contents. The query is accepted for
// interface compatibility; facts are few enough to inject wholesale.
func (t *Tool) Facts(ctx context.Context, _ string) ([]string, error) {
	facts, err := t.store.ListFacts(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, f.Content)
	}
	return lines, nil
}
