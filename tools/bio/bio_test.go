package bio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ihubanov/sift"
)

// memStore is an in-memory sift.BioStore for tests.
type memStore struct {
	facts []sift.BioFact
	next  int
}

func (m *memStore) AddFact(_ context.Context, content string) (sift.BioFact, error) {
	m.next++
	f := sift.BioFact{ID: fmt.Sprintf("f%d", m.next), Content: content, CreatedAt: time.Now()}
	m.facts = append(m.facts, f)
	return f, nil
}

func (m *memStore) DeleteFact(_ context.Context, id string) error {
	for i, f := range m.facts {
		if f.ID == id {
			m.facts = append(m.facts[:i], m.facts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) ListFacts(_ context.Context) ([]sift.BioFact, error) {
	return append([]sift.BioFact(nil), m.facts...), nil
}

func (m *memStore) Init(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func exec(t *testing.T, tool *Tool, args string) sift.ToolResult {
	t.Helper()
	result, err := tool.Execute(context.Background(), "bio", json.RawMessage(args))
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestBioWriteListDelete(t *testing.T) {
	store := &memStore{}
	tool := New(store)

	result := exec(t, tool, `{"action":"write","content":"prefers tea"}`)
	if result.Error != "" || !strings.Contains(result.Content, "Saved fact f1") {
		t.Fatalf("write = %+v", result)
	}

	result = exec(t, tool, `{"action":"list"}`)
	if !strings.Contains(result.Content, "[f1] prefers tea") {
		t.Errorf("list = %q", result.Content)
	}

	result = exec(t, tool, `{"action":"delete","id":"f1"}`)
	if result.Error != "" {
		t.Fatalf("delete = %+v", result)
	}

	result = exec(t, tool, `{"action":"list"}`)
	if result.Content != "No saved facts." {
		t.Errorf("list after delete = %q", result.Content)
	}
}

func TestBioValidation(t *testing.T) {
	tool := New(&memStore{})

	if r := exec(t, tool, `{"action":"write","content":"  "}`); r.Error == "" {
		t.Error("blank content must be rejected")
	}
	if r := exec(t, tool, `{"action":"delete"}`); r.Error == "" {
		t.Error("delete without id must be rejected")
	}
	if r := exec(t, tool, `{"action":"shrug"}`); !strings.Contains(r.Error, "unknown action") {
		t.Errorf("error = %q", r.Error)
	}
}

func TestBioFacts(t *testing.T) {
	store := &memStore{}
	tool := New(store)
	exec(t, tool, `{"action":"write","content":"likes go"}`)
	exec(t, tool, `{"action":"write","content":"lives in Sofia"}`)

	lines, err := tool.Facts(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "likes go" || lines[1] != "lives in Sofia" {
		t.Errorf("lines = %v", lines)
	}
}
