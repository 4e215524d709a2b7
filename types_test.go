package sift

import (
	"encoding/json"
	"testing"
)

func TestContentUnmarshalString(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`"plain text"`), &c); err != nil {
		t.Fatal(err)
	}
	if c.Flatten() != "plain text" {
		t.Errorf("Flatten() = %q", c.Flatten())
	}
}

func TestContentUnmarshalParts(t *testing.T) {
	var c Content
	data := `[{"type":"text","text":"a"},{"type":"image_url"},{"type":"text","text":"b"}]`
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatal(err)
	}
	if c.Flatten() != "ab" {
		t.Errorf("Flatten() = %q, want ab", c.Flatten())
	}
}

func TestContentUnmarshalNull(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`null`), &c); err != nil {
		t.Fatal(err)
	}
	if c.Flatten() != "" {
		t.Errorf("Flatten() = %q, want empty", c.Flatten())
	}
}

func TestContentUnmarshalRejectsOther(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`42`), &c); err == nil {
		t.Error("numeric content must be rejected")
	}
}

func TestContentMarshalRoundTrip(t *testing.T) {
	text, err := json.Marshal(TextContent("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != `"hi"` {
		t.Errorf("text marshal = %s", text)
	}

	parts, err := json.Marshal(PartsContent(ContentPart{Type: "text", Text: "hi"}))
	if err != nil {
		t.Fatal(err)
	}
	if string(parts) != `[{"type":"text","text":"hi"}]` {
		t.Errorf("parts marshal = %s", parts)
	}
}

func TestMessageConstructors(t *testing.T) {
	msg := ToolResultMessage("call_9", "done")
	if msg.Role != "tool" || msg.ToolCallID != "call_9" || msg.Content != "done" {
		t.Errorf("msg = %+v", msg)
	}
	if UserMessage("u").Role != "user" || SystemMessage("s").Role != "system" ||
		AssistantMessage("a").Role != "assistant" {
		t.Error("constructor roles wrong")
	}
}

func TestTruncateStr(t *testing.T) {
	if got := truncateStr("héllo wörld", 5); got != "héllo" {
		t.Errorf("got %q", got)
	}
	if got := truncateStr("abc", 10); got != "abc" {
		t.Errorf("got %q", got)
	}
}
