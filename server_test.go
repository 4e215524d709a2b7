package sift

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, p Provider, opts func(*ServerConfig)) *httptest.Server {
	t.Helper()
	loop, err := NewLoop(LoopConfig{
		Provider: p,
		Catalog: newTestCatalog(map[string][]Handler{
			"main": {echoTool{name: "greet", content: "hi"}},
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := ServerConfig{Loop: loop, Model: "test-model", BasePrompt: "Be brief."}
	if opts != nil {
		opts(&cfg)
	}
	server, err := NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// sseFrames splits an SSE body into its data payloads.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed frame: %q", block)
		}
		frames = append(frames, strings.TrimPrefix(block, "data: "))
	}
	return frames
}

func TestServerHealth(t *testing.T) {
	ts := newTestServer(t, &scriptProvider{}, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServerPromptStream(t *testing.T) {
	p := &scriptProvider{turns: [][]Delta{
		{textDelta("Hel"), textDelta("lo"), finishDelta(FinishStop)},
	}}
	ts := newTestServer(t, p, nil)

	resp, err := http.Post(ts.URL+"/prompt", "application/json",
		strings.NewReader(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	var buf strings.Builder
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	frames := sseFrames(t, buf.String())
	if len(frames) < 2 {
		t.Fatalf("frames = %v", frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[len(frames)-1])
	}

	var content strings.Builder
	for _, f := range frames[:len(frames)-1] {
		var chunk ChunkFrame
		if err := json.Unmarshal([]byte(f), &chunk); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		if chunk.Object != "chat.completion.chunk" || chunk.Model != "test-model" {
			t.Errorf("frame meta = %+v", chunk)
		}
		for _, c := range chunk.Choices {
			content.WriteString(c.Delta.Content)
		}
	}
	if content.String() != "Hello" {
		t.Errorf("streamed content = %q", content.String())
	}
}

func TestServerPromptStreamError(t *testing.T) {
	p := &scriptProvider{
		turns: [][]Delta{{}},
		errs:  []error{&ErrRateLimit{Body: "slow down"}},
	}
	ts := newTestServer(t, p, nil)

	resp, err := http.Post(ts.URL+"/prompt", "application/json",
		strings.NewReader(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var buf strings.Builder
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	frames := sseFrames(t, buf.String())
	if len(frames) != 2 {
		t.Fatalf("frames = %v", frames)
	}

	var ef ErrorFrame
	if err := json.Unmarshal([]byte(frames[0]), &ef); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ef.Message, "rate limit error") {
		t.Errorf("error frame = %+v", ef)
	}
	if frames[1] != "[DONE]" {
		t.Errorf("stream must still terminate with [DONE], got %q", frames[1])
	}
}

func TestServerPromptNonStreaming(t *testing.T) {
	p := &scriptProvider{turns: [][]Delta{
		{textDelta("All good."), usageDelta(7, 2), finishDelta(FinishStop)},
	}}
	ts := newTestServer(t, p, nil)

	resp, err := http.Post(ts.URL+"/prompt", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Object != "chat.completion" || len(body.Choices) != 1 {
		t.Fatalf("body = %+v", body)
	}
	choice := body.Choices[0]
	if choice.Message.Content != "All good." || choice.FinishReason != "stop" {
		t.Errorf("choice = %+v", choice)
	}
	if body.Usage.PromptTokens != 7 || body.Usage.CompletionTokens != 2 || body.Usage.TotalTokens != 9 {
		t.Errorf("usage = %+v", body.Usage)
	}
}

func TestServerPromptNonStreamingError(t *testing.T) {
	p := &scriptProvider{
		turns: [][]Delta{{}},
		errs:  []error{&ErrProvider{Status: 500, Body: "upstream broke"}},
	}
	ts := newTestServer(t, p, nil)

	resp, err := http.Post(ts.URL+"/prompt", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	var ef ErrorFrame
	if err := json.NewDecoder(resp.Body).Decode(&ef); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ef.Message, "API error") {
		t.Errorf("error = %+v", ef)
	}
}

func TestServerPromptRejectsEmpty(t *testing.T) {
	ts := newTestServer(t, &scriptProvider{}, nil)

	resp, err := http.Post(ts.URL+"/prompt", "application/json", strings.NewReader(`{"messages":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// fixedBio returns a static fact list.
type fixedBio struct{ lines []string }

func (f fixedBio) Facts(context.Context, string) ([]string, error) { return f.lines, nil }

func TestServerInjectsBioAndPrompt(t *testing.T) {
	p := &scriptProvider{turns: [][]Delta{
		{textDelta("ok"), finishDelta(FinishStop)},
	}}
	ts := newTestServer(t, p, func(cfg *ServerConfig) {
		cfg.Bio = fixedBio{lines: []string{"prefers tea"}}
		cfg.IgnoreList = []string{"secret person"}
	})

	resp, err := http.Post(ts.URL+"/prompt", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if len(p.reqs) != 1 {
		t.Fatalf("provider calls = %d", len(p.reqs))
	}
	sys := p.reqs[0].Messages[0]
	if sys.Role != "system" {
		t.Fatalf("first message role = %q", sys.Role)
	}
	if !strings.Contains(sys.Content, "Be brief.") ||
		!strings.Contains(sys.Content, "prefers tea") ||
		!strings.Contains(sys.Content, "secret person") {
		t.Errorf("system prompt = %q", sys.Content)
	}
}
