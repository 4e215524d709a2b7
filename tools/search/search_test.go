package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchFormatsResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "go generics" {
			t.Errorf("q = %q", got)
		}
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"Go Blog","url":"https://go.dev/blog","description":"Official blog"},
			{"title":"Spec","url":"https://go.dev/ref/spec","description":"The language spec"}
		]}}`)
	}))
	defer ts.Close()

	tool := New("brave-key", WithEndpoint(ts.URL))
	result, err := tool.Execute(context.Background(), "web_search",
		json.RawMessage(`{"query":"go generics"}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("tool error: %s", result.Error)
	}
	if !strings.Contains(result.Content, "[1] Go Blog") ||
		!strings.Contains(result.Content, "https://go.dev/ref/spec") {
		t.Errorf("content = %q", result.Content)
	}
}

func TestSearchNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"web":{"results":[]}}`)
	}))
	defer ts.Close()

	tool := New("k", WithEndpoint(ts.URL))
	result, err := tool.Execute(context.Background(), "web_search",
		json.RawMessage(`{"query":"nothing"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Content, "No results found") {
		t.Errorf("content = %q", result.Content)
	}
}

func TestSearchAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "bad key")
	}))
	defer ts.Close()

	tool := New("k", WithEndpoint(ts.URL))
	result, err := tool.Execute(context.Background(), "web_search",
		json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Error, "brave API 401") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestSearchInvalidArgs(t *testing.T) {
	tool := New("k")
	result, err := tool.Execute(context.Background(), "web_search", json.RawMessage(`{broken`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Error, "invalid args") {
		t.Errorf("error = %q", result.Error)
	}
}
