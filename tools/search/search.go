// Package search performs web searches via the Brave Search API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ihubanov/sift"
)

// Option configures a search Tool.
type Option func(*Tool)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.httpClient = c }
}

// WithEndpoint overrides the Brave API endpoint. Used in tests.
func WithEndpoint(u string) Option {
	return func(t *Tool) { t.endpoint = u }
}

// Tool performs web searches via the Brave API.
type Tool struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

var _ sift.Handler = (*Tool)(nil)

// New creates a search Tool. Requires a Brave API key.
func New(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		endpoint:   "https://api.search.brave.com/res/v1/web/search",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type searchParams struct {
	Query string `json:"query"`
	Count int    `json:"count,omitempty"`
}

func (t *Tool) Definitions() []sift.ToolDefinition {
	return []sift.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web for current information. Use for recent events, news, or anything that requires up-to-date data.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"},"count":{"type":"integer","description":"Number of results to return (default 8, max 20)"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sift.ToolResult, error) {
	var params searchParams
	if err := json.Unmarshal(args, &params); err != nil {
		return sift.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Count <= 0 {
		params.Count = 8
	}
	if params.Count > 20 {
		params.Count = 20
	}

	content, err := t.Search(ctx, params.Query, params.Count)
	if err != nil {
		return sift.ToolResult{Error: err.Error()}, nil
	}
	return sift.ToolResult{Content: content}, nil
}

type braveResult struct {
	Title   string
	URL     string
	Snippet string
}

// Search queries the Brave API and formats the results.
func (t *Tool) Search(ctx context.Context, query string, count int) (string, error) {
	results, err := t.braveSearch(ctx, query, count)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var out strings.Builder
	for i, r := range results {
		fmt.Fprintf(&out, "[%d] %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

func (t *Tool) braveSearch(ctx context.Context, query string, count int) ([]braveResult, error) {
	u := fmt.Sprintf("%s?q=%s&count=%d", t.endpoint, url.QueryEscape(query), count)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave API %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	var results []braveResult
	for _, r := range data.Web.Results {
		results = append(results, braveResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}
