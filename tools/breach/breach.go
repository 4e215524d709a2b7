// Package breach looks up leaked records via the LeakOSINT API.
package breach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ihubanov/sift"
)

const defaultEndpoint = "https://leakosintapi.com/"

// Option configures a breach Tool.
type Option func(*Tool)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// WithEndpoint overrides the API endpoint. Used in tests.
func WithEndpoint(u string) Option {
	return func(t *Tool) { t.endpoint = u }
}

// Tool queries the LeakOSINT breach database.
type Tool struct {
	token    string
	endpoint string
	client   *http.Client
}

var _ sift.Handler = (*Tool)(nil)

// New creates a breach Tool. Requires a LeakOSINT API token.
func New(token string, opts ...Option) *Tool {
	t := &Tool{
		token:    token,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Definitions() []sift.ToolDefinition {
	return []sift.ToolDefinition{{
		Name:        "breach_lookup",
		Description: "Look up an email address, username, phone number, or name in known data breaches. Returns leaked records grouped by source database.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Email, username, phone number, or full name to look up"},"limit":{"type":"integer","description":"Maximum records per database (default 100)"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sift.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return sift.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Query == "" {
		return sift.ToolResult{Error: "query is required"}, nil
	}
	if params.Limit <= 0 {
		params.Limit = 100
	}

	content, err := t.Lookup(ctx, params.Query, params.Limit)
	if err != nil {
		return sift.ToolResult{Error: err.Error()}, nil
	}
	return sift.ToolResult{Content: content}, nil
}

// databaseHit is one source database in the API response.
type databaseHit struct {
	Data     []map[string]any `json:"Data"`
	InfoLeak string           `json:"InfoLeak"`
}

// Lookup queries the API and formats leaked records grouped by database.
func (t *Tool) Lookup(ctx context.Context, query string, limit int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"token":   t.token,
		"request": query,
		"limit":   limit,
		"lang":    "en",
		"type":    "json",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("breach lookup error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("breach API %d: %s", resp.StatusCode, string(b))
	}

	var data struct {
		List      map[string]databaseHit `json:"List"`
		ErrorCode any                    `json:"Error code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("breach parse error: %w", err)
	}
	if data.ErrorCode != nil {
		return "", fmt.Errorf("breach API error: %v", data.ErrorCode)
	}
	if len(data.List) == 0 {
		return fmt.Sprintf("No breach records found for %q.", query), nil
	}

	return formatHits(data.List), nil
}

func formatHits(list map[string]databaseHit) string {
	names := make([]string, 0, len(list))
	for name := range list {
		names = append(names, name)
	}
	sort.Strings(names)

	var out strings.Builder
	for _, name := range names {
		hit := list[name]
		if name == "No results found" {
			continue
		}
		fmt.Fprintf(&out, "## %s\n", name)
		if hit.InfoLeak != "" {
			fmt.Fprintf(&out, "%s\n", hit.InfoLeak)
		}
		for _, record := range hit.Data {
			fields := make([]string, 0, len(record))
			for k := range record {
				fields = append(fields, k)
			}
			sort.Strings(fields)
			for _, k := range fields {
				fmt.Fprintf(&out, "- %s: %v\n", k, record[k])
			}
			out.WriteString("\n")
		}
		out.WriteString("\n")
	}

	result := strings.TrimSpace(out.String())
	if result == "" {
		return "No breach records found."
	}
	return result
}
