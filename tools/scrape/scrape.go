// Package scrape fetches URLs and extracts readable text.
//
// HTML pages go through readability extraction; PDF documents are
// extracted page by page with ledongthuc/pdf (pure Go, no CGO).
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	pdflib "github.com/ledongthuc/pdf"

	"github.com/ihubanov/sift"
)

const (
	maxFetchBytes   = 4 << 20 // 4MB, PDFs run large
	maxContentChars = 8000
)

// Option configures a scrape Tool.
type Option func(*Tool)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

var _ sift.Handler = (*Tool)(nil)

// New creates a scrape Tool with a 15-second timeout.
func New(opts ...Option) *Tool {
	t := &Tool{client: &http.Client{Timeout: 15 * time.Second}}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Definitions() []sift.ToolDefinition {
	return []sift.ToolDefinition{{
		Name:        "scrape_url",
		Description: "Fetch a URL and extract its readable text content. Handles web pages and PDF documents.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sift.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return sift.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return sift.ToolResult{Error: err.Error()}, nil
	}

	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "\n... (truncated)"
	}
	return sift.ToolResult{Content: content}, nil
}

// Fetch downloads a URL and extracts readable text.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SiftBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	if isPDF(resp.Header.Get("Content-Type"), body) {
		return extractPDF(body)
	}
	return extractHTML(rawURL, string(body)), nil
}

func isPDF(contentType string, body []byte) bool {
	if strings.Contains(contentType, "application/pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

func extractHTML(rawURL, html string) string {
	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent)
	}
	return stripHTML(html)
}

// extractPDF pulls plain text from a PDF document, skipping pages that
// cannot be decoded.
func extractPDF(content []byte) (string, error) {
	r, err := pdflib.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	return out, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML is the fallback when readability finds no article body.
func stripHTML(content string) string {
	content = scriptRe.ReplaceAllString(content, " ")
	content = tagRe.ReplaceAllString(content, " ")
	content = strings.NewReplacer(
		"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'",
	).Replace(content)
	content = spaceRe.ReplaceAllString(content, " ")
	content = blankRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
