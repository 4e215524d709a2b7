package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	sift "github.com/ihubanov/sift"
)

// Provider implements sift.Provider against an OpenAI-compatible chat
// completions endpoint.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
}

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithName sets the provider name returned by Name (default "openai").
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
// The default client has no overall timeout: streams are bounded by the
// request context instead.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// New creates a Provider. baseURL is the API base (e.g.
// "https://api.openai.com/v1" or "http://localhost:11434/v1"); the
// /chat/completions path is appended automatically.
func New(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StreamChat sends a streaming chat request and forwards raw deltas into
// ch. The channel is closed on return. Transport failures come back as
// connection errors, HTTP 429 as a rate-limit error, and any other non-2xx
// status as a provider API error with the body passed through.
func (p *Provider) StreamChat(ctx context.Context, req sift.ChatRequest, ch chan<- sift.Delta) error {
	body := BuildBody(req, p.model)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	payload, err := json.Marshal(body)
	if err != nil {
		close(ch)
		return fmt.Errorf("openaicompat: marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		close(ch)
		return fmt.Errorf("openaicompat: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		close(ch)
		return &sift.ErrConnection{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return p.httpErr(resp)
	}

	// StreamSSE closes ch when done.
	return StreamSSE(ctx, resp.Body, ch)
}

// httpErr reads the response body and classifies the failure.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	if resp.StatusCode == http.StatusTooManyRequests {
		return &sift.ErrRateLimit{Body: string(body)}
	}
	return &sift.ErrProvider{Status: resp.StatusCode, Body: string(body)}
}

// Compile-time interface check.
var _ sift.Provider = (*Provider)(nil)
