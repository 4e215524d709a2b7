package sift

import "context"

// Provider abstracts the LLM backend. The orchestration loop always
// streams: StreamChat sends raw deltas into ch as they arrive and closes
// ch when the stream ends, whatever the outcome. The returned error is the
// transport/provider failure, classified by the caller; deltas already
// sent are not retracted.
type Provider interface {
	StreamChat(ctx context.Context, req ChatRequest, ch chan<- Delta) error
	// Name returns the provider name for logs and spans.
	Name() string
}
