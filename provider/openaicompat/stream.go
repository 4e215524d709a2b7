package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	sift "github.com/ihubanov/sift"
)

// StreamSSE reads a chat completions SSE stream from body and sends one
// sift.Delta per data frame into ch: content increments, tool-call
// fragments (index/id/name/arguments), and the finish_reason when a frame
// carries one. No reassembly happens here — that is the assembler's job.
//
// The channel is closed when the stream ends, whatever the outcome. A
// read error mid-stream is returned as a sift connection error; deltas
// already sent stand.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, ch chan<- sift.Delta) error {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Large argument fragments can produce long SSE lines.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk ChatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		var d sift.Delta
		if chunk.Usage != nil {
			// The usage accounting chunk has no choices.
			d.Usage = &sift.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}

		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.Delta != nil {
				d.Content = choice.Delta.Content
				for _, tc := range choice.Delta.ToolCalls {
					d.ToolCalls = append(d.ToolCalls, sift.ToolCallDelta{
						Index:     tc.Index,
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					})
				}
			}
			switch choice.FinishReason {
			case "tool_calls":
				d.Finish = sift.FinishToolCalls
			case "":
			default:
				// "stop", "length", and anything else end the turn as text.
				d.Finish = sift.FinishStop
			}
		}

		if d.Content == "" && len(d.ToolCalls) == 0 && d.Finish == sift.FinishNone && d.Usage == nil {
			continue
		}

		select {
		case ch <- d:
		case <-ctx.Done():
			return &sift.ErrConnection{Err: ctx.Err()}
		}
	}

	if err := scanner.Err(); err != nil {
		return &sift.ErrConnection{Err: err}
	}
	return nil
}
