package sift

import (
	"fmt"
	"strings"
)

// Assembler reassembles one model turn from a stream of provider deltas.
// Content deltas are forwarded through the sink immediately — streaming
// text to the caller is a latency-sensitive UX feature, so nothing is
// buffered before the forward. Tool-call fragments are merged into an
// index-keyed table and frozen into an ordered ToolCallSet at turn end.
//
// An Assembler is single-use: one instance per model turn.
type Assembler struct {
	sink    func(content string) error
	content strings.Builder
	frags   []fragment
	finish  FinishReason
	usage   Usage
}

// fragment accumulates one tool call across deltas. ID and Name are
// first-non-empty-wins since providers emit them once; Arguments is
// append-only because one JSON document may be split across many chunks.
type fragment struct {
	id   string
	name string
	args strings.Builder
}

// Turn is the frozen outcome of one model turn.
type Turn struct {
	Content   string
	ToolCalls ToolCallSet
	Finish    FinishReason
	Usage     Usage
}

// NewAssembler creates an Assembler. sink receives each content delta as it
// arrives; a nil sink discards content increments (the full content is still
// accumulated into the Turn). A sink error aborts the turn — content already
// forwarded is not retracted.
func NewAssembler(sink func(content string) error) *Assembler {
	return &Assembler{sink: sink}
}

// Feed merges one delta into the turn.
func (a *Assembler) Feed(d Delta) error {
	if d.Content != "" {
		a.content.WriteString(d.Content)
		if a.sink != nil {
			if err := a.sink(d.Content); err != nil {
				return fmt.Errorf("forward content: %w", err)
			}
		}
	}

	for _, tc := range d.ToolCalls {
		for len(a.frags) <= tc.Index {
			a.frags = append(a.frags, fragment{})
		}
		f := &a.frags[tc.Index]
		if f.id == "" {
			f.id = tc.ID
		}
		if f.name == "" {
			f.name = tc.Name
		}
		f.args.WriteString(tc.Arguments)
	}

	if d.Usage != nil {
		// One accounting chunk per turn, on streams that report usage.
		a.usage = *d.Usage
	}

	if d.Finish != FinishNone {
		a.finish = d.Finish
	}
	return nil
}

// Consume feeds deltas from ch until it closes, then returns the frozen turn.
func (a *Assembler) Consume(ch <-chan Delta) (Turn, error) {
	for d := range ch {
		if err := a.Feed(d); err != nil {
			return Turn{}, err
		}
	}
	return a.Turn(), nil
}

// Turn freezes the accumulated state. When the stream ended without an
// explicit terminal signal, pending fragments imply tool_calls; otherwise
// the turn is treated as a plain stop so a malformed provider response
// cannot spin the loop forever.
//
// Argument strings are kept raw here — they are parsed as JSON only at
// dispatch time, once the turn is known to be complete.
func (a *Assembler) Turn() Turn {
	var set ToolCallSet
	for _, f := range a.frags {
		// A malformed stream whose first fragment index is above zero
		// leaves placeholder slots with no id and no name. Answering one
		// would produce a tool message with an empty tool_call_id, which
		// providers reject on the next turn.
		if f.id == "" && f.name == "" {
			continue
		}
		set = append(set, ToolCall{
			ID:   f.id,
			Name: f.name,
			Args: []byte(f.args.String()),
		})
	}

	finish := a.finish
	if finish == FinishNone {
		if len(set) > 0 {
			finish = FinishToolCalls
		} else {
			finish = FinishStop
		}
	}

	return Turn{
		Content:   a.content.String(),
		ToolCalls: set,
		Finish:    finish,
		Usage:     a.usage,
	}
}
