package sift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// State is the orchestration loop's execution state.
type State int

const (
	// StateStreamingModel is the initial state: a model call is in flight.
	StateStreamingModel State = iota
	// StateExecutingTools runs one batch of tool calls sequentially.
	StateExecutingTools
	// StateDone is terminal: the final assistant message has been produced.
	StateDone
	// StateError is terminal: the request failed with a classified error.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStreamingModel:
		return "streaming_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// defaultMaxCalls is the per-request tool call ceiling. A runaway model
// cannot exceed it regardless of what it emits: once reached, one final
// no-tools call forces a textual answer.
const defaultMaxCalls = 25

// EmitFunc receives caller-bound stream output: role "assistant" for
// content deltas, role "tool" for tool-invocation notices. A nil EmitFunc
// disables streaming (non-streaming requests still run the same loop).
// An EmitFunc error means the caller is gone and aborts the request.
type EmitFunc func(role, content string) error

// LoopConfig configures a Loop.
type LoopConfig struct {
	Provider    Provider
	Catalog     *Catalog
	MaxCalls    int      // 0 = defaultMaxCalls
	Temperature *float64 // nil = provider default
	Logger      *slog.Logger
	Tracer      Tracer
}

// Result is the outcome of a completed request.
type Result struct {
	// Message is the final assembled assistant message.
	Message ChatMessage
	// Calls is the number of tool calls executed over the request.
	Calls int
	// Usage is the token usage accumulated across all model turns, when
	// the provider reports it.
	Usage Usage
	// State is the terminal state reached (StateDone on success).
	State State
}

// Loop is the per-request orchestration state machine: it alternates model
// turns and tool batches until the model stops, the budget forces a final
// answer, or a fatal error ends the request. A Loop holds only read-only
// configuration and is safe to share across requests.
type Loop struct {
	cfg LoopConfig
}

// NewLoop creates a Loop. Provider and Catalog are required.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("loop: Provider is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("loop: Catalog is required")
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = defaultMaxCalls
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	return &Loop{cfg: cfg}, nil
}

// Run drives one request to completion. messages is the refined
// conversation (system prompt already merged); emit streams partial output
// to the caller. The message list, dispatcher state, and budget live for
// this call only — nothing persists across requests.
//
// ctx should be the caller's request context: cancelling it propagates
// into the in-flight provider stream and any running tool handler.
func (l *Loop) Run(ctx context.Context, messages []ChatMessage, emit EmitFunc) (Result, error) {
	dispatcher := NewDispatcher(l.cfg.Catalog,
		DispatcherLogger(l.cfg.Logger), DispatcherTracer(l.cfg.Tracer))

	callsMade := 0
	state := StateStreamingModel
	var pending ToolCallSet
	var batchErr error
	var usage Usage
	iteration := 0

	for {
		switch state {
		case StateStreamingModel:
			iterCtx := ctx
			var span Span
			if l.cfg.Tracer != nil {
				iterCtx, span = l.cfg.Tracer.Start(ctx, "loop.model_turn",
					IntAttr("iteration", iteration), IntAttr("calls_made", callsMade))
			}
			iteration++

			req := ChatRequest{Messages: messages, Temperature: l.cfg.Temperature}
			if callsMade < l.cfg.MaxCalls {
				req.Tools = l.cfg.Catalog.Definitions()
				req.ToolChoice = "auto"
			} else {
				l.cfg.Logger.Warn("call budget exhausted, forcing textual answer",
					"calls", callsMade, "max", l.cfg.MaxCalls)
			}

			turn, err := l.streamTurn(iterCtx, req, emit)
			if span != nil {
				if err != nil {
					span.Error(err)
				}
				span.SetAttr(IntAttr("tool_calls", len(turn.ToolCalls)))
				span.End()
			}
			if err != nil {
				return Result{Calls: callsMade, Usage: usage, State: StateError}, err
			}
			usage.InputTokens += turn.Usage.InputTokens
			usage.OutputTokens += turn.Usage.OutputTokens

			if turn.Finish == FinishToolCalls && len(turn.ToolCalls) > 0 {
				messages = append(messages, ChatMessage{
					Role:      "assistant",
					Content:   StripThinking(turn.Content),
					ToolCalls: turn.ToolCalls,
				})
				pending = turn.ToolCalls
				state = StateExecutingTools
				continue
			}

			final := ChatMessage{Role: "assistant", Content: StripThinking(turn.Content)}
			return Result{Message: final, Calls: callsMade, Usage: usage, State: StateDone}, nil

		case StateExecutingTools:
			// Sequential, in emission order: tool messages must map 1:1 to
			// ids and the model is sensitive to their relative order.
			failed := false
			for _, call := range pending {
				if failed {
					// No id is ever left unanswered, even past a failure.
					messages = append(messages, ToolResultMessage(call.ID,
						"Skipped: an earlier tool call in this batch failed."))
					continue
				}

				if callsMade >= l.cfg.MaxCalls {
					// The ceiling holds inside a batch too: a single
					// oversized batch must not execute past it.
					l.cfg.Logger.Warn("call budget exhausted mid-batch, skipping call",
						"tool", call.Name, "max", l.cfg.MaxCalls)
					messages = append(messages, ToolResultMessage(call.ID,
						"Skipped: the tool call budget for this request is exhausted."))
					continue
				}

				if emit != nil {
					if err := emit("tool", toolNotice(call)); err != nil {
						return Result{Calls: callsMade, Usage: usage, State: StateError},
							&ErrConnection{Err: err}
					}
				}

				out := dispatcher.Dispatch(ctx, call)
				if out.Handoff != nil {
					messages = append(messages, *out.Handoff)
				}
				messages = append(messages, out.Message)
				callsMade++

				if out.Failed {
					failed = true
					batchErr = out.Err
				}
			}
			pending = nil

			if failed {
				if batchErr == nil {
					batchErr = fmt.Errorf("tool batch failed")
				}
				return Result{Calls: callsMade, Usage: usage, State: StateError}, batchErr
			}
			state = StateStreamingModel
		}
	}
}

// streamTurn runs one model call: the provider feeds deltas into a fresh
// assembler, content is forwarded through emit as it arrives, and the
// frozen turn comes back once the stream closes.
func (l *Loop) streamTurn(ctx context.Context, req ChatRequest, emit EmitFunc) (Turn, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan Delta, 32)
	errc := make(chan error, 1)
	go func() {
		errc <- l.cfg.Provider.StreamChat(streamCtx, req, ch)
	}()

	var sink func(string) error
	if emit != nil {
		sink = func(content string) error { return emit("assistant", content) }
	}
	asm := NewAssembler(sink)
	turn, sinkErr := asm.Consume(ch)
	if sinkErr != nil {
		// The caller is gone: stop the provider and drain so its goroutine
		// can close the channel and exit.
		cancel()
		for range ch {
		}
		<-errc
		return Turn{}, &ErrConnection{Err: sinkErr}
	}

	if err := <-errc; err != nil {
		return Turn{}, err
	}
	return turn, nil
}

// toolNotice renders the caller-facing notice frame emitted before a tool
// call executes. The markup is stripped back out of the history by
// StripToolNotices on the next request.
func toolNotice(call ToolCall) string {
	args := call.Args
	var pretty []byte
	var v any
	if json.Unmarshal(args, &v) == nil {
		pretty, _ = json.MarshalIndent(v, "", "  ")
	}
	if pretty == nil {
		pretty = args
	}
	return fmt.Sprintf(
		"\n<action>Executing <b>%s</b></action>\n\n<details>\n<summary>\nArguments:\n</summary>\n\n```json\n%s\n```\n\n</details>\n",
		call.Name, pretty)
}
