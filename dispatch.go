package sift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Dispatcher resolves and executes the tool calls of one request. It is
// created per request and holds the request-scoped dedup set and active
// capability group; it shares no state across requests.
type Dispatcher struct {
	catalog  *Catalog
	logger   *slog.Logger
	tracer   Tracer
	executed map[string]bool // identity keys of calls already run this request
	group    string          // active capability group, "" before the first call
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// DispatcherLogger sets the structured logger.
func DispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// DispatcherTracer enables span creation around handler execution.
func DispatcherTracer(t Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a Dispatcher for one request.
func NewDispatcher(catalog *Catalog, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		catalog:  catalog,
		logger:   nopLogger,
		executed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Outcome is the result of dispatching a single tool call. Message is the
// one tool message answering the call's id — every dispatched call
// produces exactly one, whatever happened. Handoff, when set, is a
// transient system message describing the newly active capability group.
// Failed marks a handler failure; the loop's batch policy decides whether
// that ends the request.
type Outcome struct {
	Message ChatMessage
	Handoff *ChatMessage
	Invoked bool
	Failed  bool
	// Err is the raw handler failure when Failed is set, kept for
	// classification at the loop boundary.
	Err error
}

// Dispatch resolves and executes one tool call.
//
// Unknown names and malformed arguments produce descriptive tool messages
// the model can self-correct from. A call whose identity key (name +
// canonical arguments) was already executed this request is skipped rather
// than re-running a possibly side-effecting handler. Handler errors and
// panics are converted into the tool message's content with a retry
// framing; Dispatch itself never propagates them.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) Outcome {
	handler, group, ok := d.catalog.Lookup(call.Name)
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name)
		return Outcome{Message: ToolResultMessage(call.ID, fmt.Sprintf(
			"Unknown tool call: %s; available tools are: %s",
			call.Name, strings.Join(d.catalog.Names(), ", ")))}
	}

	args, parseErr := decodeArgs(call)
	if parseErr != nil {
		// Recoverable: surface to the model so it can re-emit a cleaner call.
		d.logger.Warn("tool arguments failed to parse", "tool", call.Name, "error", parseErr)
		return Outcome{Message: ToolResultMessage(call.ID,
			"error: "+parseErr.Error()+". Re-emit the call with valid JSON arguments.")}
	}
	if err := d.catalog.ValidateArgs(call.Name, args); err != nil {
		d.logger.Warn("tool arguments failed validation", "tool", call.Name, "error", err)
		return Outcome{Message: ToolResultMessage(call.ID,
			"error: "+err.Error()+". Re-emit the call with arguments matching the tool schema.")}
	}

	key := identityKey(call.Name, call.Args)
	if d.executed[key] {
		d.logger.Info("duplicate tool call skipped", "tool", call.Name)
		return Outcome{Message: ToolResultMessage(call.ID, fmt.Sprintf(
			"Tool call `%s` has been executed before with the same arguments. Skipping.", call.Name))}
	}

	var handoff *ChatMessage
	if d.group != "" && group != d.group {
		msg := SystemMessage(d.catalog.Charter(group))
		handoff = &msg
		d.logger.Info("capability group handoff", "from", d.group, "to", group)
	}
	d.group = group
	d.executed[key] = true

	execCtx := ctx
	var span Span
	if d.tracer != nil {
		execCtx, span = d.tracer.Start(ctx, "tool.execute",
			StringAttr("tool", call.Name), StringAttr("group", group))
		defer span.End()
	}

	result, err := d.execute(execCtx, handler, call)
	if err != nil {
		if span != nil {
			span.Error(err)
		}
		d.logger.Error("tool handler failed", "tool", call.Name, "error", err)
		return Outcome{
			Message: ToolResultMessage(call.ID, fmt.Sprintf(
				"Something went wrong: %v. Re-execute %s with these arguments: %s",
				err, call.Name, string(call.Args))),
			Handoff: handoff,
			Invoked: true,
			Failed:  true,
			Err:     err,
		}
	}

	content := result.Content
	if result.Error != "" {
		// Tool-level errors are part of the conversation, not a fault.
		content = "error: " + result.Error
	}
	return Outcome{
		Message: ToolResultMessage(call.ID, content),
		Handoff: handoff,
		Invoked: true,
	}
}

// execute invokes the handler with panic recovery so a misbehaving tool
// cannot crash the request-processing goroutine.
func (d *Dispatcher) execute(ctx context.Context, h Handler, call ToolCall) (result ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %q panic: %v", call.Name, p)
		}
	}()
	return h.Execute(ctx, call.Name, call.Args)
}

// decodeArgs parses the raw accumulated argument string. Empty arguments
// are treated as an empty object, matching providers that omit the
// arguments field entirely for zero-parameter tools.
func decodeArgs(call ToolCall) (any, error) {
	raw := call.Args
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ErrArgParse{Tool: call.Name, Raw: string(raw), Err: err}
	}
	return v, nil
}

// identityKey derives the dedup key for a call: tool name plus the
// canonical serialization of its arguments. Canonicalization re-marshals
// the decoded value so object key order and whitespace do not defeat
// dedup; arguments that do not parse fall back to the raw string.
func identityKey(name string, args json.RawMessage) string {
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return name + string(args)
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return name + string(args)
	}
	return name + string(canon)
}
