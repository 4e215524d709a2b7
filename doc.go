// Package sift is a streaming tool-calling agent server for OSINT-style
// investigations.
//
// The core is an orchestration loop that drives a multi-turn conversation
// with an OpenAI-compatible model: partial text is forwarded to the caller
// in real time over SSE while tool calls, fragmented across the token
// stream, are reassembled, deduplicated, and dispatched to pluggable
// handlers. Failures are classified into a small taxonomy so tool-level
// errors stay recoverable while transport and provider errors end the
// request with a structured error frame.
//
// # Building blocks
//
//   - [Assembler] — reassembles provider deltas into content + a ToolCallSet
//   - [Loop] — the per-request state machine (model turn → tool batch → repeat)
//   - [Dispatcher] — resolves, deduplicates, and executes tool calls
//   - [Catalog] — name-keyed registry of grouped tool handlers
//   - [Provider] — LLM backend contract (provider/openaicompat included)
//   - [Server] — the HTTP surface (POST /prompt SSE, GET /health)
//
// Tool handlers live under tools/ (search, scrape, breach, bio, pyexec) and
// are external collaborators: the loop only depends on the Handler contract.
//
// See cmd/siftd for a complete server wiring.
package sift
