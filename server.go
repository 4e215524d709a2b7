package sift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// PromptRequest is the body of POST /prompt.
type PromptRequest struct {
	Messages  []PromptMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	RequestID string          `json:"request_id,omitempty"`
}

// ChunkFrame is one streamed SSE frame, shaped like a chat.completion.chunk
// so existing OpenAI-style clients can consume the stream unchanged.
type ChunkFrame struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is a single choice within a ChunkFrame.
type ChunkChoice struct {
	Index int        `json:"index"`
	Delta ChunkDelta `json:"delta"`
}

// ChunkDelta carries the incremental payload of a frame.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ErrorFrame is the final frame of a stream that hit a fatal error. It is
// emitted as a well-formed SSE frame followed by [DONE] rather than
// dropping the connection mid-stream.
type ErrorFrame struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// CompletionResponse is the non-streaming response body.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   CompletionUsage    `json:"usage"`
}

// CompletionUsage is the token accounting block of a non-streaming response.
type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionChoice holds the final assembled message.
type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// BioSource supplies bio memory lines for the system prompt. Implemented
// by the bio tool's store; nil disables bio injection.
type BioSource interface {
	Facts(ctx context.Context, query string) ([]string, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Loop       *Loop
	Model      string // model name echoed in response frames
	BasePrompt string
	IgnoreList []string
	Bio        BioSource
	Logger     *slog.Logger
}

// Server is the HTTP surface: POST /prompt (streaming SSE or single JSON)
// and GET /health. Each request gets its own loop run; the only shared
// state is read-only configuration.
type Server struct {
	cfg ServerConfig
}

// NewServer creates a Server. Loop is required.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Loop == nil {
		return nil, fmt.Errorf("server: Loop is required")
	}
	if cfg.BasePrompt == "" {
		cfg.BasePrompt = "You are a helpful assistant."
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	return &Server{cfg: cfg}, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", s.handlePrompt)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "no messages in the request", http.StatusBadRequest)
		return
	}

	reqID := req.RequestID
	if reqID == "" {
		reqID = "req-" + uuid.NewString()
	}
	logger := s.cfg.Logger.With("request_id", reqID)

	latest := LatestUserText(req.Messages)
	if matched := MatchIgnoreList(latest, s.cfg.IgnoreList); len(matched) > 0 {
		logger.Info("query matches ignore list", "entities", matched)
	}

	var bio []string
	if s.cfg.Bio != nil && latest != "" {
		lines, err := s.cfg.Bio.Facts(r.Context(), latest)
		if err != nil {
			// Bio retrieval is best-effort; the request proceeds without it.
			logger.Warn("bio retrieval failed", "error", err)
		} else {
			bio = lines
		}
	}

	systemPrompt := BuildSystemPrompt(s.cfg.BasePrompt, s.cfg.IgnoreList, bio)
	messages := RefineHistory(req.Messages, systemPrompt, time.Now())

	if req.Stream {
		s.streamPrompt(w, r, reqID, logger, messages)
		return
	}

	result, err := s.cfg.Loop.Run(r.Context(), messages, nil)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(CompletionResponse{
		ID:      reqID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   s.cfg.Model,
		Choices: []CompletionChoice{{Message: result.Message, FinishReason: "stop"}},
		Usage: CompletionUsage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	})
}

// streamPrompt runs the loop with an SSE emitter. The request context
// cancels on client disconnect, which propagates into the provider stream
// and any in-flight tool handler.
func (s *Server) streamPrompt(w http.ResponseWriter, r *http.Request, reqID string, logger *slog.Logger, messages []ChatMessage) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	enqueued := time.Now()
	var ttft time.Duration
	nFrames := 0

	emit := func(role, content string) error {
		frame := ChunkFrame{
			ID:      reqID,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Model:   s.cfg.Model,
			Choices: []ChunkChoice{{Delta: ChunkDelta{Role: role, Content: content}}},
		}
		if nFrames == 0 {
			ttft = time.Since(enqueued)
		}
		nFrames++
		return writeSSE(w, flusher, frame)
	}

	result, err := s.cfg.Loop.Run(r.Context(), messages, emit)
	if err != nil {
		message, details := ErrorMessage(err)
		logger.Error("request failed", "class", Classify(err).String(), "error", err)
		_ = writeSSE(w, flusher, ErrorFrame{Message: message, Details: details})
	} else {
		elapsed := time.Since(enqueued).Seconds()
		logger.Info("request complete",
			"ttft", ttft,
			"frames", nFrames,
			"fps", fmt.Sprintf("%.2f", float64(nFrames)/elapsed),
			"tool_calls", result.Calls,
			"tokens_in", result.Usage.InputTokens,
			"tokens_out", result.Usage.OutputTokens)
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSSE writes one data frame and flushes it so the caller sees the
// chunk immediately.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// writeError maps a classified error onto a non-streaming HTTP response.
func (s *Server) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	class := Classify(err)
	logger.Error("request failed", "class", class.String(), "error", err)

	status := http.StatusInternalServerError
	switch class {
	case ClassRateLimit:
		status = http.StatusTooManyRequests
	case ClassConnection, ClassProvider:
		status = http.StatusBadGateway
	}

	message, details := ErrorMessage(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorFrame{Message: message, Details: details})
}
