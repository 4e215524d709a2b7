package sift

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass buckets a failure for the HTTP boundary. Everything except
// ClassArgParse is fatal for the request; argument-parse failures are
// re-injected as tool content so the model can re-emit a cleaner call.
type ErrorClass int

const (
	ClassUnhandled ErrorClass = iota
	ClassConnection
	ClassRateLimit
	ClassProvider
	ClassArgParse
)

// String returns the class name used in logs and error frames.
func (c ErrorClass) String() string {
	switch c {
	case ClassConnection:
		return "connection_error"
	case ClassRateLimit:
		return "rate_limit_error"
	case ClassProvider:
		return "provider_api_error"
	case ClassArgParse:
		return "argument_parse_error"
	default:
		return "unhandled_error"
	}
}

// ErrConnection wraps a transport-level failure reaching the provider:
// dial errors, resets, and streams that die mid-read. Surfaced verbatim,
// never retried internally.
type ErrConnection struct {
	Err error
}

func (e *ErrConnection) Error() string {
	return "failed to connect to language model: " + e.Err.Error()
}

func (e *ErrConnection) Unwrap() error { return e.Err }

// ErrRateLimit is an HTTP 429 from the provider. Fatal for this request.
type ErrRateLimit struct {
	Body string
}

func (e *ErrRateLimit) Error() string {
	return "rate limit error: " + truncateStr(e.Body, 200)
}

// ErrProvider is a non-2xx, non-429 provider response. The raw message is
// passed through.
type ErrProvider struct {
	Status int
	Body   string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("language model returned an API error: http %d: %s", e.Status, e.Body)
}

// ErrArgParse means a tool call's accumulated arguments were not valid
// JSON. Recoverable: the dispatcher converts it into a tool-error message
// instead of ending the request.
type ErrArgParse struct {
	Tool string
	Raw  string
	Err  error
}

func (e *ErrArgParse) Error() string {
	return fmt.Sprintf("tool %s: arguments are not valid JSON: %v", e.Tool, e.Err)
}

func (e *ErrArgParse) Unwrap() error { return e.Err }

// maxErrorDetailLen bounds the diagnostic detail exposed for unhandled
// errors so internal state never leaks wholesale to callers.
const maxErrorDetailLen = 2000

// Classify maps an error into the taxonomy.
func Classify(err error) ErrorClass {
	var (
		conn  *ErrConnection
		rate  *ErrRateLimit
		prov  *ErrProvider
		parse *ErrArgParse
		netEr net.Error
	)
	switch {
	case errors.As(err, &conn):
		return ClassConnection
	case errors.As(err, &rate):
		return ClassRateLimit
	case errors.As(err, &prov):
		return ClassProvider
	case errors.As(err, &parse):
		return ClassArgParse
	case errors.As(err, &netEr):
		return ClassConnection
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassConnection
	default:
		return ClassUnhandled
	}
}

// ErrorMessage renders an error as a (message, details) pair for the final
// SSE frame. Connection, rate-limit, and provider errors surface their
// message verbatim with no details; unhandled errors get a generic message
// with the diagnostic text truncated.
func ErrorMessage(err error) (message, details string) {
	switch Classify(err) {
	case ClassConnection, ClassRateLimit, ClassProvider, ClassArgParse:
		return err.Error(), ""
	default:
		return "unhandled error: " + truncateStr(err.Error(), 200),
			truncateStr(fmt.Sprintf("%+v", err), maxErrorDetailLen)
	}
}
