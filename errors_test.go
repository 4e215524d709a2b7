package sift

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "i/o timeout" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"connection", &ErrConnection{Err: errors.New("refused")}, ClassConnection},
		{"rate limit", &ErrRateLimit{Body: "slow down"}, ClassRateLimit},
		{"provider", &ErrProvider{Status: 500, Body: "oops"}, ClassProvider},
		{"arg parse", &ErrArgParse{Tool: "t", Raw: "{", Err: errors.New("eof")}, ClassArgParse},
		{"wrapped connection", fmt.Errorf("outer: %w", &ErrConnection{Err: errors.New("reset")}), ClassConnection},
		{"net error", fakeNetError{}, ClassConnection},
		{"context canceled", context.Canceled, ClassConnection},
		{"deadline", context.DeadlineExceeded, ClassConnection},
		{"plain", errors.New("mystery"), ClassUnhandled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorClassString(t *testing.T) {
	if got := ClassRateLimit.String(); got != "rate_limit_error" {
		t.Errorf("String() = %q", got)
	}
	if got := ErrorClass(99).String(); got != "unhandled_error" {
		t.Errorf("unknown class String() = %q", got)
	}
}

func TestErrorMessageClassified(t *testing.T) {
	err := &ErrRateLimit{Body: "too many requests"}
	msg, details := ErrorMessage(err)
	if msg != err.Error() {
		t.Errorf("message = %q, want %q", msg, err.Error())
	}
	if details != "" {
		t.Errorf("classified errors carry no details, got %q", details)
	}
}

func TestErrorMessageUnhandledTruncates(t *testing.T) {
	err := errors.New(strings.Repeat("x", 5000))
	msg, details := ErrorMessage(err)
	if !strings.HasPrefix(msg, "unhandled error: ") {
		t.Errorf("message = %q", msg)
	}
	if len(details) != maxErrorDetailLen {
		t.Errorf("details length = %d, want %d", len(details), maxErrorDetailLen)
	}
}

func TestErrConnectionUnwrap(t *testing.T) {
	inner := &net.OpError{Op: "dial", Err: errors.New("refused")}
	err := &ErrConnection{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ErrConnection must unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "failed to connect to language model") {
		t.Errorf("Error() = %q", err.Error())
	}
}
