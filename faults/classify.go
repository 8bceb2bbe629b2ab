// Package faults maps raw transport and parse failures into a small
// taxonomy and decides retryability.
//
// Classification is heuristic by necessity: the transport layer surfaces
// free-form messages (connection errors, HTTP status text, JSON parse
// exceptions), so typed assertions are tried first and substring matching
// is the fallback.
package faults

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/inletlabs/inlet/sse"
	"github.com/inletlabs/inlet/types"
)

// Classify maps an error into the fault taxonomy.
// Parsing faults are never retryable: the payload itself is malformed
// and retrying the same bytes cannot help. All other kinds are
// retryable by default.
func Classify(err error) *types.ClassifiedError {
	if err == nil {
		return nil
	}

	kind := classifyKind(err)

	return &types.ClassifiedError{
		Kind:       kind,
		Message:    err.Error(),
		Retryable:  kind != types.FaultParsing && !errors.Is(err, context.Canceled),
		OccurredAt: time.Now().UTC(),
	}
}

// ClassifyMessage classifies a raw error string from the wire
// (the stream's explicit error field).
func ClassifyMessage(msg string) *types.ClassifiedError {
	return Classify(errors.New(msg))
}

func classifyKind(err error) types.FaultKind {
	// Typed assertions first.
	var decErr *sse.DecodeError
	if errors.As(err, &decErr) {
		return types.FaultParsing
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FaultTimeout
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return types.FaultTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg,
		"timeout", "timed out", "deadline exceeded"):
		return types.FaultTimeout

	case containsAny(msg,
		"json", "unmarshal", "invalid character", "unexpected token",
		"unexpected end of", "malformed", "parse error"):
		return types.FaultParsing

	case containsAny(msg,
		"500", "502", "503", "504", "internal server error",
		"bad gateway", "service unavailable", "gateway timeout",
		"upstream", "overloaded"):
		return types.FaultServer

	case containsAny(msg,
		"connection refused", "connection reset", "broken pipe",
		"no such host", "network unreachable", "no route to host",
		"dial tcp", "unexpected eof", "tls", "fetch failed", "dns"):
		return types.FaultNetwork

	default:
		return types.FaultUnknown
	}
}

// containsAny checks if s contains any of the substrings.
// Callers pass s already lowercased.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
