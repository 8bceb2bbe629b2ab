package types

import (
	"fmt"
	"time"
)

// FaultKind is the failure taxonomy for stream errors.
type FaultKind string

// Fault kind constants.
const (
	// FaultNetwork is a transport/connectivity failure.
	FaultNetwork FaultKind = "network"
	// FaultTimeout is a no-data-within-bound or abort-on-timeout failure.
	FaultTimeout FaultKind = "timeout"
	// FaultServer is an upstream 5xx-class failure.
	FaultServer FaultKind = "server"
	// FaultParsing is a malformed payload. Never retryable: the same
	// bytes cannot parse differently on a second attempt.
	FaultParsing FaultKind = "parsing"
	// FaultUnknown is anything unmatched. Conservatively retryable.
	FaultUnknown FaultKind = "unknown"
)

// ClassifiedError is a stream failure mapped into the fault taxonomy.
// It is attached to the session on failure and retained on the owning
// message for display.
type ClassifiedError struct {
	Kind       FaultKind
	Message    string
	Retryable  bool
	OccurredAt time.Time
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
