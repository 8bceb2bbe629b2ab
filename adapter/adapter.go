// Package adapter defines the outbound notification boundary. When a
// session reaches a terminal state, the controller publishes one
// completion event to the configured adapters; downstream systems
// (webhooks, pub/sub consumers) react without polling the store.
package adapter

import (
	"context"
	"time"

	"github.com/inletlabs/inlet/types"
)

// SessionCompletedEvent describes one finished stream session.
type SessionCompletedEvent struct {
	// SessionID is the session identifier.
	SessionID string `json:"session_id"`
	// ConversationID is the owning conversation.
	ConversationID string `json:"conversation_id"`
	// MessageID is the assistant message the session wrote into.
	MessageID string `json:"message_id"`
	// Status is the terminal session status.
	Status types.SessionStatus `json:"status"`
	// Fault carries the classified failure for error outcomes.
	Fault *types.ClassifiedError `json:"fault,omitempty"`
	// ArtifactID is the materialized artifact, when one exists.
	ArtifactID string `json:"artifact_id,omitempty"`
	// ArtifactVersion is the final artifact version, when one exists.
	ArtifactVersion int64 `json:"artifact_version,omitempty"`
	// TextLen is the final text length in runes.
	TextLen int `json:"text_len"`
	// CompletedAt is the terminal timestamp.
	CompletedAt time.Time `json:"completed_at"`
}

// Adapter publishes session completion events.
type Adapter interface {
	// Publish delivers one completion event. Implementations retry
	// transient failures internally; a returned error is terminal.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error

	// Name returns the adapter name for logging.
	Name() string
}
