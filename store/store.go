// Package store defines the state-repository boundary between the
// ingestion pipeline and persistence.
//
// The pipeline depends on these interfaces, never on ambient globals:
// the session controller is the single writer into the message store,
// and the materializer is the single writer into the artifact store.
// Implementations may keep state in memory (tests, embedding) or in a
// shared backend (store/redis).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/inletlabs/inlet/types"
)

// Sentinel errors for store failures.
var (
	// ErrNotFound indicates the target record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a create for an existing id.
	ErrAlreadyExists = errors.New("record already exists")
)

// Message is the chat-transcript record a session writes into.
type Message struct {
	ID             string
	ConversationID string
	// Text is the streaming text as last flushed.
	Text string
	// Status is the session status retained for display.
	Status types.SessionStatus
	// Fault is the classified failure, set only for error status.
	Fault *types.ClassifiedError
	// ArtifactID references the materialized artifact, when one exists.
	ArtifactID string
	UpdatedAt  time.Time
}

// MessageStore persists assistant messages.
type MessageStore interface {
	// AppendText replaces the message's streaming text with the
	// accumulated prefix. Later calls always carry a superset of
	// earlier ones, so replacement preserves ordering.
	AppendText(ctx context.Context, conversationID, messageID, text string) error

	// FinalizeMessage seals the message with its terminal status.
	FinalizeMessage(ctx context.Context, conversationID, messageID string, status types.SessionStatus, fault *types.ClassifiedError) error
}

// ArtifactPatch is an update-in-place delta for an artifact.
// Nil fields are left untouched.
type ArtifactPatch struct {
	Type       *types.ArtifactType
	Title      *string
	RawContent *string
	TypedData  map[string]any
	Version    int64
	UpdatedAt  time.Time
}

// ArtifactStore persists materialized artifacts.
// Create and Update are idempotent from the caller's perspective of
// at-most-one-call-per-logical-change; the materializer guarantees
// that discipline.
type ArtifactStore interface {
	// CreateArtifact persists a newly materialized artifact.
	CreateArtifact(ctx context.Context, artifact *types.Artifact) error

	// UpdateArtifact applies a patch to an existing artifact.
	UpdateArtifact(ctx context.Context, id string, patch ArtifactPatch) error

	// FinalizeArtifact seals the artifact (IsStreaming = false).
	FinalizeArtifact(ctx context.Context, id string) error

	// GetArtifact returns the artifact by id.
	GetArtifact(ctx context.Context, id string) (*types.Artifact, error)

	// EnsureOwner creates the artifact's owning project record if it
	// does not exist. Safe to call for an existing owner.
	EnsureOwner(ctx context.Context, ownerID string) error
}

// Store combines both repositories. The in-memory and redis
// implementations satisfy it.
type Store interface {
	MessageStore
	ArtifactStore
}
