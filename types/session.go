package types

import "time"

// SessionStatus is the lifecycle state of a stream session.
//
// connecting -> streaming -> {tool-starting -> tool-executing -> tool-completed} -> complete
//
// error and aborted are reachable from any non-terminal state. Tool states
// are status annotations layered over continuous text accumulation, not
// mutually exclusive phases; any number of tool cycles may interleave with
// text deltas.
type SessionStatus string

// Session status constants.
const (
	StatusConnecting    SessionStatus = "connecting"
	StatusStreaming     SessionStatus = "streaming"
	StatusToolStarting  SessionStatus = "tool-starting"
	StatusToolExecuting SessionStatus = "tool-executing"
	StatusToolCompleted SessionStatus = "tool-completed"
	StatusComplete      SessionStatus = "complete"
	StatusError         SessionStatus = "error"
	StatusAborted       SessionStatus = "aborted"
)

// IsTerminal returns true for complete, error, and aborted.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusAborted
}

// IsToolPhase returns true for the tool-lifecycle annotation states.
func (s SessionStatus) IsToolPhase() bool {
	return s == StatusToolStarting || s == StatusToolExecuting || s == StatusToolCompleted
}

// StatusForTool maps a tool event status to the session annotation state.
func StatusForTool(ts ToolStatus) SessionStatus {
	switch ts {
	case ToolStarting:
		return StatusToolStarting
	case ToolExecuting:
		return StatusToolExecuting
	case ToolCompleted, ToolFailed:
		return StatusToolCompleted
	default:
		return StatusStreaming
	}
}

// SessionMeta is the identity of one stream session.
type SessionMeta struct {
	// SessionID is the session identifier, assigned at start.
	SessionID string
	// ConversationID is the owning conversation. May be updated mid-stream
	// from a conversation_id record when the request omitted one.
	ConversationID string
	// AssistantMessageID is the message the session writes into.
	AssistantMessageID string
	// StartedAt is the session start time.
	StartedAt time.Time
}

// ToolResult is one entry in the ordered tool-result log.
// Entries are appended strictly in arrival order.
type ToolResult struct {
	ToolID     string
	Status     ToolStatus
	Message    string
	Index      int
	Total      int
	ObservedAt time.Time
}

// StreamingState is the observable snapshot handed to the UI layer.
// The UI never parses protocol records itself.
type StreamingState struct {
	// Stage is the current session status.
	Stage SessionStatus
	// Progress is a short human-readable phase description,
	// e.g. thinking narration or "tool 2/3".
	Progress string
	// StreamingText is the revealed text prefix.
	StreamingText string
	// Err is the classified failure, set only in the error stage.
	Err *ClassifiedError
	// ArtifactID is the materialized artifact id, when one exists.
	ArtifactID string
}
