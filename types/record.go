package types

import (
	"fmt"
	"strings"
)

// RecordKind is the discriminant for decoded stream records.
//
// The wire format is duck-typed (kind is implied by field presence), so the
// decoder resolves each record to exactly one kind at the boundary. Field
// precedence when multiple fields appear in one record: error, thinking,
// tool execution, text content, artifact, conversation id.
type RecordKind string

// Record kind constants.
const (
	// RecordError carries a terminal failure message for the stream.
	RecordError RecordKind = "error"
	// RecordThinking carries ephemeral narration; never persisted.
	RecordThinking RecordKind = "thinking"
	// RecordTool carries a tool-lifecycle status notification.
	RecordTool RecordKind = "tool_execution"
	// RecordText carries a text delta to append.
	RecordText RecordKind = "text"
	// RecordArtifact carries a structured document payload.
	RecordArtifact RecordKind = "artifact"
	// RecordConversation carries a backend-assigned conversation id.
	RecordConversation RecordKind = "conversation_id"
	// RecordDone is the [DONE] sentinel terminating the stream.
	RecordDone RecordKind = "done"
	// RecordUnknown is an unrecognized record, ignored for forward compatibility.
	RecordUnknown RecordKind = "unknown"
)

// Record is a decoded stream record, resolved to exactly one kind.
// Only the field matching Kind is populated.
type Record struct {
	Kind RecordKind

	// Error is the failure message (Kind == RecordError).
	Error string
	// Content is the text delta (Kind == RecordText).
	Content string
	// Thinking is the narration payload (Kind == RecordThinking).
	Thinking *ThinkingStatus
	// Tool is the tool-lifecycle payload (Kind == RecordTool).
	Tool *ToolEvent
	// Artifact is the structured document payload (Kind == RecordArtifact).
	Artifact *ArtifactPayload
	// ConversationID is the backend-assigned id (Kind == RecordConversation).
	ConversationID string
}

// ThinkingStatus is ephemeral backend narration.
// It updates UI state only; no store mutation.
type ThinkingStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ToolStatus is the lifecycle phase of a backend tool call.
type ToolStatus string

// Tool status constants.
const (
	ToolStarting  ToolStatus = "starting"
	ToolExecuting ToolStatus = "executing"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// ToolEvent is a tool-lifecycle status notification.
// Events for one stream must be observed strictly in arrival order;
// "tool N of M" display state depends on having seen event N-1.
type ToolEvent struct {
	Status       ToolStatus `json:"status"`
	ToolID       string     `json:"toolId,omitempty"`
	Message      string     `json:"message"`
	CurrentIndex int        `json:"currentIndex,omitempty"`
	TotalTools   int        `json:"totalTools,omitempty"`
}

// Progress renders the event as a short progress line for display,
// e.g. "tool 2/3: searching curriculum".
func (e *ToolEvent) Progress() string {
	var b strings.Builder
	b.WriteString("tool")
	if e.CurrentIndex > 0 && e.TotalTools > 0 {
		fmt.Fprintf(&b, " %d/%d", e.CurrentIndex, e.TotalTools)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else {
		b.WriteString(" ")
		b.WriteString(string(e.Status))
	}
	return b.String()
}

// ArtifactPayload is the structured document payload carried by an
// artifact record. Data is the schema-specific document tree.
type ArtifactPayload struct {
	Type  ArtifactType   `json:"type"`
	Title string         `json:"title"`
	Data  map[string]any `json:"data"`
}
