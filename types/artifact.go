package types

import "time"

// ArtifactType discriminates the schema of an artifact's document tree.
type ArtifactType string

// Artifact type constants.
const (
	ArtifactMindmap   ArtifactType = "mindmap"
	ArtifactSkillAtom ArtifactType = "skill-atom"
	ArtifactDrill     ArtifactType = "drill"
	ArtifactProgress  ArtifactType = "progress"
)

// Known returns true if the type is a recognized artifact schema.
// Unknown types are still materialized; downstream renderers decide
// whether they can display them.
func (t ArtifactType) Known() bool {
	switch t {
	case ArtifactMindmap, ArtifactSkillAtom, ArtifactDrill, ArtifactProgress:
		return true
	}
	return false
}

// Artifact is a structured document materialized from one stream session.
//
// At most one Artifact exists per session: the first payload creates it,
// every subsequent payload merges into it and bumps Version. IsStreaming
// is true from creation until the session reaches a terminal state.
type Artifact struct {
	// ID is the artifact identifier, assigned at creation.
	ID string
	// SessionID is the owning stream session.
	SessionID string
	// ConversationID is the owning conversation, when known.
	ConversationID string
	// Type discriminates the document schema.
	Type ArtifactType
	// Title is the human-readable document title.
	Title string
	// RawContent is the serialized payload as last received.
	RawContent string
	// TypedData is the parsed, schema-specific document tree.
	TypedData map[string]any
	// Version counts applied (non-no-op) payloads, starting at 1.
	Version int64
	// IsStreaming is true while the owning session is non-terminal.
	IsStreaming bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy safe to hand to observers while the
// materializer keeps mutating the original.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.TypedData = cloneTree(a.TypedData)
	return &c
}

// cloneTree deep-copies a document tree of maps, slices, and scalars.
func cloneTree(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneTree(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
