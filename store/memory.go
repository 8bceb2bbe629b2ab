package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inletlabs/inlet/types"
)

// Memory is an in-process Store. Used directly by embedding callers and
// as the reference implementation in tests.
type Memory struct {
	mu        sync.RWMutex
	messages  map[string]*Message
	artifacts map[string]*types.Artifact
	owners    map[string]int

	// writeLog records mutation order for ordering assertions.
	writeLog []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages:  make(map[string]*Message),
		artifacts: make(map[string]*types.Artifact),
		owners:    make(map[string]int),
	}
}

func messageKey(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

// AppendText replaces the message's streaming text.
func (m *Memory) AppendText(_ context.Context, conversationID, messageID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := messageKey(conversationID, messageID)
	msg, ok := m.messages[key]
	if !ok {
		msg = &Message{ID: messageID, ConversationID: conversationID}
		m.messages[key] = msg
	}
	msg.Text = text
	msg.UpdatedAt = time.Now().UTC()
	m.writeLog = append(m.writeLog, "append:"+key)
	return nil
}

// FinalizeMessage seals the message with its terminal status.
func (m *Memory) FinalizeMessage(_ context.Context, conversationID, messageID string, status types.SessionStatus, fault *types.ClassifiedError) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := messageKey(conversationID, messageID)
	msg, ok := m.messages[key]
	if !ok {
		msg = &Message{ID: messageID, ConversationID: conversationID}
		m.messages[key] = msg
	}
	msg.Status = status
	msg.Fault = fault
	msg.UpdatedAt = time.Now().UTC()
	m.writeLog = append(m.writeLog, "finalize:"+key)
	return nil
}

// CreateArtifact persists a new artifact.
func (m *Memory) CreateArtifact(_ context.Context, artifact *types.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.artifacts[artifact.ID]; exists {
		return fmt.Errorf("artifact %s: %w", artifact.ID, ErrAlreadyExists)
	}
	m.artifacts[artifact.ID] = artifact.Clone()
	m.writeLog = append(m.writeLog, "create:"+artifact.ID)
	return nil
}

// UpdateArtifact applies a patch to an existing artifact.
func (m *Memory) UpdateArtifact(_ context.Context, id string, patch ArtifactPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	artifact, ok := m.artifacts[id]
	if !ok {
		return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	if patch.Type != nil {
		artifact.Type = *patch.Type
	}
	if patch.Title != nil {
		artifact.Title = *patch.Title
	}
	if patch.RawContent != nil {
		artifact.RawContent = *patch.RawContent
	}
	if patch.TypedData != nil {
		artifact.TypedData = patch.TypedData
	}
	if patch.Version > 0 {
		artifact.Version = patch.Version
	}
	artifact.UpdatedAt = patch.UpdatedAt
	m.writeLog = append(m.writeLog, "update:"+id)
	return nil
}

// FinalizeArtifact seals the artifact.
func (m *Memory) FinalizeArtifact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	artifact, ok := m.artifacts[id]
	if !ok {
		return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	artifact.IsStreaming = false
	artifact.UpdatedAt = time.Now().UTC()
	m.writeLog = append(m.writeLog, "seal:"+id)
	return nil
}

// GetArtifact returns a copy of the artifact by id.
func (m *Memory) GetArtifact(_ context.Context, id string) (*types.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	artifact, ok := m.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	return artifact.Clone(), nil
}

// EnsureOwner creates the owning project record if absent.
func (m *Memory) EnsureOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.owners[ownerID]++
	return nil
}

// GetMessage returns a copy of the message, for assertions.
func (m *Memory) GetMessage(conversationID, messageID string) (*Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[messageKey(conversationID, messageID)]
	if !ok {
		return nil, false
	}
	c := *msg
	return &c, true
}

// ArtifactCount returns the number of stored artifacts.
func (m *Memory) ArtifactCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}

// Artifacts returns copies of all stored artifacts.
func (m *Memory) Artifacts() []*types.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Artifact, 0, len(m.artifacts))
	for _, a := range m.artifacts {
		out = append(out, a.Clone())
	}
	return out
}

// OwnerCreateCalls returns how many times EnsureOwner was called for
// the given owner.
func (m *Memory) OwnerCreateCalls(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owners[ownerID]
}

// WriteLog returns the ordered mutation log.
func (m *Memory) WriteLog() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.writeLog...)
}

// Verify Memory implements Store.
var _ Store = (*Memory)(nil)
