// Package artifact owns the create-once/update-many lifecycle of the
// structured document associated with a single stream session.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inletlabs/inlet/log"
	"github.com/inletlabs/inlet/metrics"
	"github.com/inletlabs/inlet/store"
	"github.com/inletlabs/inlet/types"
)

// Materializer materializes at most one artifact per session.
//
// Two ingestion paths feed it: the structured artifact channel and the
// legacy embedded-JSON extraction over accumulating prose. Both funnel
// through Upsert: the first payload creates the artifact (version 1),
// every later payload merges into it and bumps the version. Duplicate
// payloads are detected by deep comparison and applied as no-ops, so
// delivery retries never double-apply a structural change.
//
// Once a structured payload has been seen, legacy extraction is ignored
// for the rest of the session: the explicit channel is authoritative.
type Materializer struct {
	mu        sync.Mutex
	meta      *types.SessionMeta
	store     store.ArtifactStore
	logger    *log.Logger
	collector *metrics.Collector

	current        *types.Artifact
	structuredSeen bool
	ownerEnsured   bool
	sealed         bool
}

// NewMaterializer creates a materializer for one session.
func NewMaterializer(meta *types.SessionMeta, st store.ArtifactStore, logger *log.Logger, collector *metrics.Collector) *Materializer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Materializer{
		meta:      meta,
		store:     st,
		logger:    logger,
		collector: collector,
	}
}

// UpsertStructured applies a payload from the structured artifact channel.
func (m *Materializer) UpsertStructured(ctx context.Context, payload *types.ArtifactPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.structuredSeen = true
	return m.upsertLocked(ctx, payload)
}

// ScanText runs the legacy extraction path over the accumulated text.
// No-op once a structured payload has been seen for this session.
func (m *Materializer) ScanText(ctx context.Context, committed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.structuredSeen {
		return nil
	}

	payload, ok := ExtractEmbedded(committed)
	if !ok {
		return nil
	}
	m.collector.IncLegacyExtracts()

	return m.upsertLocked(ctx, payload)
}

// upsertLocked creates or merges. Caller must hold mu.
func (m *Materializer) upsertLocked(ctx context.Context, payload *types.ArtifactPayload) error {
	if m.sealed {
		m.logger.Warn("payload after seal ignored", map[string]any{
			"type": payload.Type,
		})
		return nil
	}

	raw, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("serialize payload: %w", err)
	}

	now := time.Now().UTC()

	if m.current == nil {
		artifact := &types.Artifact{
			ID:             uuid.NewString(),
			SessionID:      m.meta.SessionID,
			ConversationID: m.meta.ConversationID,
			Type:           payload.Type,
			Title:          payload.Title,
			RawContent:     string(raw),
			TypedData:      payload.Data,
			Version:        1,
			IsStreaming:    true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := m.store.CreateArtifact(ctx, artifact); err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		m.current = artifact
		m.collector.IncArtifactsCreated()
		m.logger.Info("artifact created", map[string]any{
			"artifact_id": artifact.ID,
			"type":        artifact.Type,
			"title":       artifact.Title,
		})
		return nil
	}

	merged := mergeTree(m.current.TypedData, payload.Data)

	// Duplicate delivery detection: same type, title, and resulting
	// tree means nothing to apply and no version bump.
	if m.current.Type == payload.Type &&
		m.current.Title == payload.Title &&
		reflect.DeepEqual(merged, m.current.TypedData) {
		m.collector.IncArtifactNoOps()
		m.logger.Debug("duplicate payload ignored", map[string]any{
			"artifact_id": m.current.ID,
			"version":     m.current.Version,
		})
		return nil
	}

	m.current.Type = payload.Type
	m.current.Title = payload.Title
	m.current.RawContent = string(raw)
	m.current.TypedData = merged
	m.current.Version++
	m.current.UpdatedAt = now

	patch := store.ArtifactPatch{
		Type:       &m.current.Type,
		Title:      &m.current.Title,
		RawContent: &m.current.RawContent,
		TypedData:  merged,
		Version:    m.current.Version,
		UpdatedAt:  now,
	}
	if err := m.store.UpdateArtifact(ctx, m.current.ID, patch); err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	m.collector.IncArtifactUpdates()
	return nil
}

// Seal finalizes the artifact on session termination: IsStreaming is
// forced false and the owning project record is created if needed.
// Owner creation fires at most once per session, guarded by a flag
// rather than a storage re-query to avoid a read-then-create race.
// Safe to call with no artifact and safe to call twice.
func (m *Materializer) Seal(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sealed {
		return nil
	}
	m.sealed = true

	if m.current == nil {
		return nil
	}

	if err := m.store.FinalizeArtifact(ctx, m.current.ID); err != nil {
		return fmt.Errorf("seal artifact: %w", err)
	}
	m.current.IsStreaming = false

	if !m.ownerEnsured {
		m.ownerEnsured = true
		if err := m.store.EnsureOwner(ctx, m.meta.ConversationID); err != nil {
			return fmt.Errorf("ensure owner: %w", err)
		}
	}

	m.logger.Info("artifact sealed", map[string]any{
		"artifact_id": m.current.ID,
		"version":     m.current.Version,
	})
	return nil
}

// SetConversationID updates the owner id when the backend assigns a
// conversation id mid-stream.
func (m *Materializer) SetConversationID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.meta.ConversationID = id
	if m.current != nil {
		m.current.ConversationID = id
	}
}

// Current returns a copy of the materialized artifact, or nil.
func (m *Materializer) Current() *types.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// mergeTree merges src into dst without mutating either. Maps merge
// recursively; any other value in src replaces the value in dst.
func mergeTree(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := out[k].(map[string]any); ok {
				out[k] = mergeTree(dstMap, srcMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}
