// Package redis implements a Redis-backed store for shared deployments.
//
// Messages and artifacts are stored as hashes; document trees are
// JSON-serialized into a single hash field. The pipeline's single-writer
// discipline means no cross-field transactions are required beyond the
// create-once guard.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/inletlabs/inlet/store"
	"github.com/inletlabs/inlet/types"
)

// DefaultKeyPrefix namespaces all keys.
const DefaultKeyPrefix = "inlet"

// DefaultTimeout is the default per-operation timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis store.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// KeyPrefix namespaces keys (default: inlet).
	KeyPrefix string
	// Timeout is the per-operation timeout (default 5s).
	Timeout time.Duration
}

// Store is a Redis-backed store.Store implementation.
type Store struct {
	config Config
	client *goredis.Client
}

// New creates a Redis store from the given config.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}

	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Store{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

func (s *Store) messageKey(conversationID, messageID string) string {
	return fmt.Sprintf("%s:message:%s:%s", s.config.KeyPrefix, conversationID, messageID)
}

func (s *Store) artifactKey(id string) string {
	return fmt.Sprintf("%s:artifact:%s", s.config.KeyPrefix, id)
}

func (s *Store) ownerKey(ownerID string) string {
	return fmt.Sprintf("%s:project:%s", s.config.KeyPrefix, ownerID)
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeout)
}

// AppendText replaces the message's streaming text.
func (s *Store) AppendText(ctx context.Context, conversationID, messageID, text string) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.client.HSet(opCtx, s.messageKey(conversationID, messageID), map[string]any{
		"text":       text,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append text: %w", err)
	}
	return nil
}

// FinalizeMessage seals the message with its terminal status.
func (s *Store) FinalizeMessage(ctx context.Context, conversationID, messageID string, status types.SessionStatus, fault *types.ClassifiedError) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	fields := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if fault != nil {
		body, err := json.Marshal(fault)
		if err != nil {
			return fmt.Errorf("redis: marshal fault: %w", err)
		}
		fields["fault"] = string(body)
	}

	if err := s.client.HSet(opCtx, s.messageKey(conversationID, messageID), fields).Err(); err != nil {
		return fmt.Errorf("redis: finalize message: %w", err)
	}
	return nil
}

// CreateArtifact persists a new artifact. The id field doubles as the
// create-once guard via HSETNX.
func (s *Store) CreateArtifact(ctx context.Context, artifact *types.Artifact) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.artifactKey(artifact.ID)

	created, err := s.client.HSetNX(opCtx, key, "id", artifact.ID).Result()
	if err != nil {
		return fmt.Errorf("redis: create artifact: %w", err)
	}
	if !created {
		return fmt.Errorf("artifact %s: %w", artifact.ID, store.ErrAlreadyExists)
	}

	typed, err := json.Marshal(artifact.TypedData)
	if err != nil {
		return fmt.Errorf("redis: marshal typed data: %w", err)
	}

	err = s.client.HSet(opCtx, key, map[string]any{
		"session_id":      artifact.SessionID,
		"conversation_id": artifact.ConversationID,
		"type":            string(artifact.Type),
		"title":           artifact.Title,
		"raw_content":     artifact.RawContent,
		"typed_data":      string(typed),
		"version":         artifact.Version,
		"streaming":       boolField(artifact.IsStreaming),
		"created_at":      artifact.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      artifact.UpdatedAt.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: create artifact: %w", err)
	}
	return nil
}

// UpdateArtifact applies a patch to an existing artifact.
func (s *Store) UpdateArtifact(ctx context.Context, id string, patch store.ArtifactPatch) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.artifactKey(id)
	exists, err := s.client.Exists(opCtx, key).Result()
	if err != nil {
		return fmt.Errorf("redis: update artifact: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("artifact %s: %w", id, store.ErrNotFound)
	}

	fields := map[string]any{
		"updated_at": patch.UpdatedAt.Format(time.RFC3339Nano),
	}
	if patch.Type != nil {
		fields["type"] = string(*patch.Type)
	}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.RawContent != nil {
		fields["raw_content"] = *patch.RawContent
	}
	if patch.TypedData != nil {
		typed, err := json.Marshal(patch.TypedData)
		if err != nil {
			return fmt.Errorf("redis: marshal typed data: %w", err)
		}
		fields["typed_data"] = string(typed)
	}
	if patch.Version > 0 {
		fields["version"] = patch.Version
	}

	if err := s.client.HSet(opCtx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: update artifact: %w", err)
	}
	return nil
}

// FinalizeArtifact seals the artifact.
func (s *Store) FinalizeArtifact(ctx context.Context, id string) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.artifactKey(id)
	exists, err := s.client.Exists(opCtx, key).Result()
	if err != nil {
		return fmt.Errorf("redis: finalize artifact: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("artifact %s: %w", id, store.ErrNotFound)
	}

	err = s.client.HSet(opCtx, key, map[string]any{
		"streaming":  boolField(false),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: finalize artifact: %w", err)
	}
	return nil
}

// GetArtifact returns the artifact by id.
func (s *Store) GetArtifact(ctx context.Context, id string) (*types.Artifact, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(opCtx, s.artifactKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get artifact: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("artifact %s: %w", id, store.ErrNotFound)
	}

	artifact := &types.Artifact{
		ID:             fields["id"],
		SessionID:      fields["session_id"],
		ConversationID: fields["conversation_id"],
		Type:           types.ArtifactType(fields["type"]),
		Title:          fields["title"],
		RawContent:     fields["raw_content"],
		IsStreaming:    fields["streaming"] == "1",
	}
	if raw := fields["typed_data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &artifact.TypedData); err != nil {
			return nil, fmt.Errorf("redis: unmarshal typed data: %w", err)
		}
	}
	if raw := fields["version"]; raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: parse version: %w", err)
		}
		artifact.Version = v
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		artifact.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		artifact.UpdatedAt = t
	}

	return artifact, nil
}

// EnsureOwner creates the owning project record if absent.
func (s *Store) EnsureOwner(ctx context.Context, ownerID string) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.client.SetNX(opCtx, s.ownerKey(ownerID), time.Now().UTC().Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return fmt.Errorf("redis: ensure owner: %w", err)
	}
	return nil
}

// Backend identifies the store implementation for metrics dimensions.
func (s *Store) Backend() string {
	return "redis"
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Verify Store implements store.Store.
var _ store.Store = (*Store)(nil)
