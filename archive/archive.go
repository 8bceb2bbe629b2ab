// Package archive uploads sealed artifacts to object storage. A session
// finalizes into the state repository first; archival is an optional
// cold-storage copy for analytics and audit, keyed by conversation,
// artifact, and version.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/inletlabs/inlet/types"
)

// Config holds configuration for the S3 archive backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("archive bucket is required")
	}
	return nil
}

// ObjectPutter is the slice of the S3 API the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// record is the archived JSON document.
type record struct {
	ArtifactID     string         `json:"artifact_id"`
	SessionID      string         `json:"session_id"`
	ConversationID string         `json:"conversation_id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Version        int64          `json:"version"`
	Data           map[string]any `json:"data"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ArchivedAt     time.Time      `json:"archived_at"`
}

// Archiver uploads sealed artifacts as JSON objects.
type Archiver struct {
	client ObjectPutter
	config Config
}

// New creates an archiver against real S3, using the AWS SDK default
// credential chain (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsConfig, s3Opts...), cfg)
}

// NewWithClient creates an archiver over an existing client.
func NewWithClient(client ObjectPutter, cfg Config) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Archiver{client: client, config: cfg}, nil
}

// Archive uploads one sealed artifact. Returns the object key.
// Streaming artifacts are rejected: archival is for sealed state only.
func (a *Archiver) Archive(ctx context.Context, artifact *types.Artifact) (string, error) {
	if artifact == nil {
		return "", errors.New("nil artifact")
	}
	if artifact.IsStreaming {
		return "", fmt.Errorf("artifact %s is still streaming", artifact.ID)
	}

	doc := record{
		ArtifactID:     artifact.ID,
		SessionID:      artifact.SessionID,
		ConversationID: artifact.ConversationID,
		Type:           string(artifact.Type),
		Title:          artifact.Title,
		Version:        artifact.Version,
		Data:           artifact.TypedData,
		CreatedAt:      artifact.CreatedAt,
		UpdatedAt:      artifact.UpdatedAt,
		ArchivedAt:     time.Now().UTC(),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("archive: marshal artifact: %w", err)
	}

	key := a.Key(artifact)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, nil
}

// Key returns the object key for an artifact version:
// <prefix>/conversation=<id>/artifact=<id>/v<version>.json
func (a *Archiver) Key(artifact *types.Artifact) string {
	conversation := artifact.ConversationID
	if conversation == "" {
		conversation = "unassigned"
	}
	return path.Join(
		a.config.Prefix,
		"conversation="+conversation,
		"artifact="+artifact.ID,
		fmt.Sprintf("v%d.json", artifact.Version),
	)
}
