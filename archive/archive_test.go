package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/inletlabs/inlet/types"
)

// stubPutter captures PutObject calls.
type stubPutter struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (s *stubPutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.inputs = append(s.inputs, params)
	if s.err != nil {
		return nil, s.err
	}
	return &s3.PutObjectOutput{}, nil
}

func sealedArtifact() *types.Artifact {
	return &types.Artifact{
		ID:             "art-1",
		SessionID:      "sess-1",
		ConversationID: "conv-1",
		Type:           types.ArtifactMindmap,
		Title:          "Fractions",
		TypedData:      map[string]any{"id": "root", "title": "Fractions"},
		Version:        3,
		IsStreaming:    false,
		CreatedAt:      time.Date(2026, 2, 7, 11, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC),
	}
}

func TestArchive_UploadsSealedArtifact(t *testing.T) {
	stub := &stubPutter{}
	a, err := NewWithClient(stub, Config{Bucket: "artifacts", Prefix: "sealed"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key, err := a.Archive(context.Background(), sealedArtifact())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	want := "sealed/conversation=conv-1/artifact=art-1/v3.json"
	if key != want {
		t.Errorf("key %q, want %q", key, want)
	}
	if len(stub.inputs) != 1 {
		t.Fatalf("put called %d times", len(stub.inputs))
	}

	input := stub.inputs[0]
	if *input.Bucket != "artifacts" {
		t.Errorf("bucket %q", *input.Bucket)
	}
	if *input.Key != want {
		t.Errorf("object key %q", *input.Key)
	}
	if *input.ContentType != "application/json" {
		t.Errorf("content type %q", *input.ContentType)
	}

	body, err := io.ReadAll(input.Body)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if doc["artifact_id"] != "art-1" || doc["version"] != float64(3) {
		t.Errorf("document %+v", doc)
	}
	if doc["type"] != "mindmap" {
		t.Errorf("type %v", doc["type"])
	}
}

func TestArchive_RejectsStreamingArtifact(t *testing.T) {
	stub := &stubPutter{}
	a, err := NewWithClient(stub, Config{Bucket: "artifacts"})
	if err != nil {
		t.Fatal(err)
	}

	artifact := sealedArtifact()
	artifact.IsStreaming = true
	if _, err := a.Archive(context.Background(), artifact); err == nil {
		t.Fatal("expected rejection of streaming artifact")
	}
	if len(stub.inputs) != 0 {
		t.Error("streaming artifact was uploaded")
	}
}

func TestArchive_NilArtifact(t *testing.T) {
	a, err := NewWithClient(&stubPutter{}, Config{Bucket: "artifacts"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Archive(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil artifact")
	}
}

func TestArchive_PutFailureSurfaces(t *testing.T) {
	stub := &stubPutter{err: errors.New("access denied")}
	a, err := NewWithClient(stub, Config{Bucket: "artifacts"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Archive(context.Background(), sealedArtifact()); err == nil {
		t.Fatal("expected put failure to surface")
	}
}

func TestKey_UnassignedConversation(t *testing.T) {
	a, err := NewWithClient(&stubPutter{}, Config{Bucket: "artifacts"})
	if err != nil {
		t.Fatal(err)
	}

	artifact := sealedArtifact()
	artifact.ConversationID = ""
	got := a.Key(artifact)
	want := "conversation=unassigned/artifact=art-1/v3.json"
	if got != want {
		t.Errorf("key %q, want %q", got, want)
	}
}

func TestNewWithClient_RequiresBucket(t *testing.T) {
	if _, err := NewWithClient(&stubPutter{}, Config{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
