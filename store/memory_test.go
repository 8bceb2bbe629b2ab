package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inletlabs/inlet/types"
)

func testArtifact(id string) *types.Artifact {
	return &types.Artifact{
		ID:          id,
		SessionID:   "sess-1",
		Type:        types.ArtifactMindmap,
		Title:       "Fractions",
		TypedData:   map[string]any{"id": "root"},
		Version:     1,
		IsStreaming: true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestMemory_MessageLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.AppendText(ctx, "conv-1", "msg-1", "Hello"); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendText(ctx, "conv-1", "msg-1", "Hello world"); err != nil {
		t.Fatal(err)
	}
	if err := m.FinalizeMessage(ctx, "conv-1", "msg-1", types.StatusComplete, nil); err != nil {
		t.Fatal(err)
	}

	msg, ok := m.GetMessage("conv-1", "msg-1")
	if !ok {
		t.Fatal("message not found")
	}
	if msg.Text != "Hello world" {
		t.Errorf("text %q", msg.Text)
	}
	if msg.Status != types.StatusComplete {
		t.Errorf("status %s", msg.Status)
	}
}

func TestMemory_FinalizeCarriesFault(t *testing.T) {
	m := NewMemory()
	fault := &types.ClassifiedError{Kind: types.FaultServer, Message: "503"}

	if err := m.FinalizeMessage(context.Background(), "conv-1", "msg-1", types.StatusError, fault); err != nil {
		t.Fatal(err)
	}

	msg, _ := m.GetMessage("conv-1", "msg-1")
	if msg.Fault == nil || msg.Fault.Kind != types.FaultServer {
		t.Errorf("fault %+v", msg.Fault)
	}
}

func TestMemory_CreateArtifactOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateArtifact(ctx, testArtifact("art-1")); err != nil {
		t.Fatal(err)
	}
	err := m.CreateArtifact(ctx, testArtifact("art-1"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemory_UpdateArtifact(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateArtifact(ctx, testArtifact("art-1")); err != nil {
		t.Fatal(err)
	}

	title := "Decimals"
	err := m.UpdateArtifact(ctx, "art-1", ArtifactPatch{
		Title:     &title,
		TypedData: map[string]any{"id": "root", "title": "Decimals"},
		Version:   2,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.GetArtifact(ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Decimals" || got.Version != 2 {
		t.Errorf("artifact %+v", got)
	}
	// Type untouched by a nil patch field
	if got.Type != types.ArtifactMindmap {
		t.Errorf("type %s", got.Type)
	}
}

func TestMemory_UpdateMissingArtifact(t *testing.T) {
	m := NewMemory()
	err := m.UpdateArtifact(context.Background(), "missing", ArtifactPatch{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_FinalizeArtifactSeals(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateArtifact(ctx, testArtifact("art-1")); err != nil {
		t.Fatal(err)
	}
	if err := m.FinalizeArtifact(ctx, "art-1"); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetArtifact(ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsStreaming {
		t.Error("artifact not sealed")
	}
}

func TestMemory_GetArtifactReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateArtifact(ctx, testArtifact("art-1")); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetArtifact(ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	got.TypedData["id"] = "mutated"

	again, err := m.GetArtifact(ctx, "art-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.TypedData["id"] != "root" {
		t.Error("stored artifact mutated through a returned copy")
	}
}

func TestMemory_WriteLogOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.AppendText(ctx, "c", "m", "a")
	_ = m.CreateArtifact(ctx, testArtifact("art-1"))
	_ = m.FinalizeArtifact(ctx, "art-1")
	_ = m.FinalizeMessage(ctx, "c", "m", types.StatusComplete, nil)

	want := []string{"append:c/m", "create:art-1", "seal:art-1", "finalize:c/m"}
	got := m.WriteLog()
	if len(got) != len(want) {
		t.Fatalf("write log %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMemory_EnsureOwnerCounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.EnsureOwner(ctx, "proj-1")
	_ = m.EnsureOwner(ctx, "proj-1")

	if got := m.OwnerCreateCalls("proj-1"); got != 2 {
		t.Errorf("owner calls %d", got)
	}
	if got := m.OwnerCreateCalls("proj-2"); got != 0 {
		t.Errorf("owner calls %d for untouched owner", got)
	}
}
