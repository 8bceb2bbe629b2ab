package artifact

import (
	"context"
	"testing"

	"github.com/inletlabs/inlet/metrics"
	"github.com/inletlabs/inlet/store"
	"github.com/inletlabs/inlet/types"
)

func newTestMaterializer(t *testing.T) (*Materializer, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	meta := &types.SessionMeta{
		SessionID:      "sess-1",
		ConversationID: "conv-1",
	}
	m := NewMaterializer(meta, mem, nil, metrics.NewCollector("test", "memory", "sess-1", "conv-1"))
	return m, mem
}

func mindmapPayload(title string, extra map[string]any) *types.ArtifactPayload {
	data := map[string]any{"id": "root", "title": title}
	for k, v := range extra {
		data[k] = v
	}
	return &types.ArtifactPayload{Type: types.ArtifactMindmap, Title: title, Data: data}
}

func TestMaterializer_AtMostOneArtifact(t *testing.T) {
	m, mem := newTestMaterializer(t)
	ctx := context.Background()

	payloads := []*types.ArtifactPayload{
		mindmapPayload("Graph v1", nil),
		mindmapPayload("Graph v2", map[string]any{"children": []any{"a"}}),
		mindmapPayload("Graph v3", map[string]any{"children": []any{"a", "b"}}),
	}
	for _, p := range payloads {
		if err := m.UpsertStructured(ctx, p); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if mem.ArtifactCount() != 1 {
		t.Fatalf("expected exactly one artifact, got %d", mem.ArtifactCount())
	}
	current := m.Current()
	if current.Version != 3 {
		t.Errorf("expected version 3 after 3 distinct payloads, got %d", current.Version)
	}
	if current.Title != "Graph v3" {
		t.Errorf("expected latest title, got %q", current.Title)
	}
}

func TestMaterializer_IdempotentUpsert(t *testing.T) {
	m, mem := newTestMaterializer(t)
	ctx := context.Background()

	p := mindmapPayload("Stable", map[string]any{"children": []any{"x"}})
	if err := m.UpsertStructured(ctx, p); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	once := m.Current()

	// Same payload again: no new artifact, no version bump, same tree.
	if err := m.UpsertStructured(ctx, mindmapPayload("Stable", map[string]any{"children": []any{"x"}})); err != nil {
		t.Fatalf("duplicate upsert: %v", err)
	}

	if mem.ArtifactCount() != 1 {
		t.Fatalf("duplicate created a second artifact")
	}
	twice := m.Current()
	if twice.Version != once.Version {
		t.Errorf("no-op patch bumped version: %d -> %d", once.Version, twice.Version)
	}
	if twice.TypedData["title"] != "Stable" {
		t.Errorf("typed data changed on duplicate: %+v", twice.TypedData)
	}
}

func TestMaterializer_MergePreservesExistingBranches(t *testing.T) {
	m, _ := newTestMaterializer(t)
	ctx := context.Background()

	first := &types.ArtifactPayload{
		Type:  types.ArtifactSkillAtom,
		Title: "Skill",
		Data: map[string]any{
			"id": "s1", "title": "Skill",
			"meta": map[string]any{"difficulty": "easy", "tags": []any{"t1"}},
		},
	}
	second := &types.ArtifactPayload{
		Type:  types.ArtifactSkillAtom,
		Title: "Skill",
		Data: map[string]any{
			"id": "s1", "title": "Skill",
			"meta": map[string]any{"tags": []any{"t1", "t2"}},
		},
	}
	if err := m.UpsertStructured(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertStructured(ctx, second); err != nil {
		t.Fatal(err)
	}

	meta := m.Current().TypedData["meta"].(map[string]any)
	if meta["difficulty"] != "easy" {
		t.Errorf("merge dropped sibling key: %+v", meta)
	}
	tags := meta["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("merge should replace non-map values, got %+v", tags)
	}
}

func TestMaterializer_SealFinalizesAndCreatesOwnerOnce(t *testing.T) {
	m, mem := newTestMaterializer(t)
	ctx := context.Background()

	if err := m.UpsertStructured(ctx, mindmapPayload("X", nil)); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := m.Seal(ctx); err != nil {
		t.Fatalf("second seal: %v", err)
	}

	current := m.Current()
	if current.IsStreaming {
		t.Error("sealed artifact must not remain streaming")
	}
	stored, err := mem.GetArtifact(ctx, current.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.IsStreaming {
		t.Error("stored artifact must be sealed")
	}
	if calls := mem.OwnerCreateCalls("conv-1"); calls != 1 {
		t.Errorf("owner creation must fire exactly once, got %d", calls)
	}
}

func TestMaterializer_SealWithoutArtifactIsNoop(t *testing.T) {
	m, mem := newTestMaterializer(t)

	if err := m.Seal(context.Background()); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if mem.ArtifactCount() != 0 {
		t.Error("seal must not invent an artifact")
	}
	if calls := mem.OwnerCreateCalls("conv-1"); calls != 0 {
		t.Errorf("no owner creation without an artifact, got %d", calls)
	}
}

func TestMaterializer_PayloadAfterSealIgnored(t *testing.T) {
	m, mem := newTestMaterializer(t)
	ctx := context.Background()

	if err := m.UpsertStructured(ctx, mindmapPayload("X", nil)); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertStructured(ctx, mindmapPayload("late", nil)); err != nil {
		t.Fatalf("late payload should be ignored, not fail: %v", err)
	}

	if got := m.Current().Title; got != "X" {
		t.Errorf("late payload mutated sealed artifact: %q", got)
	}
	if mem.ArtifactCount() != 1 {
		t.Errorf("late payload created an artifact")
	}
}

func TestMaterializer_LegacyScanFeedsUpsert(t *testing.T) {
	m, mem := newTestMaterializer(t)
	ctx := context.Background()

	prose := `Here is your mind map: {"id":"n1","title":"Fractions","type":"mindmap","children":[]} — enjoy!`
	if err := m.ScanText(ctx, prose); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if mem.ArtifactCount() != 1 {
		t.Fatalf("expected artifact from legacy scan, got %d", mem.ArtifactCount())
	}
	current := m.Current()
	if current.Type != types.ArtifactMindmap || current.Title != "Fractions" {
		t.Errorf("got %+v", current)
	}

	// Rescanning the same text is a no-op.
	if err := m.ScanText(ctx, prose); err != nil {
		t.Fatal(err)
	}
	if m.Current().Version != 1 {
		t.Errorf("rescan bumped version to %d", m.Current().Version)
	}
}

func TestMaterializer_StructuredChannelWins(t *testing.T) {
	m, _ := newTestMaterializer(t)
	ctx := context.Background()

	if err := m.UpsertStructured(ctx, mindmapPayload("Structured", nil)); err != nil {
		t.Fatal(err)
	}
	// Legacy block in the prose must be ignored once the structured
	// channel has delivered.
	if err := m.ScanText(ctx, `{"id":"other","title":"Legacy"}`); err != nil {
		t.Fatal(err)
	}

	if got := m.Current().Title; got != "Structured" {
		t.Errorf("legacy extraction overrode structured payload: %q", got)
	}
}
