package memory

import (
	"context"
	"testing"
	"time"

	"batchcore/pkg/domain"
)

func node(label string, parent domain.NodeID, rank int) *domain.Node {
	return &domain.Node{Label: label, ParentID: parent, RankOrder: rank}
}

func TestStoreSaveAssignsIDsInInputOrder(t *testing.T) {
	store := NewStore()
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()

	in := []*domain.Node{node("a", 0, 1), node("b", 0, 2)}
	saved, err := store.Save(ctx, "CATCH_BATCH", in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(saved) != 2 || saved[0].ID != 1 || saved[1].ID != 2 {
		t.Fatalf("unexpected ids: %+v", saved)
	}
	if saved[0].AcquisitionLevel != "CATCH_BATCH" || !saved[0].UpdatedAt.Equal(fixed) {
		t.Fatalf("expected level and timestamp applied, got %+v", saved[0])
	}
	if in[0].ID != 0 {
		t.Fatalf("input must not be mutated")
	}

	saved[0].Comments = "updated"
	again, err := store.Save(ctx, "", saved[:1])
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if again[0].ID != 1 || store.Len() != 2 {
		t.Fatalf("expected update in place, got id %d len %d", again[0].ID, store.Len())
	}
}

func TestStoreLoadFiltersAndOrders(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	roots, _ := store.Save(ctx, "CATCH_BATCH", []*domain.Node{node("root", 0, 1)})
	rootID := roots[0].ID
	if _, err := store.Save(ctx, "SORTING_BATCH", []*domain.Node{node("second", rootID, 2), node("first", rootID, 1)}); err != nil {
		t.Fatalf("save children: %v", err)
	}

	kids, err := store.Load(ctx, "", domain.LoadFilter{ParentIDs: []domain.NodeID{rootID}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(kids) != 2 || kids[0].Label != "first" || kids[1].Label != "second" {
		t.Fatalf("expected rank ordered children, got %+v", kids)
	}
	byLevel, _ := store.Load(ctx, "CATCH_BATCH", domain.LoadFilter{})
	if len(byLevel) != 1 || byLevel[0].Label != "root" {
		t.Fatalf("expected level filter to keep root only, got %+v", byLevel)
	}
	byID, _ := store.Load(ctx, "", domain.LoadFilter{IDs: []domain.NodeID{kids[1].ID}})
	if len(byID) != 1 || byID[0].Label != "second" {
		t.Fatalf("expected id filter, got %+v", byID)
	}
}

func TestStoreDeleteCascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	roots, _ := store.Save(ctx, "L1", []*domain.Node{node("root", 0, 1), node("other", 0, 2)})
	kids, _ := store.Save(ctx, "L2", []*domain.Node{node("kid", roots[0].ID, 1)})
	if _, err := store.Save(ctx, "L3", []*domain.Node{node("grandkid", kids[0].ID, 1)}); err != nil {
		t.Fatalf("save grandkid: %v", err)
	}
	if err := store.Delete(ctx, "", []domain.NodeID{roots[0].ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected only unrelated root left, got %d records", store.Len())
	}
	if err := store.Delete(ctx, "L2", []domain.NodeID{roots[1].ID}); err != nil {
		t.Fatalf("delete with level: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("level mismatch must not delete")
	}
}

func TestStoreExportImportKeepsSequence(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saved, _ := store.Save(ctx, "L1", []*domain.Node{node("a", 0, 1), node("b", 0, 2)})
	_ = store.Delete(ctx, "", []domain.NodeID{saved[1].ID})
	snapshot := store.ExportState()

	restored := NewStore()
	restored.ImportState(snapshot)
	next, _ := restored.Save(ctx, "L1", []*domain.Node{node("c", 0, 3)})
	if next[0].ID != 3 {
		t.Fatalf("expected sequence to continue at 3, got %d", next[0].ID)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, "L1", []*domain.Node{node("a", 0, 1)}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSnapshotBucketsRoundTrip(t *testing.T) {
	empty, err := Snapshot{NextID: 3}.Buckets()
	if err != nil {
		t.Fatalf("buckets: %v", err)
	}
	if empty[0].Name != BucketNodes || string(empty[0].Payload) != "[]" || string(empty[1].Payload) != "3" {
		t.Fatalf("unexpected buckets %+v", empty)
	}

	var snap Snapshot
	if err := snap.Apply(BucketNodes, []byte(`[{"id":4,"label":"CATCH"}]`)); err != nil {
		t.Fatalf("apply nodes: %v", err)
	}
	if err := snap.Apply("unknown", []byte("garbage")); err != nil {
		t.Fatalf("unknown bucket should be ignored: %v", err)
	}
	if err := snap.Apply(BucketSequence, []byte("x")); err == nil {
		t.Fatalf("expected decode error")
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].ID != 4 || snap.Nodes[0].Label != "CATCH" {
		t.Fatalf("unexpected snapshot %+v", snap.Nodes)
	}
}
