package core

import (
	"testing"
	"time"

	"batchcore/pkg/domain"
)

func row(label string, rank int) *domain.Node {
	return &domain.Node{Label: label, RankOrder: rank, AcquisitionLevel: levelSorting}
}

func TestReconcileReusesPersistedRowOnce(t *testing.T) {
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := []*domain.Node{{ID: 11, Label: "dup", RankOrder: 1, AcquisitionLevel: levelSorting, UpdatedAt: stamp}}
	fresh := []*domain.Node{row("dup", 1), row("dup", 1)}
	fresh[0].ID = 99
	fresh[1].ID = 11

	report := Reconcile(fresh, existing, nil)
	if fresh[0].ID != 11 || !fresh[0].UpdatedAt.Equal(stamp) {
		t.Fatalf("first duplicate must take the persisted id: %+v", fresh[0])
	}
	if fresh[1].ID != 0 {
		t.Fatalf("second duplicate must be new, got id %d", fresh[1].ID)
	}
	if len(report.Matched) != 1 || len(report.Created) != 1 || len(report.Stale) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestReconcileDuplicateRowsFollowInputOrder(t *testing.T) {
	existing := []*domain.Node{
		{ID: 21, Label: "dup", RankOrder: 1, AcquisitionLevel: levelSorting},
		{ID: 22, Label: "dup", RankOrder: 1, AcquisitionLevel: levelSorting},
	}
	fresh := []*domain.Node{row("dup", 1), row("dup", 1)}
	fresh[0].ID = 22
	fresh[1].ID = 21

	report := Reconcile(fresh, existing, nil)
	if fresh[0].ID != 21 || fresh[1].ID != 22 {
		t.Fatalf("ids must follow input order, got %d and %d", fresh[0].ID, fresh[1].ID)
	}
	if len(report.Matched) != 2 || len(report.Created) != 0 || len(report.Stale) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	// Only the first row saw two candidates; the second found one left.
	if len(report.Ambiguous) != 1 || report.Ambiguous[0].Chosen != 21 {
		t.Fatalf("unexpected ambiguity %+v", report.Ambiguous)
	}
}

func TestReconcileFlagsAmbiguityAndStale(t *testing.T) {
	existing := []*domain.Node{
		{ID: 1, Label: "a", RankOrder: 1, AcquisitionLevel: levelSorting},
		{ID: 2, Label: "a", RankOrder: 1, AcquisitionLevel: levelSorting},
		{ID: 3, Label: "gone", RankOrder: 2, AcquisitionLevel: levelSorting},
	}
	fresh := []*domain.Node{row("a", 1)}
	child := row("a.%", 1)
	fresh[0].Children = []*domain.Node{child}

	report := Reconcile(fresh, existing, nil)
	if fresh[0].ID != 1 || child.ParentID != 1 {
		t.Fatalf("expected first candidate chosen and propagated, got id=%d parent=%d", fresh[0].ID, child.ParentID)
	}
	if len(report.Ambiguous) != 1 || len(report.Ambiguous[0].Candidates) != 2 || report.Ambiguous[0].Chosen != 1 {
		t.Fatalf("expected ambiguity report, got %+v", report.Ambiguous)
	}
	if len(report.Stale) != 2 || report.Stale[0].ID != 2 || report.Stale[1].ID != 3 {
		t.Fatalf("expected unclaimed rows stale, got %v", report.Stale)
	}
}

func TestReconcileCustomEquality(t *testing.T) {
	existing := []*domain.Node{{ID: 4, Label: "old name"}}
	fresh := []*domain.Node{{Label: "new name"}}
	byRank := func(a, b *domain.Node) bool { return a.RankOrder == b.RankOrder }
	Reconcile(fresh, existing, byRank)
	if fresh[0].ID != 4 {
		t.Fatalf("custom equality not used")
	}
}

func TestStructuralEqual(t *testing.T) {
	schema := testSchema(t)
	a := domain.NewNode("a", schema)
	b := domain.NewNode("a", schema)
	a.ParentID = 5
	if !StructuralEqual(a, b) {
		t.Fatalf("parent id must be ignored when one side is new")
	}
	b.ParentID = 6
	if StructuralEqual(a, b) {
		t.Fatalf("different persisted parents must differ")
	}
	b.ParentID = 5
	mustSet(t, a, paramLength, domain.DoubleValue(10))
	if StructuralEqual(a, b) {
		t.Fatalf("measurements must participate")
	}
	mustSet(t, b, paramLength, domain.DoubleValue(10))
	ratio := 0.2
	a.SamplingRatio = &ratio
	if StructuralEqual(a, b) {
		t.Fatalf("ratio must participate")
	}
	if StructuralEqual(a, nil) || !StructuralEqual(nil, nil) {
		t.Fatalf("nil handling")
	}
}
