package core

import (
	"batchcore/pkg/domain"
)

// EqualFunc decides whether a freshly computed node describes the same record
// as a previously persisted one.
type EqualFunc func(fresh, existing *domain.Node) bool

// ReconcileReport describes how fresh nodes were paired with persisted ones.
type ReconcileReport struct {
	// Nodes is the fresh input in its original order.
	Nodes   []*domain.Node
	Matched []*domain.Node
	Created []*domain.Node
	// Ambiguous lists fresh nodes that matched more than one persisted node.
	// The first candidate was used.
	Ambiguous []domain.AmbiguousMatchError
	// Stale holds persisted nodes no fresh node claimed.
	Stale []*domain.Node
}

// Reconcile re-identifies fresh nodes against existing ones. Every fresh id
// is blanked first; each fresh node then takes the id of the first unconsumed
// existing node accepted by eq. An existing node is consumed at most once, so
// duplicates resolve by input order. Nodes without a match keep a zero id. A
// nil eq selects StructuralEqual.
func Reconcile(fresh, existing []*domain.Node, eq EqualFunc) ReconcileReport {
	if eq == nil {
		eq = StructuralEqual
	}
	report := ReconcileReport{Nodes: fresh}
	consumed := make([]bool, len(existing))
	for _, n := range fresh {
		n.ID = 0
	}
	for _, n := range fresh {
		chosen := -1
		var candidates []domain.NodeID
		for i, e := range existing {
			if consumed[i] || !eq(n, e) {
				continue
			}
			if chosen < 0 {
				chosen = i
			}
			candidates = append(candidates, e.ID)
		}
		if chosen < 0 {
			report.Created = append(report.Created, n)
			continue
		}
		consumed[chosen] = true
		n.ID = existing[chosen].ID
		n.UpdatedAt = existing[chosen].UpdatedAt
		for _, c := range n.Children {
			c.ParentID = n.ID
		}
		report.Matched = append(report.Matched, n)
		if len(candidates) > 1 {
			report.Ambiguous = append(report.Ambiguous, domain.AmbiguousMatchError{
				Label:      n.Label,
				Chosen:     n.ID,
				Candidates: candidates,
			})
		}
	}
	for i, e := range existing {
		if !consumed[i] {
			report.Stale = append(report.Stale, e)
		}
	}
	return report
}

// StructuralEqual compares the persisted content of two nodes. Identifiers and
// timestamps are ignored; parent ids only count when both sides carry one.
func StructuralEqual(a, b *domain.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ParentID.IsPersisted() && b.ParentID.IsPersisted() && a.ParentID != b.ParentID {
		return false
	}
	return a.Label == b.Label &&
		a.RankOrder == b.RankOrder &&
		a.AcquisitionLevel == b.AcquisitionLevel &&
		a.HasIndividualMeasure == b.HasIndividualMeasure &&
		a.IsSampling == b.IsSampling &&
		a.Comments == b.Comments &&
		equalRatio(a.SamplingRatio, b.SamplingRatio) &&
		a.Weight.Equal(b.Weight) &&
		a.Measurements.Equal(b.Measurements)
}

func equalRatio(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
