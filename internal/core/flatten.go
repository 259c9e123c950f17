package core

import (
	"sort"

	"batchcore/pkg/domain"
)

// Flatten lists every node of the given trees depth-first, parents before
// children. The tree is not modified.
func Flatten(roots ...*domain.Node) []*domain.Node {
	var out []*domain.Node
	for _, r := range roots {
		if r == nil {
			continue
		}
		r.Walk(func(n *domain.Node) bool {
			out = append(out, n)
			return true
		})
	}
	return out
}

// FilterByLevel keeps the nodes whose acquisition level equals level.
func FilterByLevel(nodes []*domain.Node, level string) []*domain.Node {
	var out []*domain.Node
	for _, n := range nodes {
		if n.AcquisitionLevel == level {
			out = append(out, n)
		}
	}
	return out
}

// Rebuild attaches pool nodes to their parents among roots and pool, either by
// existing parent link or by ParentID. Unsaved ids (negative) match like
// persisted ones; zero never matches. Each parent receives its children
// ordered by RankOrder. A pool node that does not lead back to one of roots
// yields an OrphanChildError and nothing is modified.
func Rebuild(roots []*domain.Node, pool []*domain.Node) ([]*domain.Node, error) {
	inTree := make(map[*domain.Node]bool)
	byID := make(map[domain.NodeID]*domain.Node)
	for _, r := range roots {
		r.Walk(func(n *domain.Node) bool {
			inTree[n] = true
			if n.ID != 0 {
				byID[n.ID] = n
			}
			return true
		})
	}
	for _, n := range pool {
		if n.ID != 0 {
			if _, taken := byID[n.ID]; !taken {
				byID[n.ID] = n
			}
		}
	}

	parentOf := make(map[*domain.Node]*domain.Node, len(pool))
	for _, n := range pool {
		parent := n.Parent()
		if parent == nil && n.ParentID != 0 {
			parent = byID[n.ParentID]
		}
		if parent == nil || parent == n {
			return nil, domain.OrphanChildError{Label: n.Label}
		}
		parentOf[n] = parent
	}

	// Every pool node must lead back to a root tree before any parent changes.
	reachable := make(map[*domain.Node]bool, len(pool))
	for _, n := range pool {
		var chain []*domain.Node
		visiting := make(map[*domain.Node]bool)
		cur := n
		ok := false
		for {
			if inTree[cur] || reachable[cur] {
				ok = true
				break
			}
			p, inPool := parentOf[cur]
			if !inPool || visiting[cur] {
				break
			}
			visiting[cur] = true
			chain = append(chain, cur)
			cur = p
		}
		if !ok {
			return nil, domain.OrphanChildError{Label: n.Label}
		}
		for _, c := range chain {
			reachable[c] = true
		}
	}

	attached := make(map[*domain.Node][]*domain.Node)
	var parents []*domain.Node
	for _, n := range pool {
		p := parentOf[n]
		if _, ok := attached[p]; !ok {
			parents = append(parents, p)
		}
		attached[p] = append(attached[p], n)
	}
	for _, p := range parents {
		existing := make(map[*domain.Node]bool, len(p.Children))
		for _, c := range p.Children {
			existing[c] = true
		}
		for _, c := range attached[p] {
			if !existing[c] {
				p.Children = append(p.Children, c)
				existing[c] = true
			}
		}
		sort.SliceStable(p.Children, func(i, j int) bool {
			return p.Children[i].RankOrder < p.Children[j].RankOrder
		})
	}
	for _, r := range roots {
		r.Relink()
	}
	return roots, nil
}
