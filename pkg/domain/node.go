package domain

import (
	"encoding/json"
	"time"
)

// SamplingSuffix is appended to a parent label to name its sampling child.
const SamplingSuffix = ".%"

// NodeID identifies a persisted node. Zero or negative ids mark nodes that
// have not been persisted yet; negative ids may serve as local references.
type NodeID int64

// IsPersisted reports whether the id was assigned by a persistence collaborator.
func (id NodeID) IsPersisted() bool { return id > 0 }

// Node is one element of a sampling tree (a catch batch or a biological
// sample). A node owns its children; the parent link never owns.
type Node struct {
	ID                   NodeID         `json:"id,omitempty"`
	ParentID             NodeID         `json:"parent_id,omitempty"`
	Label                string         `json:"label"`
	RankOrder            int            `json:"rank_order"`
	AcquisitionLevel     string         `json:"acquisition_level,omitempty"`
	Measurements         MeasurementSet `json:"measurements"`
	Weight               *Weight        `json:"weight,omitempty"`
	SamplingRatio        *float64       `json:"sampling_ratio,omitempty"`
	HasIndividualMeasure bool           `json:"has_individual_measure,omitempty"`
	IsSampling           bool           `json:"is_sampling,omitempty"`
	Comments             string         `json:"comments,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at,omitzero"`
	Children             []*Node        `json:"children,omitempty"`
	State                NodeState      `json:"-"`

	parent *Node
}

// NewNode creates a node bound to schema. A nil schema leaves it unbound.
func NewNode(label string, schema *Schema) *Node {
	n := &Node{Label: label, Measurements: NewMeasurementSet(schema)}
	if schema != nil {
		n.State = StateBound
	}
	return n
}

// Parent returns the non-owning parent link.
func (n *Node) Parent() *Node { return n.parent }

// Bound reports whether the measurement schema has been applied.
func (n *Node) Bound() bool { return n.Measurements.Bound() }

// Bind applies schema to the node measurements and advances an unbound node.
func (n *Node) Bind(schema *Schema) error {
	if err := n.Measurements.Bind(schema); err != nil {
		return err
	}
	if n.State == StateUnbound {
		n.State = StateBound
	}
	return nil
}

// AddChild appends child, links it and keeps ranks dense.
func (n *Node) AddChild(child *Node) {
	child.parent = n
	child.ParentID = n.ID
	n.Children = append(n.Children, child)
	n.Renumber()
}

// PrependChild inserts child first, links it and keeps ranks dense.
func (n *Node) PrependChild(child *Node) {
	child.parent = n
	child.ParentID = n.ID
	n.Children = append([]*Node{child}, n.Children...)
	n.Renumber()
}

// RemoveChild detaches the child at index i and re-densifies ranks.
func (n *Node) RemoveChild(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	child := n.Children[i]
	n.Children = append(n.Children[:i:i], n.Children[i+1:]...)
	child.parent = nil
	n.Renumber()
	return child
}

// RemoveChildren detaches every child matching pred and returns them.
func (n *Node) RemoveChildren(pred func(*Node) bool) []*Node {
	var removed []*Node
	kept := n.Children[:0:0]
	for _, c := range n.Children {
		if pred(c) {
			c.parent = nil
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	if len(removed) > 0 {
		n.Children = kept
		n.Renumber()
	}
	return removed
}

// Renumber assigns ranks 1..N following slice order.
func (n *Node) Renumber() {
	for i, c := range n.Children {
		c.RankOrder = i + 1
	}
}

// SamplingChild returns the child carrying the sampling marker.
func (n *Node) SamplingChild() *Node {
	for _, c := range n.Children {
		if c.IsSampling {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants depth-first, parents first. Returning
// false from fn skips the visited node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Relink restores parent links (and parent ids) below n, e.g. after decoding.
func (n *Node) Relink() {
	for _, c := range n.Children {
		c.parent = n
		if n.ID != 0 {
			c.ParentID = n.ID
		}
		c.Relink()
	}
}

// Clone deep-copies n and its subtree. The clone has no parent.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.parent = nil
	cp.Measurements = n.Measurements.Clone()
	cp.Weight = n.Weight.Clone()
	if n.SamplingRatio != nil {
		r := *n.SamplingRatio
		cp.SamplingRatio = &r
	}
	cp.Children = nil
	if len(n.Children) > 0 {
		cp.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			cc := c.Clone()
			cc.parent = &cp
			cp.Children = append(cp.Children, cc)
		}
	}
	return &cp
}

// Detached returns a shallow record of n without children or parent link, as
// handed to persistence collaborators.
func (n *Node) Detached() *Node {
	cp := *n
	cp.parent = nil
	cp.Children = nil
	cp.Measurements = n.Measurements.Clone()
	cp.Weight = n.Weight.Clone()
	if n.SamplingRatio != nil {
		r := *n.SamplingRatio
		cp.SamplingRatio = &r
	}
	return &cp
}

// DecodeTrees decodes a JSON array of nested nodes and restores parent links.
// Measurements stay unbound until a schema is applied.
func DecodeTrees(data []byte) ([]*Node, error) {
	var roots []*Node
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, err
	}
	for _, r := range roots {
		r.Relink()
	}
	return roots, nil
}
