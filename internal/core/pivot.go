package core

import (
	"fmt"

	"batchcore/pkg/domain"
)

// PivotOptions tunes the acquisition levels assigned to nodes created by Pivot.
// Empty levels inherit the level of the pivoted node.
type PivotOptions struct {
	ChildLevel    string
	SamplingLevel string
}

// PivotResult lists what a pivot changed below the pivoted node.
type PivotResult struct {
	Created []*domain.Node
	Kept    []*domain.Node
	// Dropped holds children whose category left the dimension, detached with
	// their subtrees.
	Dropped []*domain.Node
}

// Pivot splits node into one child per dimension value. Existing children are
// matched by the category id stored under the dimension parameter, never by
// position. Children whose category is no longer part of the dimension are
// dropped. With an empty dimension the node keeps no categorical children and
// the sampling rule applies to the node itself.
//
// Pivot panics when node has no schema bound.
func Pivot(node *domain.Node, dimension []domain.CategoryValue, opts PivotOptions) (PivotResult, error) {
	if !node.Bound() {
		panic(fmt.Sprintf("core: pivot on unbound node %q", node.Label))
	}
	schema := node.Measurements.Schema()
	// Every category must be storable before the tree is touched.
	check := domain.NewMeasurementSet(schema)
	for _, cat := range dimension {
		if err := check.Set(cat.ParameterID, cat.Value()); err != nil {
			return PivotResult{}, err
		}
	}
	childLevel := opts.ChildLevel
	if childLevel == "" {
		childLevel = node.AcquisitionLevel
	}
	samplingLevel := opts.SamplingLevel
	if samplingLevel == "" {
		samplingLevel = childLevel
	}

	// Evidence of real sampling data keeps individual measure switched on.
	individual := node.HasIndividualMeasure
	for _, c := range node.Children {
		if s := c.SamplingChild(); s != nil && IsSampleNonEmpty(s) {
			individual = true
		}
		if c.IsSampling && IsSampleNonEmpty(c) {
			individual = true
		}
	}

	var res PivotResult
	previous := node.Children
	used := make(map[*domain.Node]bool, len(previous))
	seen := make(map[int]bool, len(dimension))
	ordered := make([]*domain.Node, 0, len(dimension))
	for _, cat := range dimension {
		if seen[cat.ID] {
			continue
		}
		seen[cat.ID] = true
		child := findCategoryChild(previous, cat, used)
		label := node.Label + "." + cat.Label
		if child == nil {
			child = domain.NewNode(label, schema)
			child.AcquisitionLevel = childLevel
			if err := child.Measurements.Set(cat.ParameterID, cat.Value()); err != nil {
				return PivotResult{}, err
			}
			res.Created = append(res.Created, child)
		} else {
			used[child] = true
			res.Kept = append(res.Kept, child)
		}
		child.Label = label
		ordered = append(ordered, child)
	}

	var ownSampling *domain.Node
	for _, c := range previous {
		if used[c] {
			continue
		}
		if c.IsSampling && len(dimension) == 0 {
			ownSampling = c
			continue
		}
		res.Dropped = append(res.Dropped, c)
	}
	for _, c := range res.Dropped {
		detach(c)
	}

	node.Children = nil
	if ownSampling != nil {
		node.Children = append(node.Children, ownSampling)
	}
	for _, c := range ordered {
		node.AddChild(c)
	}
	node.HasIndividualMeasure = individual

	holders := ordered
	if len(dimension) == 0 {
		holders = []*domain.Node{node}
	}
	for _, h := range holders {
		if individual {
			s := GetOrCreateSamplingChild(h)
			if s.AcquisitionLevel == "" || s.AcquisitionLevel == h.AcquisitionLevel {
				s.AcquisitionLevel = samplingLevel
			}
			s.Label = h.Label + domain.SamplingSuffix
		} else {
			h.RemoveChildren(func(c *domain.Node) bool { return c.IsSampling })
		}
	}
	return res, nil
}

func findCategoryChild(children []*domain.Node, cat domain.CategoryValue, used map[*domain.Node]bool) *domain.Node {
	for _, c := range children {
		if used[c] || c.IsSampling {
			continue
		}
		v, ok := c.Measurements.Get(cat.ParameterID)
		if !ok {
			continue
		}
		if id, ok := v.QualitativeID(); ok && id == cat.ID {
			return c
		}
	}
	return nil
}

func detach(n *domain.Node) {
	if p := n.Parent(); p != nil {
		for i, c := range p.Children {
			if c == n {
				p.RemoveChild(i)
				return
			}
		}
	}
}

// GetOrCreateSamplingChild returns the single sampling child of node, creating
// it with rank 1 when absent. Repeated calls return the same child.
func GetOrCreateSamplingChild(node *domain.Node) *domain.Node {
	if s := node.SamplingChild(); s != nil {
		return s
	}
	s := domain.NewNode(node.Label+domain.SamplingSuffix, node.Measurements.Schema())
	s.IsSampling = true
	s.AcquisitionLevel = node.AcquisitionLevel
	node.PrependChild(s)
	return s
}

// IsSampleNonEmpty reports whether a node carries real data rather than being
// an empty placeholder.
func IsSampleNonEmpty(n *domain.Node) bool {
	if n == nil {
		return false
	}
	return n.Weight.HasValue() ||
		!n.Measurements.IsEmpty() ||
		n.SamplingRatio != nil ||
		n.Comments != "" ||
		len(n.Children) > 0
}

// PruneEmptySamplingChildren removes placeholder sampling children below root
// and returns them.
func PruneEmptySamplingChildren(root *domain.Node) []*domain.Node {
	var pruned []*domain.Node
	root.Walk(func(n *domain.Node) bool {
		pruned = append(pruned, n.RemoveChildren(func(c *domain.Node) bool {
			return c.IsSampling && !IsSampleNonEmpty(c)
		})...)
		return true
	})
	return pruned
}
