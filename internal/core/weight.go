package core

import (
	"batchcore/pkg/domain"
)

// WeightResolver maps the single logical weight of a node onto a preference
// ordered list of weight-bearing parameters. When several candidates are
// populated the first one wins.
type WeightResolver struct {
	candidates []domain.ParameterDefinition
}

// NewWeightResolver builds a resolver over candidates, first being the default.
func NewWeightResolver(candidates []domain.ParameterDefinition) WeightResolver {
	cp := make([]domain.ParameterDefinition, 0, len(candidates))
	for _, c := range candidates {
		cp = append(cp, c.Clone())
	}
	return WeightResolver{candidates: cp}
}

// WeightResolverFor builds a resolver from the weight parameters of schema.
func WeightResolverFor(schema *domain.Schema) WeightResolver {
	return WeightResolver{candidates: schema.WeightCandidates()}
}

// Candidates returns the candidate definitions in preference order.
func (r WeightResolver) Candidates() []domain.ParameterDefinition {
	out := make([]domain.ParameterDefinition, 0, len(r.candidates))
	for _, c := range r.candidates {
		out = append(out, c.Clone())
	}
	return out
}

// Extract returns the weight held by the first populated candidate, or nil.
func (r WeightResolver) Extract(set domain.MeasurementSet) *domain.Weight {
	for _, c := range r.candidates {
		v, ok := set.Get(c.ID)
		if !ok || v.IsEmpty() {
			continue
		}
		f, ok := v.Float()
		if !ok {
			continue
		}
		w := &domain.Weight{Value: &f}
		if m, ok := c.Method(); ok {
			w.MethodID = &m
			w.Estimated = m == domain.MethodEstimatedByObserver
		}
		return w
	}
	return nil
}

// Inject writes the weight into exactly one candidate slot and clears every
// other candidate. An estimated weight goes to the candidate sharing its
// method; anything else goes to the default candidate. A weight without value
// clears all candidate slots.
func (r WeightResolver) Inject(set *domain.MeasurementSet, w *domain.Weight) error {
	if !w.HasValue() {
		r.clear(set, -1)
		return nil
	}
	if err := w.Validate(); err != nil {
		return err
	}
	target := r.target(w)
	if target < 0 {
		return domain.ErrNoWeightCandidate
	}
	if err := set.Set(r.candidates[target].ID, domain.DoubleValue(*w.Value)); err != nil {
		return err
	}
	r.clear(set, target)
	return nil
}

func (r WeightResolver) target(w *domain.Weight) int {
	if len(r.candidates) == 0 {
		return -1
	}
	if w.Estimated {
		want := domain.MethodEstimatedByObserver
		if w.MethodID != nil {
			want = *w.MethodID
		}
		for i, c := range r.candidates {
			if m, ok := c.Method(); ok && m == want {
				return i
			}
		}
	}
	return 0
}

func (r WeightResolver) clear(set *domain.MeasurementSet, keep int) {
	for i, c := range r.candidates {
		if i != keep {
			set.Delete(c.ID)
		}
	}
}

// SumChildren derives a calculated weight from the children of n. It returns
// nil unless every non-sampling child carries a weight value.
func (r WeightResolver) SumChildren(n *domain.Node) *domain.Weight {
	var (
		total float64
		count int
	)
	for _, c := range n.Children {
		if c.IsSampling {
			continue
		}
		w := c.Weight
		if !w.HasValue() {
			w = r.Extract(c.Measurements)
		}
		if !w.HasValue() {
			return nil
		}
		total += *w.Value
		count++
	}
	if count == 0 {
		return nil
	}
	method := domain.MethodCalculated
	return &domain.Weight{MethodID: &method, Value: &total, Calculated: true}
}

// ToEditPhase moves the stored weight slot into the node Weight field so that
// exactly one representation is live while editing.
func (r WeightResolver) ToEditPhase(n *domain.Node) {
	if w := r.Extract(n.Measurements); w != nil {
		n.Weight = w
	}
	r.clear(&n.Measurements, -1)
}

// ToStoragePhase writes the node Weight back into a measurement slot and
// clears the field. Calculated weights are derived data and are not stored.
func (r WeightResolver) ToStoragePhase(n *domain.Node) error {
	w := n.Weight
	switch {
	case w == nil:
		w = r.Extract(n.Measurements)
	case w.Calculated:
		w = nil
	}
	if err := r.Inject(&n.Measurements, w); err != nil {
		return err
	}
	n.Weight = nil
	return nil
}
