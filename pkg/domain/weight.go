package domain

// Weight is the edit-time view of the single logical weight of a node.
// Estimated and Calculated describe provenance and exclude each other; a
// calculated weight is derived from children and never edited by hand.
type Weight struct {
	MethodID   *MethodID `json:"method_id,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Estimated  bool      `json:"estimated,omitempty"`
	Calculated bool      `json:"calculated,omitempty"`
}

// Validate checks the provenance flags.
func (w *Weight) Validate() error {
	if w == nil {
		return nil
	}
	if w.Estimated && w.Calculated {
		return ErrWeightProvenance
	}
	return nil
}

// HasValue reports whether a weight value is present.
func (w *Weight) HasValue() bool {
	return w != nil && w.Value != nil
}

// Clone returns a deep copy.
func (w *Weight) Clone() *Weight {
	if w == nil {
		return nil
	}
	cp := *w
	if w.MethodID != nil {
		m := *w.MethodID
		cp.MethodID = &m
	}
	if w.Value != nil {
		v := *w.Value
		cp.Value = &v
	}
	return &cp
}

// Equal compares value, method and flags.
func (w *Weight) Equal(o *Weight) bool {
	if w == nil || o == nil {
		return w.HasValue() == o.HasValue() && !w.HasValue()
	}
	return w.Estimated == o.Estimated &&
		w.Calculated == o.Calculated &&
		equalPtr(w.MethodID, o.MethodID) &&
		equalPtr(w.Value, o.Value)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
