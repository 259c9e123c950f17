package core

import (
	"sync"

	"batchcore/pkg/domain"
)

// FormState is the validity surface of one editor sub-form.
type FormState interface {
	Dirty() bool
	Valid() bool
	Invalid() bool
	Pending() bool
	Enabled() bool
}

// FormStatus is a point-in-time aggregate of a CompositeValidity.
type FormStatus struct {
	Dirty   bool `json:"dirty"`
	Valid   bool `json:"valid"`
	Invalid bool `json:"invalid"`
	Pending bool `json:"pending"`
	Enabled bool `json:"enabled"`
}

// CompositeValidity aggregates a dynamic set of sub-forms. Dirty, invalid,
// pending and enabled hold when any child holds them; valid requires every
// child to be valid. An empty composite is valid, clean and disabled.
// A CompositeValidity is itself a FormState and may be nested.
type CompositeValidity struct {
	mu       sync.RWMutex
	children []FormState
}

// NewCompositeValidity returns a composite over the given children.
func NewCompositeValidity(children ...FormState) *CompositeValidity {
	c := &CompositeValidity{}
	for _, f := range children {
		c.Add(f)
	}
	return c
}

// Add registers a sub-form. Nil forms are ignored.
func (c *CompositeValidity) Add(f FormState) {
	if f == nil {
		return
	}
	c.mu.Lock()
	c.children = append(c.children, f)
	c.mu.Unlock()
}

// Remove unregisters f and reports whether it was present.
func (c *CompositeValidity) Remove(f FormState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, child := range c.children {
		if child == f {
			c.children = append(c.children[:i:i], c.children[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered sub-forms.
func (c *CompositeValidity) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.children)
}

// Snapshot evaluates every sub-form once.
func (c *CompositeValidity) Snapshot() FormStatus {
	c.mu.RLock()
	children := append([]FormState(nil), c.children...)
	c.mu.RUnlock()

	st := FormStatus{Valid: true}
	for _, f := range children {
		st.Dirty = st.Dirty || f.Dirty()
		st.Valid = st.Valid && f.Valid()
		st.Invalid = st.Invalid || f.Invalid()
		st.Pending = st.Pending || f.Pending()
		st.Enabled = st.Enabled || f.Enabled()
	}
	return st
}

func (c *CompositeValidity) Dirty() bool   { return c.Snapshot().Dirty }
func (c *CompositeValidity) Valid() bool   { return c.Snapshot().Valid }
func (c *CompositeValidity) Invalid() bool { return c.Snapshot().Invalid }
func (c *CompositeValidity) Pending() bool { return c.Snapshot().Pending }
func (c *CompositeValidity) Enabled() bool { return c.Snapshot().Enabled }

// CanSave reports whether the aggregate may be persisted.
func (c *CompositeValidity) CanSave() bool {
	st := c.Snapshot()
	return st.Valid && !st.Pending
}

// NodeForm exposes a node as a FormState. The form is valid when its
// measurements bind against the schema, its weight validates and its sampling
// ratio is a fraction.
type NodeForm struct {
	Node     *domain.Node
	Schema   *domain.Schema
	Modified bool
	Busy     bool
	Disabled bool
}

// Err returns the first validation failure of the form, if any.
func (f NodeForm) Err() error {
	if f.Node == nil {
		return nil
	}
	if f.Schema != nil {
		probe := f.Node.Measurements.Clone()
		if err := probe.Bind(f.Schema); err != nil {
			return err
		}
	}
	if err := f.Node.Weight.Validate(); err != nil {
		return err
	}
	if f.Node.SamplingRatio != nil {
		if err := domain.ValidateRatio(*f.Node.SamplingRatio); err != nil {
			return err
		}
	}
	return nil
}

func (f NodeForm) Dirty() bool   { return f.Modified }
func (f NodeForm) Valid() bool   { return !f.Pending() && f.Err() == nil }
func (f NodeForm) Invalid() bool { return !f.Pending() && f.Err() != nil }
func (f NodeForm) Pending() bool { return f.Busy }
func (f NodeForm) Enabled() bool { return !f.Disabled }
