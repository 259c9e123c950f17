package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// MeasurementSet maps parameter ids to typed values validated against a bound
// schema. The schema always precedes the data: keys outside it are rejected.
type MeasurementSet struct {
	schema *Schema
	values map[ParameterID]Value
}

// NewMeasurementSet returns an empty set bound to schema.
func NewMeasurementSet(schema *Schema) MeasurementSet {
	return MeasurementSet{schema: schema}
}

// Schema returns the bound schema, nil when unbound.
func (m MeasurementSet) Schema() *Schema { return m.schema }

// Bound reports whether a schema has been applied.
func (m MeasurementSet) Bound() bool { return m.schema != nil }

// Bind applies schema to the set, validating and coercing every held value.
// The set is left untouched when any key is rejected.
func (m *MeasurementSet) Bind(schema *Schema) error {
	if schema == nil {
		return ErrUnboundSchema
	}
	coerced := make(map[ParameterID]Value, len(m.values))
	for id, v := range m.values {
		def, ok := schema.Lookup(id)
		if !ok {
			return UnknownParameterError{ID: id}
		}
		cv, err := coerce(def, v)
		if err != nil {
			return err
		}
		coerced[id] = cv
	}
	m.schema = schema
	if len(coerced) == 0 {
		m.values = nil
	} else {
		m.values = coerced
	}
	return nil
}

// Get returns the value stored for id.
func (m MeasurementSet) Get(id ParameterID) (Value, bool) {
	v, ok := m.values[id]
	return v, ok
}

// Set stores v for id. An empty value deletes the slot.
func (m *MeasurementSet) Set(id ParameterID, v Value) error {
	if m.schema == nil {
		return ErrUnboundSchema
	}
	def, ok := m.schema.Lookup(id)
	if !ok {
		return UnknownParameterError{ID: id}
	}
	if v.IsEmpty() {
		m.Delete(id)
		return nil
	}
	cv, err := coerce(def, v)
	if err != nil {
		return err
	}
	if m.values == nil {
		m.values = make(map[ParameterID]Value)
	}
	m.values[id] = cv
	return nil
}

// Delete removes the slot for id.
func (m *MeasurementSet) Delete(id ParameterID) {
	delete(m.values, id)
	if len(m.values) == 0 {
		m.values = nil
	}
}

// Len returns the number of populated slots.
func (m MeasurementSet) Len() int { return len(m.values) }

// IsEmpty reports whether no slot carries a non-empty value.
func (m MeasurementSet) IsEmpty() bool {
	for _, v := range m.values {
		if !v.IsEmpty() {
			return false
		}
	}
	return true
}

// IDs returns populated ids in schema order, falling back to numeric order
// for an unbound set.
func (m MeasurementSet) IDs() []ParameterID {
	ids := make([]ParameterID, 0, len(m.values))
	for id := range m.values {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ParameterID) int {
		pa, pb := m.schema.position(a), m.schema.position(b)
		if pa != pb {
			return pa - pb
		}
		return int(a) - int(b)
	})
	return ids
}

// Clone returns an independent copy bound to the same schema.
func (m MeasurementSet) Clone() MeasurementSet {
	return MeasurementSet{schema: m.schema, values: maps.Clone(m.values)}
}

// Equal compares populated values, ignoring the bound schema.
func (m MeasurementSet) Equal(o MeasurementSet) bool {
	if len(m.values) != len(o.values) {
		return false
	}
	for id, v := range m.values {
		ov, ok := o.values[id]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an object keyed by decimal parameter id.
func (m MeasurementSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, len(m.values))
	for id, v := range m.values {
		out[strconv.Itoa(int(id))] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an unbound set; callers Bind it to a schema before use.
func (m *MeasurementSet) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.schema = nil
	m.values = nil
	for key, v := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("measurement key %q: %w", key, err)
		}
		if v.IsEmpty() {
			continue
		}
		if m.values == nil {
			m.values = make(map[ParameterID]Value, len(raw))
		}
		m.values[ParameterID(id)] = v
	}
	return nil
}

// EditSlot is one editable input of an EditForm.
type EditSlot struct {
	Definition ParameterDefinition
	Raw        string
}

// EditForm is the edit-time representation of a measurement set: one textual
// slot per schema parameter, in schema order.
type EditForm struct {
	Slots []EditSlot
}

// Slot returns the slot for id.
func (f EditForm) Slot(id ParameterID) (EditSlot, bool) {
	for _, s := range f.Slots {
		if s.Definition.ID == id {
			return s, true
		}
	}
	return EditSlot{}, false
}

// SetRaw replaces the raw text of the slot for id.
func (f *EditForm) SetRaw(id ParameterID, raw string) error {
	for i := range f.Slots {
		if f.Slots[i].Definition.ID == id {
			f.Slots[i].Raw = raw
			return nil
		}
	}
	return UnknownParameterError{ID: id}
}

// NormalizeToEdit produces one slot per parameter of schema, empty when the
// set holds no value for it. Values outside schema are not shown.
func (m MeasurementSet) NormalizeToEdit(schema *Schema) EditForm {
	defs := schema.Definitions()
	form := EditForm{Slots: make([]EditSlot, 0, len(defs))}
	for _, def := range defs {
		slot := EditSlot{Definition: def}
		if v, ok := m.values[def.ID]; ok && !v.IsEmpty() {
			slot.Raw = v.String()
		}
		form.Slots = append(form.Slots, slot)
	}
	return form
}

// NormalizeToStorage is the inverse of NormalizeToEdit: empty slots are
// dropped and raw text is coerced to the declared type.
func NormalizeToStorage(form EditForm, schema *Schema) (MeasurementSet, error) {
	out := NewMeasurementSet(schema)
	if schema == nil {
		return out, ErrUnboundSchema
	}
	for _, slot := range form.Slots {
		def, ok := schema.Lookup(slot.Definition.ID)
		if !ok {
			return MeasurementSet{}, UnknownParameterError{ID: slot.Definition.ID}
		}
		v, err := ParseValue(def, slot.Raw)
		if err != nil {
			return MeasurementSet{}, err
		}
		if v.IsEmpty() {
			continue
		}
		if err := out.Set(def.ID, v); err != nil {
			return MeasurementSet{}, err
		}
	}
	return out, nil
}
