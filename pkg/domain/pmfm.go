// Package domain defines the sampling tree entities, the schema-described
// measurement values they carry, and the collaborator ports through which
// schemas, categories and persistence are supplied at runtime.
package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ParameterID identifies a measurable parameter (PMFM) in a schema.
type ParameterID int

// MethodID identifies the acquisition method attached to a parameter.
type MethodID int

// Well-known acquisition methods.
const (
	MethodMeasuredByObserver  MethodID = 1
	MethodObservedByObserver  MethodID = 2
	MethodEstimatedByObserver MethodID = 3
	// MethodCalculated marks values derived from other nodes.
	MethodCalculated MethodID = 4
)

// ValueType enumerates the scalar kinds a parameter can carry.
type ValueType string

// Supported parameter value types.
const (
	TypeInteger     ValueType = "integer"
	TypeDouble      ValueType = "double"
	TypeString      ValueType = "string"
	TypeBoolean     ValueType = "boolean"
	TypeDate        ValueType = "date"
	TypeQualitative ValueType = "qualitative_value"
)

// Valid reports whether t is one of the supported value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeInteger, TypeDouble, TypeString, TypeBoolean, TypeDate, TypeQualitative:
		return true
	default:
		return false
	}
}

// QualitativeValue is one admissible value of a qualitative parameter.
type QualitativeValue struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// WeightLabelSuffix is the label pattern marking a parameter as a weight carrier.
const WeightLabelSuffix = "_WEIGHT"

// ParameterDefinition describes one parameter of the runtime schema.
type ParameterDefinition struct {
	ID                ParameterID        `json:"id"`
	Label             string             `json:"label"`
	Type              ValueType          `json:"type"`
	QualitativeValues []QualitativeValue `json:"qualitative_values,omitempty"`
	MethodID          *MethodID          `json:"method_id,omitempty"`
	IsComputed        bool               `json:"is_computed,omitempty"`
	LabelTag          string             `json:"label_tag,omitempty"`
	MaximumDecimals   int                `json:"maximum_decimals,omitempty"`
}

// Method returns the acquisition method when one is declared.
func (d ParameterDefinition) Method() (MethodID, bool) {
	if d.MethodID == nil {
		return 0, false
	}
	return *d.MethodID, true
}

// IsWeight reports whether the parameter carries a weight, judged from its tag
// first and its label second.
func (d ParameterDefinition) IsWeight() bool {
	return matchesWeightPattern(d.LabelTag) || matchesWeightPattern(d.Label)
}

// Qualitative looks up an admissible qualitative value by id.
func (d ParameterDefinition) Qualitative(id int) (QualitativeValue, bool) {
	for _, qv := range d.QualitativeValues {
		if qv.ID == id {
			return qv, true
		}
	}
	return QualitativeValue{}, false
}

// Clone returns a copy sharing no mutable state with d.
func (d ParameterDefinition) Clone() ParameterDefinition {
	cp := d
	cp.QualitativeValues = slices.Clone(d.QualitativeValues)
	if d.MethodID != nil {
		m := *d.MethodID
		cp.MethodID = &m
	}
	return cp
}

func matchesWeightPattern(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s == "WEIGHT" || strings.HasSuffix(s, WeightLabelSuffix)
}

// Schema is an ordered, immutable set of parameter definitions.
type Schema struct {
	defs  []ParameterDefinition
	index map[ParameterID]int
}

// NewSchema builds a schema preserving definition order. Duplicate ids and
// unsupported value types are rejected.
func NewSchema(defs ...ParameterDefinition) (*Schema, error) {
	s := &Schema{
		defs:  make([]ParameterDefinition, 0, len(defs)),
		index: make(map[ParameterID]int, len(defs)),
	}
	for _, def := range defs {
		if _, dup := s.index[def.ID]; dup {
			return nil, DuplicateParameterError{ID: def.ID}
		}
		if !def.Type.Valid() {
			return nil, fmt.Errorf("parameter %d: unsupported value type %q", def.ID, def.Type)
		}
		s.index[def.ID] = len(s.defs)
		s.defs = append(s.defs, def.Clone())
	}
	return s, nil
}

// Lookup returns the definition for id.
func (s *Schema) Lookup(id ParameterID) (ParameterDefinition, bool) {
	if s == nil {
		return ParameterDefinition{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return ParameterDefinition{}, false
	}
	return s.defs[i].Clone(), true
}

// Has reports whether id belongs to the schema.
func (s *Schema) Has(id ParameterID) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Len returns the number of parameters.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.defs)
}

// Definitions returns copies of all definitions in schema order.
func (s *Schema) Definitions() []ParameterDefinition {
	if s == nil {
		return nil
	}
	out := make([]ParameterDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def.Clone())
	}
	return out
}

// IDs returns parameter ids in schema order.
func (s *Schema) IDs() []ParameterID {
	if s == nil {
		return nil
	}
	out := make([]ParameterID, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def.ID)
	}
	return out
}

// WeightCandidates returns the weight-bearing parameters in preference order.
func (s *Schema) WeightCandidates() []ParameterDefinition {
	if s == nil {
		return nil
	}
	var out []ParameterDefinition
	for _, def := range s.defs {
		if def.IsWeight() {
			out = append(out, def.Clone())
		}
	}
	return out
}

// position returns the schema index of id, or -1.
func (s *Schema) position(id ParameterID) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}
