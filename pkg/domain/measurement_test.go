package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const (
	paramSex    ParameterID = 80
	paramLength ParameterID = 81
	paramWeight ParameterID = 90
	paramNote   ParameterID = 91
	paramCount  ParameterID = 92
	paramDate   ParameterID = 93
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		ParameterDefinition{ID: paramSex, Label: "SEX", Type: TypeQualitative, QualitativeValues: []QualitativeValue{{ID: 1, Label: "M"}, {ID: 2, Label: "F"}}},
		ParameterDefinition{ID: paramLength, Label: "LENGTH_TOTAL", Type: TypeDouble, MaximumDecimals: 1},
		ParameterDefinition{ID: paramWeight, Label: "WEIGHT_OBSERVED", LabelTag: "BATCH_WEIGHT", Type: TypeDouble},
		ParameterDefinition{ID: paramNote, Label: "NOTE", Type: TypeString},
		ParameterDefinition{ID: paramCount, Label: "INDIVIDUAL_COUNT", Type: TypeInteger},
		ParameterDefinition{ID: paramDate, Label: "LANDING_DATE", Type: TypeDate},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestSchemaRejectsDuplicatesAndBadTypes(t *testing.T) {
	_, err := NewSchema(ParameterDefinition{ID: 1, Type: TypeDouble}, ParameterDefinition{ID: 1, Type: TypeDouble})
	var dup DuplicateParameterError
	if !errors.As(err, &dup) || dup.ID != 1 {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := NewSchema(ParameterDefinition{ID: 2, Type: "blob"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestSchemaWeightCandidatesFollowSchemaOrder(t *testing.T) {
	s, err := NewSchema(
		ParameterDefinition{ID: 1, Label: "LENGTH", Type: TypeDouble},
		ParameterDefinition{ID: 2, Label: "TOTAL_WEIGHT", Type: TypeDouble},
		ParameterDefinition{ID: 3, Label: "X", LabelTag: "weight", Type: TypeDouble},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	got := s.WeightCandidates()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected candidates %+v", got)
	}
	var nilSchema *Schema
	if nilSchema.Has(1) || nilSchema.WeightCandidates() != nil {
		t.Fatalf("nil schema must be empty")
	}
}

func TestMeasurementSetRejectsUnknownParameter(t *testing.T) {
	m := NewMeasurementSet(testSchema(t))
	var unknown UnknownParameterError
	if err := m.Set(42, DoubleValue(1)); !errors.As(err, &unknown) || unknown.ID != 42 {
		t.Fatalf("expected unknown parameter, got %v", err)
	}
	var unbound MeasurementSet
	if err := unbound.Set(paramLength, DoubleValue(1)); !errors.Is(err, ErrUnboundSchema) {
		t.Fatalf("expected ErrUnboundSchema, got %v", err)
	}
}

func TestMeasurementSetSetGetDelete(t *testing.T) {
	m := NewMeasurementSet(testSchema(t))
	if err := m.Set(paramLength, IntegerValue(12)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := m.Get(paramLength)
	if f, _ := v.Float(); !ok || v.Kind() != TypeDouble || f != 12 {
		t.Fatalf("expected integer widened to double, got %+v", v)
	}
	if err := m.Set(paramSex, QualitativeRef(3)); err == nil {
		t.Fatalf("expected inadmissible qualitative value to fail")
	}
	if err := m.Set(paramNote, StringValue("  ")); err != nil || m.Len() != 1 {
		t.Fatalf("blank string must not be stored: len=%d err=%v", m.Len(), err)
	}
	m.Delete(paramLength)
	if !m.IsEmpty() {
		t.Fatalf("expected empty set")
	}
}

func TestMeasurementSetCloneIsIndependent(t *testing.T) {
	m := NewMeasurementSet(testSchema(t))
	_ = m.Set(paramCount, IntegerValue(3))
	cp := m.Clone()
	_ = cp.Set(paramCount, IntegerValue(4))
	if v, _ := m.Get(paramCount); !v.Equal(IntegerValue(3)) {
		t.Fatalf("clone mutated original: %v", v)
	}
	if m.Equal(cp) {
		t.Fatalf("sets with different values must differ")
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	schema := testSchema(t)
	m := NewMeasurementSet(schema)
	_ = m.Set(paramSex, QualitativeRef(2))
	_ = m.Set(paramLength, DoubleValue(23.5))
	_ = m.Set(paramDate, DateValue(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	form := m.NormalizeToEdit(schema)
	if len(form.Slots) != schema.Len() {
		t.Fatalf("expected one slot per parameter, got %d", len(form.Slots))
	}
	if s, _ := form.Slot(paramNote); s.Raw != "" {
		t.Fatalf("missing value must yield empty slot, got %q", s.Raw)
	}
	back, err := NormalizeToStorage(form, schema)
	if err != nil {
		t.Fatalf("normalize to storage: %v", err)
	}
	if !back.Equal(m) {
		t.Fatalf("round trip changed values: %v vs %v", back.IDs(), m.IDs())
	}

	if err := form.SetRaw(paramSex, "m"); err != nil {
		t.Fatalf("set raw: %v", err)
	}
	back, _ = NormalizeToStorage(form, schema)
	if v, _ := back.Get(paramSex); !v.Equal(QualitativeRef(1)) {
		t.Fatalf("qualitative label must resolve by name, got %v", v)
	}
	_ = form.SetRaw(paramLength, "23.55")
	var invalid InvalidValueError
	if _, err := NormalizeToStorage(form, schema); !errors.As(err, &invalid) || invalid.ParameterID != paramLength {
		t.Fatalf("expected too many decimals error, got %v", err)
	}
}

func TestMeasurementSetJSONBindsLater(t *testing.T) {
	raw := []byte(`{"81":{"type":"integer","value":30},"80":{"type":"qualitative_value","value":1}}`)
	var m MeasurementSet
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Bound() {
		t.Fatalf("decoded set must be unbound")
	}
	if err := m.Bind(testSchema(t)); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if v, _ := m.Get(paramLength); v.Kind() != TypeDouble {
		t.Fatalf("bind must coerce integer to double, got %v", v.Kind())
	}
	ids := m.IDs()
	if len(ids) != 2 || ids[0] != paramSex || ids[1] != paramLength {
		t.Fatalf("ids must follow schema order, got %v", ids)
	}

	var bad MeasurementSet
	_ = json.Unmarshal([]byte(`{"42":{"type":"double","value":1}}`), &bad)
	if err := bad.Bind(testSchema(t)); err == nil {
		t.Fatalf("expected bind to reject unknown key")
	}
}
