package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the day-precision layout accepted for date parameters in
// addition to RFC 3339 timestamps.
const DateLayout = "2006-01-02"

// Value is a closed scalar typed by one of the ValueType kinds. The zero
// Value is empty.
type Value struct {
	kind ValueType
	i    int64
	f    float64
	s    string
	b    bool
	t    time.Time
}

// IntegerValue wraps an integer measurement.
func IntegerValue(v int64) Value { return Value{kind: TypeInteger, i: v} }

// DoubleValue wraps a floating point measurement.
func DoubleValue(v float64) Value { return Value{kind: TypeDouble, f: v} }

// StringValue wraps a free-text measurement.
func StringValue(v string) Value { return Value{kind: TypeString, s: v} }

// BooleanValue wraps a boolean measurement.
func BooleanValue(v bool) Value { return Value{kind: TypeBoolean, b: v} }

// DateValue wraps a date measurement, normalised to UTC.
func DateValue(v time.Time) Value { return Value{kind: TypeDate, t: v.UTC()} }

// QualitativeRef wraps a reference to a qualitative value id.
func QualitativeRef(id int) Value { return Value{kind: TypeQualitative, i: int64(id)} }

// Kind returns the value type, empty for the zero Value.
func (v Value) Kind() ValueType { return v.kind }

// IsEmpty reports whether v carries no data.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case "":
		return true
	case TypeString:
		return strings.TrimSpace(v.s) == ""
	case TypeDouble:
		return math.IsNaN(v.f)
	default:
		return false
	}
}

// Int returns the integer payload.
func (v Value) Int() (int64, bool) {
	if v.kind != TypeInteger {
		return 0, false
	}
	return v.i, true
}

// Float returns the numeric payload of integer or double values.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case TypeDouble:
		return v.f, true
	case TypeInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Text returns the string payload.
func (v Value) Text() (string, bool) {
	if v.kind != TypeString {
		return "", false
	}
	return v.s, true
}

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) {
	if v.kind != TypeBoolean {
		return false, false
	}
	return v.b, true
}

// Time returns the date payload.
func (v Value) Time() (time.Time, bool) {
	if v.kind != TypeDate {
		return time.Time{}, false
	}
	return v.t, true
}

// QualitativeID returns the referenced qualitative value id.
func (v Value) QualitativeID() (int, bool) {
	if v.kind != TypeQualitative {
		return 0, false
	}
	return int(v.i), true
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeInteger, TypeQualitative:
		return v.i == o.i
	case TypeDouble:
		return v.f == o.f
	case TypeString:
		return v.s == o.s
	case TypeBoolean:
		return v.b == o.b
	case TypeDate:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// String renders the canonical storage text of v.
func (v Value) String() string {
	switch v.kind {
	case TypeInteger, TypeQualitative:
		return strconv.FormatInt(v.i, 10)
	case TypeDouble:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case TypeString:
		return v.s
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeDate:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

type valueWire struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value with its kind so it decodes without a schema.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == "" {
		return []byte("null"), nil
	}
	var payload any
	switch v.kind {
	case TypeInteger, TypeQualitative:
		payload = v.i
	case TypeDouble:
		payload = v.f
	case TypeString:
		payload = v.s
	case TypeBoolean:
		payload = v.b
	case TypeDate:
		payload = v.t.Format(time.RFC3339)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueWire{Type: v.kind, Value: raw})
}

// UnmarshalJSON decodes the typed wire form written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var wire valueWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var err error
	switch wire.Type {
	case TypeInteger, TypeQualitative:
		var n int64
		err = json.Unmarshal(wire.Value, &n)
		*v = Value{kind: wire.Type, i: n}
	case TypeDouble:
		var f float64
		err = json.Unmarshal(wire.Value, &f)
		*v = DoubleValue(f)
	case TypeString:
		var s string
		err = json.Unmarshal(wire.Value, &s)
		*v = StringValue(s)
	case TypeBoolean:
		var b bool
		err = json.Unmarshal(wire.Value, &b)
		*v = BooleanValue(b)
	case TypeDate:
		var s string
		if err = json.Unmarshal(wire.Value, &s); err == nil {
			var t time.Time
			t, err = time.Parse(time.RFC3339, s)
			*v = DateValue(t)
		}
	default:
		return fmt.Errorf("unsupported value type %q", wire.Type)
	}
	return err
}

var errTypeMismatch = errors.New("value type does not match parameter type")

// ParseValue coerces raw edit text to the type declared by def. Empty text
// yields the empty Value.
func ParseValue(def ParameterDefinition, raw string) (Value, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Value{}, nil
	}
	fail := func(err error) (Value, error) {
		return Value{}, InvalidValueError{ParameterID: def.ID, Raw: raw, Err: err}
	}
	switch def.Type {
	case TypeInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return fail(err)
		}
		return IntegerValue(n), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fail(err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fail(errors.New("not a finite number"))
		}
		if def.MaximumDecimals > 0 && decimals(text) > def.MaximumDecimals {
			return fail(fmt.Errorf("more than %d decimals", def.MaximumDecimals))
		}
		return DoubleValue(f), nil
	case TypeString:
		return StringValue(raw), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return fail(err)
		}
		return BooleanValue(b), nil
	case TypeDate:
		if t, err := time.Parse(time.RFC3339, text); err == nil {
			return DateValue(t), nil
		}
		t, err := time.Parse(DateLayout, text)
		if err != nil {
			return fail(err)
		}
		return DateValue(t), nil
	case TypeQualitative:
		if id, err := strconv.Atoi(text); err == nil {
			if len(def.QualitativeValues) > 0 {
				if _, ok := def.Qualitative(id); !ok {
					return fail(fmt.Errorf("qualitative value %d not admissible", id))
				}
			}
			return QualitativeRef(id), nil
		}
		for _, qv := range def.QualitativeValues {
			if strings.EqualFold(qv.Label, text) {
				return QualitativeRef(qv.ID), nil
			}
		}
		return fail(errors.New("unknown qualitative value"))
	default:
		return fail(fmt.Errorf("unsupported type %q", def.Type))
	}
}

// coerce checks that v fits def, widening integers to doubles.
func coerce(def ParameterDefinition, v Value) (Value, error) {
	if v.kind == def.Type {
		if v.kind == TypeQualitative && len(def.QualitativeValues) > 0 {
			if _, ok := def.Qualitative(int(v.i)); !ok {
				return Value{}, InvalidValueError{ParameterID: def.ID, Raw: v.String(), Err: errors.New("qualitative value not admissible")}
			}
		}
		return v, nil
	}
	if v.kind == TypeInteger && def.Type == TypeDouble {
		return DoubleValue(float64(v.i)), nil
	}
	return Value{}, InvalidValueError{ParameterID: def.ID, Raw: v.String(), Err: errTypeMismatch}
}

func decimals(text string) int {
	i := strings.IndexByte(text, '.')
	if i < 0 {
		return 0
	}
	frac := text[i+1:]
	if j := strings.IndexAny(frac, "eE"); j >= 0 {
		frac = frac[:j]
	}
	return len(frac)
}
