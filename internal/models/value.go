package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindNull represents a missing or null field.
	KindNull Kind = iota
	// KindString represents a string field.
	KindString
	// KindNumber represents a numeric field (always float64).
	KindNumber
	// KindBool represents a boolean field.
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a single metadata field. It is a small tagged union so price parsing and
// sanitisation stay total: there is no untyped blob to reflect over.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// FromAny converts a decoded JSON/YAML scalar into a Value. Nested objects and arrays
// are kept as their compact JSON text.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case gojson.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	default:
		b, err := gojson.Marshal(x)
		if err != nil {
			return String(fmt.Sprint(x))
		}
		return String(string(b))
	}
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// AsNumber returns the numeric value if Kind is KindNumber.
func (v Value) AsNumber() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// Any returns the plain Go value (nil, string, float64 or bool).
func (v Value) Any() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// Text renders v for display. Null renders as the empty string.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Sanitized returns v with a non-finite number replaced by 0.
func (v Value) Sanitized() Value {
	if v.Kind == KindNumber && (math.IsNaN(v.Num) || math.IsInf(v.Num, 0)) {
		return Number(0)
	}
	return v
}

// MarshalJSON encodes v as a plain JSON scalar. Non-finite numbers encode as 0.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return gojson.Marshal(v.Str)
	case KindNumber:
		return strconv.AppendFloat(nil, v.Sanitized().Num, 'f', -1, 64), nil
	case KindBool:
		return strconv.AppendBool(nil, v.Bool), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var buf bytes.Buffer
		if err := gojson.Compact(&buf, trimmed); err != nil {
			return err
		}
		*v = String(buf.String())
		return nil
	}
	dec := gojson.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Record is an item's metadata: field name to Value.
type Record map[string]Value

// RecordFromMap converts a loosely-typed map into a Record.
func RecordFromMap(m map[string]any) Record {
	r := make(Record, len(m))
	for k, v := range m {
		r[k] = FromAny(v)
	}
	return r
}

// Get returns the field value, or Null when absent.
func (r Record) Get(key string) Value {
	if v, ok := r[key]; ok {
		return v
	}
	return Null()
}

// Clone returns a shallow copy of r (Values are immutable). A nil Record clones to an empty one.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Sanitized returns a copy of r with every non-finite number replaced by 0.
func (r Record) Sanitized() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v.Sanitized()
	}
	return out
}

// ToMap converts r into plain Go values.
func (r Record) ToMap() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Any()
	}
	return out
}
