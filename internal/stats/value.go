package stats

import (
	"encoding/json"
	"strconv"
)

// ValueKind tags the dynamic type held by a Value.
type ValueKind uint8

const (
	KindFloat ValueKind = iota + 1
	KindInt
	KindString
	KindBool
)

// Value is a single normalized metric value.
type Value struct {
	kind ValueKind
	f    float64
	i    int64
	s    string
}

// Float returns a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.kind == 0 }

// AsFloat returns the numeric value as a float64. Strings yield 0.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt, KindBool:
		return float64(v.i)
	default:
		return 0
	}
}

// AsInt returns the integer payload for KindInt and KindBool values.
func (v Value) AsInt() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// AsString returns the string payload for KindString values.
func (v Value) AsString() string { return v.s }

// AsBool returns the boolean payload for KindBool values.
func (v Value) AsBool() bool { return v.kind == KindBool && v.i != 0 }

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		return json.Marshal(v.f)
	case KindInt:
		return json.Marshal(v.i)
	case KindBool:
		return json.Marshal(v.i != 0)
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// StatSet maps metric keys to normalized values. Keys that were absent from
// the raw data or disabled are missing; they are never zero-filled.
type StatSet map[string]Value

// Get returns the value stored under key.
func (s StatSet) Get(key string) (Value, bool) {
	v, ok := s[key]
	return v, ok
}
