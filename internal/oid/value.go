package oid

import (
	"math"

	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
)

// Type is the SNMP syntax of an encoded value.
type Type uint8

const (
	Integer32 Type = iota + 1
	Counter64
	OctetString
)

func (t Type) String() string {
	switch t {
	case Integer32:
		return "Integer32"
	case Counter64:
		return "Counter64"
	case OctetString:
		return "OctetString"
	default:
		return "Unknown"
	}
}

// Value is an encoded variable: Num carries Integer32 and Counter64 values,
// Str carries OctetString values.
type Value struct {
	Type Type
	Num  uint64
	Str  string
}

// Int returns Num as a signed Integer32 payload.
func (v Value) Int() int32 { return int32(v.Num) }

// Encode converts a metric value to its SNMP form. Integers that fit in
// Integer32 stay Integer32, larger ones become Counter64 and negatives clip
// to zero. Floats are scaled by 100 and rounded first. Booleans are 1 or 0.
func Encode(v stats.Value) Value {
	switch v.Kind() {
	case stats.KindInt:
		return encodeInt(v.AsInt())
	case stats.KindFloat:
		return EncodeFloat(v.AsFloat())
	case stats.KindBool:
		if v.AsBool() {
			return Value{Type: Integer32, Num: 1}
		}
		return Value{Type: Integer32}
	default:
		return Value{Type: OctetString, Str: v.AsString()}
	}
}

// EncodeFloat scales f by 100 and encodes the rounded result.
func EncodeFloat(f float64) Value {
	if math.IsNaN(f) || f <= 0 {
		return Value{Type: Integer32}
	}
	scaled := math.Round(f * 100)
	if scaled >= math.MaxUint64 {
		return Value{Type: Counter64, Num: math.MaxUint64}
	}
	return encodeUint(uint64(scaled))
}

func encodeInt(n int64) Value {
	if n < 0 {
		n = 0
	}
	return encodeUint(uint64(n))
}

func encodeUint(n uint64) Value {
	if n <= math.MaxInt32 {
		return Value{Type: Integer32, Num: n}
	}
	return Value{Type: Counter64, Num: n}
}
