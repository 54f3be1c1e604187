package oid

import (
	"math"
	"testing"

	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		in       stats.Value
		wantType Type
		wantNum  uint64
		wantStr  string
	}{
		{"small int", stats.Int(1200), Integer32, 1200, ""},
		{"int32 max", stats.Int(math.MaxInt32), Integer32, math.MaxInt32, ""},
		{"above int32", stats.Int(math.MaxInt32 + 1), Counter64, math.MaxInt32 + 1, ""},
		{"negative int clips", stats.Int(-5), Integer32, 0, ""},
		{"float scaled", stats.Float(45.3), Integer32, 4530, ""},
		{"float rounds", stats.Float(12.346), Integer32, 1235, ""},
		{"large float", stats.Float(30_000_000), Counter64, 3_000_000_000, ""},
		{"negative float clips", stats.Float(-1.5), Integer32, 0, ""},
		{"string", stats.String("AHV"), OctetString, 0, "AHV"},
		{"true", stats.Bool(true), Integer32, 1, ""},
		{"false", stats.Bool(false), Integer32, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.in)
			if got.Type != tt.wantType || got.Num != tt.wantNum || got.Str != tt.wantStr {
				t.Errorf("Encode(%v) = %+v, want {%s %d %q}", tt.in, got, tt.wantType, tt.wantNum, tt.wantStr)
			}
		})
	}
}

func TestEncodeFloat_NaN(t *testing.T) {
	if got := EncodeFloat(math.NaN()); got.Type != Integer32 || got.Num != 0 {
		t.Errorf("EncodeFloat(NaN) = %+v, want Integer32 0", got)
	}
}
