package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// Enabled is the set of metric gates switched on in configuration.
type Enabled map[string]bool

// Has reports whether gate is enabled.
func (e Enabled) Has(gate string) bool { return e[gate] }

// EnableAll returns a gate set with every metric of kind enabled.
func EnableAll(kind models.EntityKind) Enabled {
	e := make(Enabled)
	for _, g := range Gates(kind) {
		e[g] = true
	}
	return e
}

// NormalizeCluster converts raw cluster counters.
func NormalizeCluster(raw models.RawStats, enabled Enabled) StatSet {
	return normalize(clusterDefinitions, raw, enabled)
}

// NormalizeHost converts raw host counters.
func NormalizeHost(raw models.RawStats, enabled Enabled) StatSet {
	return normalize(hostDefinitions, raw, enabled)
}

// NormalizeVM converts raw VM counters.
func NormalizeVM(raw models.RawStats, enabled Enabled) StatSet {
	return normalize(vmDefinitions, raw, enabled)
}

// Normalize dispatches to the normalizer for kind.
func Normalize(kind models.EntityKind, raw models.RawStats, enabled Enabled) StatSet {
	return normalize(Definitions(kind), raw, enabled)
}

func normalize(defs []Definition, raw models.RawStats, enabled Enabled) StatSet {
	out := make(StatSet, len(defs))
	if len(raw) == 0 {
		return out
	}
	for _, d := range defs {
		if !enabled.Has(d.Gate) {
			continue
		}
		rv, ok := raw[d.RawKey]
		if !ok || rv == nil {
			continue
		}
		if v, ok := convert(d, rv); ok {
			out[d.Key] = v
		}
	}
	return out
}

func convert(d Definition, rv any) (Value, bool) {
	if d.Conversion == Text {
		if s, ok := rv.(string); ok {
			return String(s), true
		}
		return String(fmt.Sprint(rv)), true
	}

	n, ok := toFloat(rv)
	if !ok {
		return Value{}, false
	}
	switch d.Conversion {
	case Count:
		return Int(int64(n / d.Scale)), true
	default:
		return Float(round2(n / d.Scale)), true
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// toFloat accepts the numeric shapes a JSON decoder or SDK may produce,
// including numbers serialized as strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
