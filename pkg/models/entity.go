package models

import "fmt"

// EntityKind identifies one of the entity types exposed by the control plane.
// The numeric value doubles as the SNMP subtree identifier.
type EntityKind int

const (
	KindCluster EntityKind = 1
	KindHost    EntityKind = 2
	KindVM      EntityKind = 3
)

// Kinds lists all entity kinds in subtree order.
var Kinds = []EntityKind{KindCluster, KindHost, KindVM}

func (k EntityKind) String() string {
	switch k {
	case KindCluster:
		return "cluster"
	case KindHost:
		return "host"
	case KindVM:
		return "vm"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseEntityKind parses the lower-case kind name.
func ParseEntityKind(s string) (EntityKind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// EntityRecord is one entity as returned by a listing call.
// Identity is the UUID only; names are informational.
type EntityRecord struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// RawStats is the provider-specific counter map for a single entity.
// Values are float64, int64 or string depending on the counter.
type RawStats map[string]any
