// Package oid maps the entities of the current snapshot onto a walkable
// SNMP object identifier tree.
package oid

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// OID is a sequence of numeric arcs.
type OID []uint32

// ErrMalformed is returned by Parse for text that is not a dotted numeric
// OID.
var ErrMalformed = errors.New("malformed OID")

// Parse converts dotted-decimal text such as ".1.3.6.1" into an OID. A
// single leading dot is accepted.
func Parse(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	parts := strings.Split(s, ".")
	out := make(OID, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: arc %d %q", ErrMalformed, i, p)
		}
		out[i] = uint32(n)
	}
	return out, nil
}

// MustParse is Parse that panics on error. Use it for constants.
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String renders the OID in dotted-decimal form without a leading dot.
func (o OID) String() string {
	var b strings.Builder
	for i, arc := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// Compare orders OIDs arc by arc numerically; a proper prefix sorts first.
func Compare(a, b OID) int {
	return slices.Compare(a, b)
}

// Equal reports whether a and b have identical arcs.
func (o OID) Equal(other OID) bool {
	return slices.Equal(o, other)
}

// HasPrefix reports whether prefix matches the leading arcs of o. Arcs are
// compared whole, so 1.3.6.10 does not have the prefix 1.3.6.1.
func (o OID) HasPrefix(prefix OID) bool {
	return len(prefix) <= len(o) && slices.Equal(o[:len(prefix)], prefix)
}

// Append returns a new OID made of o followed by arcs. o is not modified.
func (o OID) Append(arcs ...uint32) OID {
	out := make(OID, 0, len(o)+len(arcs))
	out = append(out, o...)
	return append(out, arcs...)
}
