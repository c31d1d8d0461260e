// Package models holds the shared value types of the SNMP Simulator: OIDs,
// typed SNMP values, catalog entries with their simulation behaviors, fault
// configurations, and the statistics snapshots surfaced by the control API.
//
// Everything in this package is a plain value. Mutable runtime state (counter
// accumulators, fault stores, pool maps) lives with its owning component.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// OID
// ─────────────────────────────────────────────────────────────────────────────

// OID is an object identifier as an ordered sequence of non-negative
// sub-identifiers. The in-memory form is the integer sequence; the on-wire
// form (BER sub-identifier encoding) is produced by snmp/codec.
//
// Ordering over OIDs is numeric per component, NOT string order:
// 1.3.6.1.2.1 sorts before 1.3.6.1.2.1.1.1.0, and 1.3.6.1.2.11 sorts after
// every descendant of 1.3.6.1.2.1.
type OID []uint32

// ParseOID converts a dotted-decimal string ("1.3.6.1.2.1.1.1.0", with or
// without a leading dot) into an OID. An OID needs at least two components.
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, fmt.Errorf("empty OID")
	}
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("OID %q has fewer than 2 components", s)
	}
	oid := make(OID, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("OID %q: component %d: %w", s, i, err)
		}
		oid[i] = uint32(v)
	}
	return oid, nil
}

// MustParseOID is ParseOID for compile-time-constant OIDs in tests and
// built-in tables. It panics on malformed input.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the dotted-decimal form without a leading dot.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return b.String()
}

// Compare orders two OIDs lexicographically with numeric components.
// Returns -1, 0, or +1. A strict prefix sorts before its descendants.
func (o OID) Compare(other OID) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		switch {
		case o[i] < other[i]:
			return -1
		case o[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	}
	return 0
}

// Equal reports component-wise equality.
func (o OID) Equal(other OID) bool {
	return o.Compare(other) == 0
}

// HasPrefix reports whether prefix is a component-wise prefix of o.
// 1.3.6.1.2.11 is NOT a descendant of 1.3.6.1.2.1 — components match whole,
// never as substrings.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i, c := range prefix {
		if o[i] != c {
			return false
		}
	}
	return true
}

// Parent returns the OID with the final sub-identifier removed, or nil for
// OIDs at the minimum length.
func (o OID) Parent() OID {
	if len(o) <= 2 {
		return nil
	}
	return o[:len(o)-1]
}

// Clone returns an independent copy. Catalog keys and agent state must never
// alias request buffers.
func (o OID) Clone() OID {
	if o == nil {
		return nil
	}
	out := make(OID, len(o))
	copy(out, o)
	return out
}
