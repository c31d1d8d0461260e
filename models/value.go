package models

import (
	"bytes"
	"fmt"
	"net"
)

// ─────────────────────────────────────────────────────────────────────────────
// Value kinds
// ─────────────────────────────────────────────────────────────────────────────

// Kind identifies the SNMP primitive carried by a TypedValue. The numeric
// values are the BER tag bytes used on the wire, so encode/decode never needs
// a translation table.
type Kind byte

const (
	KindInteger          Kind = 0x02
	KindOctetString      Kind = 0x04
	KindNull             Kind = 0x05
	KindObjectIdentifier Kind = 0x06
	KindIPAddress        Kind = 0x40
	KindCounter32        Kind = 0x41
	KindGauge32          Kind = 0x42
	KindTimeTicks        Kind = 0x43
	KindOpaque           Kind = 0x44
	KindCounter64        Kind = 0x46

	// Exception markers (v2c per-varbind errors). Context-class, zero length.
	KindNoSuchObject   Kind = 0x80
	KindNoSuchInstance Kind = 0x81
	KindEndOfMibView   Kind = 0x82
)

// String returns the conventional name for a kind, matching the tokens used
// in walk files and log output.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindOctetString:
		return "STRING"
	case KindNull:
		return "Null"
	case KindObjectIdentifier:
		return "OID"
	case KindIPAddress:
		return "IpAddress"
	case KindCounter32:
		return "Counter32"
	case KindGauge32:
		return "Gauge32"
	case KindTimeTicks:
		return "TimeTicks"
	case KindOpaque:
		return "Opaque"
	case KindCounter64:
		return "Counter64"
	case KindNoSuchObject:
		return "noSuchObject"
	case KindNoSuchInstance:
		return "noSuchInstance"
	case KindEndOfMibView:
		return "endOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", byte(k))
	}
}

// IsException reports whether k is one of the three v2c exception markers.
func (k Kind) IsException() bool {
	return k == KindNoSuchObject || k == KindNoSuchInstance || k == KindEndOfMibView
}

// ─────────────────────────────────────────────────────────────────────────────
// TypedValue
// ─────────────────────────────────────────────────────────────────────────────

// TypedValue is the tagged union of SNMP primitives. Exactly one payload
// field is meaningful, selected by Kind:
//
//	KindInteger                     → Int
//	KindCounter32/Gauge32/TimeTicks → Uint (low 32 bits)
//	KindCounter64                   → Uint
//	KindOctetString/Opaque          → Bytes
//	KindIPAddress                   → Bytes (exactly 4)
//	KindObjectIdentifier            → OID
//	KindNull and exception markers  → no payload
//
// A round trip through snmp/codec preserves Kind and payload bit-exactly.
type TypedValue struct {
	Kind  Kind
	Int   int64
	Uint  uint64
	Bytes []byte
	OID   OID
}

func IntegerValue(i int64) TypedValue       { return TypedValue{Kind: KindInteger, Int: i} }
func OctetStringValue(b []byte) TypedValue  { return TypedValue{Kind: KindOctetString, Bytes: b} }
func StringValue(s string) TypedValue       { return OctetStringValue([]byte(s)) }
func NullValue() TypedValue                 { return TypedValue{Kind: KindNull} }
func OIDValue(o OID) TypedValue             { return TypedValue{Kind: KindObjectIdentifier, OID: o} }
func Counter32Value(v uint32) TypedValue    { return TypedValue{Kind: KindCounter32, Uint: uint64(v)} }
func Gauge32Value(v uint32) TypedValue      { return TypedValue{Kind: KindGauge32, Uint: uint64(v)} }
func TimeTicksValue(v uint32) TypedValue    { return TypedValue{Kind: KindTimeTicks, Uint: uint64(v)} }
func Counter64Value(v uint64) TypedValue    { return TypedValue{Kind: KindCounter64, Uint: v} }
func OpaqueValue(b []byte) TypedValue       { return TypedValue{Kind: KindOpaque, Bytes: b} }
func IPAddressValue(ip net.IP) TypedValue   { return TypedValue{Kind: KindIPAddress, Bytes: ip.To4()} }
func NoSuchObjectValue() TypedValue         { return TypedValue{Kind: KindNoSuchObject} }
func NoSuchInstanceValue() TypedValue       { return TypedValue{Kind: KindNoSuchInstance} }
func EndOfMibViewValue() TypedValue         { return TypedValue{Kind: KindEndOfMibView} }

// Equal reports bit-exact equality of kind and payload. Used by the codec
// round-trip tests.
func (v TypedValue) Equal(other TypedValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInteger:
		return v.Int == other.Int
	case KindCounter32, KindGauge32, KindTimeTicks, KindCounter64:
		return v.Uint == other.Uint
	case KindOctetString, KindOpaque, KindIPAddress:
		return bytes.Equal(v.Bytes, other.Bytes)
	case KindObjectIdentifier:
		return v.OID.Equal(other.OID)
	default:
		// Null and exception markers carry no payload.
		return true
	}
}

// String renders the value for logs and the control API.
func (v TypedValue) String() string {
	switch v.Kind {
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindCounter32, KindGauge32, KindTimeTicks, KindCounter64:
		return fmt.Sprintf("%d", v.Uint)
	case KindOctetString:
		return string(v.Bytes)
	case KindOpaque:
		return fmt.Sprintf("%x", v.Bytes)
	case KindIPAddress:
		if len(v.Bytes) == 4 {
			return net.IP(v.Bytes).String()
		}
		return fmt.Sprintf("%x", v.Bytes)
	case KindObjectIdentifier:
		return v.OID.String()
	default:
		return v.Kind.String()
	}
}
