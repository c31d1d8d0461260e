package codec

import (
	"fmt"

	"github.com/vpbank/snmp_simulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Message model
// ─────────────────────────────────────────────────────────────────────────────

// PDUType is the context-class tag byte of an SNMP PDU.
type PDUType byte

const (
	GetRequest     PDUType = 0xA0
	GetNextRequest PDUType = 0xA1
	GetResponse    PDUType = 0xA2
	SetRequest     PDUType = 0xA3
	GetBulkRequest PDUType = 0xA5
)

// String names the PDU type for logs.
func (t PDUType) String() string {
	switch t {
	case GetRequest:
		return "GetRequest"
	case GetNextRequest:
		return "GetNextRequest"
	case GetResponse:
		return "GetResponse"
	case SetRequest:
		return "SetRequest"
	case GetBulkRequest:
		return "GetBulkRequest"
	default:
		return "UnknownPDU"
	}
}

// SNMP protocol versions on the wire.
const (
	Version1  = 0
	Version2c = 1
)

// Error-status codes (v2c names, wire values).
const (
	ErrNoError    = 0
	ErrTooBig     = 1
	ErrNoSuchName = 2
	ErrBadValue   = 3
	ErrReadOnly   = 4
	ErrGenErr     = 5
)

// Varbind is one (OID, value) pair inside a PDU.
type Varbind struct {
	OID   models.OID
	Value models.TypedValue
}

// Message is a fully decoded SNMPv1/v2c message.
//
// For GetBulkRequest the wire slots that normally carry error-status and
// error-index hold NonRepeaters and MaxRepetitions instead; the ErrorStatus
// and ErrorIndex fields are zero for such messages, and vice versa.
type Message struct {
	Version   int
	Community []byte
	PDUType   PDUType
	RequestID int32

	ErrorStatus int
	ErrorIndex  int

	NonRepeaters   int
	MaxRepetitions int

	Varbinds []Varbind
}

// Equal reports deep equality. Used by round-trip tests.
func (m *Message) Equal(other *Message) bool {
	if m.Version != other.Version ||
		string(m.Community) != string(other.Community) ||
		m.PDUType != other.PDUType ||
		m.RequestID != other.RequestID ||
		m.ErrorStatus != other.ErrorStatus ||
		m.ErrorIndex != other.ErrorIndex ||
		m.NonRepeaters != other.NonRepeaters ||
		m.MaxRepetitions != other.MaxRepetitions ||
		len(m.Varbinds) != len(other.Varbinds) {
		return false
	}
	for i := range m.Varbinds {
		if !m.Varbinds[i].OID.Equal(other.Varbinds[i].OID) {
			return false
		}
		if !m.Varbinds[i].Value.Equal(other.Varbinds[i].Value) {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Decode
// ─────────────────────────────────────────────────────────────────────────────

// Decode parses a datagram into a Message. It returns *DecodeError on
// truncation, invalid tags or lengths, or a non-integer version field. PDU
// tags outside the request grammar decode as long as the body matches the
// standard layout, so the agent can answer genErr instead of going silent.
func Decode(packet []byte) (*Message, error) {
	outer := &reader{buf: packet}
	tag, body, err := outer.readTLV()
	if err != nil {
		return nil, err
	}
	if tag != tagSequence {
		return nil, decodeErrf(0, "message tag 0x%02X, want SEQUENCE", tag)
	}

	r := &reader{buf: body}
	msg := &Message{}

	// Version.
	tag, content, err := r.readTLV()
	if err != nil {
		return nil, err
	}
	if tag != tagInteger {
		return nil, decodeErrf(r.off, "version tag 0x%02X, want INTEGER", tag)
	}
	version, err := parseInt(content, r.off)
	if err != nil {
		return nil, err
	}
	if version != Version1 && version != Version2c {
		return nil, decodeErrf(r.off, "unsupported version %d", version)
	}
	msg.Version = int(version)

	// Community.
	tag, content, err = r.readTLV()
	if err != nil {
		return nil, err
	}
	if tag != tagOctetString {
		return nil, decodeErrf(r.off, "community tag 0x%02X, want OCTET STRING", tag)
	}
	msg.Community = append([]byte(nil), content...)

	// PDU.
	tag, pdu, err := r.readTLV()
	if err != nil {
		return nil, err
	}
	if tag&0xE0 != 0xA0 {
		return nil, decodeErrf(r.off, "PDU tag 0x%02X, want context class", tag)
	}
	msg.PDUType = PDUType(tag)
	if err := decodePDUBody(msg, pdu, r.off); err != nil {
		return nil, err
	}
	return msg, nil
}

// decodePDUBody parses request-id, the two middle integers, and the varbind
// list into msg.
func decodePDUBody(msg *Message, pdu []byte, base int) error {
	r := &reader{buf: pdu}

	tag, content, err := r.readTLV()
	if err != nil {
		return err
	}
	if tag != tagInteger {
		return decodeErrf(base+r.off, "request-id tag 0x%02X, want INTEGER", tag)
	}
	reqID, err := parseInt(content, base+r.off)
	if err != nil {
		return err
	}
	msg.RequestID = int32(reqID)

	slot1, err := readIntField(r, base, "error-status")
	if err != nil {
		return err
	}
	slot2, err := readIntField(r, base, "error-index")
	if err != nil {
		return err
	}
	if msg.PDUType == GetBulkRequest {
		msg.NonRepeaters = int(slot1)
		msg.MaxRepetitions = int(slot2)
	} else {
		msg.ErrorStatus = int(slot1)
		msg.ErrorIndex = int(slot2)
	}

	// Varbind list.
	tag, list, err := r.readTLV()
	if err != nil {
		return err
	}
	if tag != tagSequence {
		return decodeErrf(base+r.off, "varbind list tag 0x%02X, want SEQUENCE", tag)
	}
	lr := &reader{buf: list}
	for lr.remaining() > 0 {
		vb, err := decodeVarbind(lr, base+r.off)
		if err != nil {
			return err
		}
		msg.Varbinds = append(msg.Varbinds, vb)
	}
	return nil
}

func readIntField(r *reader, base int, field string) (int64, error) {
	tag, content, err := r.readTLV()
	if err != nil {
		return 0, err
	}
	if tag != tagInteger {
		return 0, decodeErrf(base+r.off, "%s tag 0x%02X, want INTEGER", field, tag)
	}
	return parseInt(content, base+r.off)
}

func decodeVarbind(r *reader, base int) (Varbind, error) {
	tag, body, err := r.readTLV()
	if err != nil {
		return Varbind{}, err
	}
	if tag != tagSequence {
		return Varbind{}, decodeErrf(base+r.off, "varbind tag 0x%02X, want SEQUENCE", tag)
	}
	vr := &reader{buf: body}

	tag, content, err := vr.readTLV()
	if err != nil {
		return Varbind{}, err
	}
	if tag != tagOID {
		return Varbind{}, decodeErrf(base+vr.off, "varbind name tag 0x%02X, want OID", tag)
	}
	oid, err := parseOID(content, base+vr.off)
	if err != nil {
		return Varbind{}, err
	}

	tag, content, err = vr.readTLV()
	if err != nil {
		return Varbind{}, err
	}
	value, err := decodeValue(tag, content, base+vr.off)
	if err != nil {
		return Varbind{}, err
	}
	return Varbind{OID: oid, Value: value}, nil
}

// decodeValue converts one TLV into a TypedValue, enforcing type fidelity.
func decodeValue(tag byte, content []byte, pos int) (models.TypedValue, error) {
	var zero models.TypedValue
	switch tag {
	case tagInteger:
		v, err := parseInt(content, pos)
		if err != nil {
			return zero, err
		}
		return models.IntegerValue(v), nil
	case tagOctetString:
		return models.OctetStringValue(append([]byte(nil), content...)), nil
	case tagOpaque:
		return models.OpaqueValue(append([]byte(nil), content...)), nil
	case tagNull:
		if len(content) != 0 {
			return zero, decodeErrf(pos, "NULL with %d content bytes", len(content))
		}
		return models.NullValue(), nil
	case tagOID:
		oid, err := parseOID(content, pos)
		if err != nil {
			return zero, err
		}
		return models.OIDValue(oid), nil
	case tagIPAddress:
		if len(content) != 4 {
			return zero, decodeErrf(pos, "IpAddress with %d bytes, want 4", len(content))
		}
		return models.TypedValue{Kind: models.KindIPAddress, Bytes: append([]byte(nil), content...)}, nil
	case tagCounter32, tagGauge32, tagTimeTicks:
		v, err := parseUint(content, pos)
		if err != nil {
			return zero, err
		}
		if v > 0xFFFFFFFF {
			return zero, decodeErrf(pos, "32-bit unsigned value %d overflows", v)
		}
		return models.TypedValue{Kind: models.Kind(tag), Uint: v}, nil
	case tagCounter64:
		v, err := parseUint(content, pos)
		if err != nil {
			return zero, err
		}
		return models.Counter64Value(v), nil
	case tagNoSuchObject, tagNoSuchInstance, tagEndOfMibView:
		if len(content) != 0 {
			return zero, decodeErrf(pos, "exception marker 0x%02X with %d content bytes", tag, len(content))
		}
		return models.TypedValue{Kind: models.Kind(tag)}, nil
	default:
		return zero, decodeErrf(pos, "invalid value tag 0x%02X", tag)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Encode
// ─────────────────────────────────────────────────────────────────────────────

// Encode serialises a Message. It fails only when the result would exceed
// the UDP payload limit; the caller is responsible for MTU-driven truncation
// or tooBig synthesis before getting here.
func Encode(msg *Message) ([]byte, error) {
	pduBody := make([]byte, 0, 64+32*len(msg.Varbinds))
	pduBody = appendInt(pduBody, tagInteger, int64(msg.RequestID))
	if msg.PDUType == GetBulkRequest {
		pduBody = appendInt(pduBody, tagInteger, int64(msg.NonRepeaters))
		pduBody = appendInt(pduBody, tagInteger, int64(msg.MaxRepetitions))
	} else {
		pduBody = appendInt(pduBody, tagInteger, int64(msg.ErrorStatus))
		pduBody = appendInt(pduBody, tagInteger, int64(msg.ErrorIndex))
	}

	list := make([]byte, 0, 32*len(msg.Varbinds))
	for i := range msg.Varbinds {
		vb := encodeVarbind(&msg.Varbinds[i])
		list = appendTLV(list, tagSequence, vb)
	}
	pduBody = appendTLV(pduBody, tagSequence, list)

	body := make([]byte, 0, len(pduBody)+len(msg.Community)+16)
	body = appendInt(body, tagInteger, int64(msg.Version))
	body = appendTLV(body, tagOctetString, msg.Community)
	body = appendTLV(body, byte(msg.PDUType), pduBody)

	out := appendTLV(make([]byte, 0, len(body)+8), tagSequence, body)
	if len(out) > MaxUDPPayload {
		return nil, fmt.Errorf("encoded message %d bytes exceeds UDP payload limit %d", len(out), MaxUDPPayload)
	}
	return out, nil
}

// EncodedSize returns the size Encode would produce, or MaxUDPPayload+1 when
// Encode fails.
func EncodedSize(msg *Message) int {
	// Encoding is cheap relative to a UDP round trip; reuse Encode.
	b, err := Encode(msg)
	if err != nil {
		return MaxUDPPayload + 1
	}
	return len(b)
}

func encodeVarbind(vb *Varbind) []byte {
	out := make([]byte, 0, 32)
	out = appendOID(out, vb.OID)
	return appendValue(out, vb.Value)
}

func appendValue(dst []byte, v models.TypedValue) []byte {
	switch v.Kind {
	case models.KindInteger:
		return appendInt(dst, tagInteger, v.Int)
	case models.KindOctetString:
		return appendTLV(dst, tagOctetString, v.Bytes)
	case models.KindOpaque:
		return appendTLV(dst, tagOpaque, v.Bytes)
	case models.KindNull:
		return append(dst, tagNull, 0x00)
	case models.KindObjectIdentifier:
		return appendOID(dst, v.OID)
	case models.KindIPAddress:
		return appendTLV(dst, tagIPAddress, v.Bytes)
	case models.KindCounter32, models.KindGauge32, models.KindTimeTicks, models.KindCounter64:
		return appendUint(dst, byte(v.Kind), v.Uint)
	case models.KindNoSuchObject, models.KindNoSuchInstance, models.KindEndOfMibView:
		return append(dst, byte(v.Kind), 0x00)
	default:
		// Unknown kinds never originate inside the simulator; encode NULL so
		// the response stays parseable.
		return append(dst, tagNull, 0x00)
	}
}
