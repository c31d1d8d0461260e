package codec

import "github.com/vpbank/snmp_simulator/models"

// Malform corrupts a well-formed encoded response for fault injection. The
// input is never modified; the returned slice is what goes on the wire.
//
// Variants:
//
//	truncated  — the first half of the packet only
//	wrong_tag  — the outer SEQUENCE tag replaced with OCTET STRING
//	bad_length — the outer length field inflated past the packet end
//
// An unknown variant falls back to truncated, matching the loader's
// downgrade-don't-reject posture for operator input.
func Malform(packet []byte, variant string) []byte {
	if len(packet) == 0 {
		return nil
	}
	out := append([]byte(nil), packet...)
	switch variant {
	case models.MalformWrongTag:
		out[0] = tagOctetString
		return out
	case models.MalformBadLength:
		if len(out) >= 2 && out[1] < 0x80 {
			out[1] = 0x7F
		} else if len(out) >= 3 {
			out[2] = 0xFF
		}
		return out
	case models.MalformTruncated:
		fallthrough
	default:
		return out[:len(out)/2]
	}
}
