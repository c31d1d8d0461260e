// Package catalog loads MIB walk files into immutable, sorted per-device-type
// catalogs and answers the three lookup primitives the agents need:
// exact GET, lexicographic GETNEXT (including descent from internal tree
// nodes), and bounded GETBULK walks.
//
// One catalog is built per device *type* and shared read-only by every agent
// of that type.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/vpbank/snmp_simulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Walk file parsing
// ─────────────────────────────────────────────────────────────────────────────

// WalkEntry is one parsed `OID = TYPE: value` line.
type WalkEntry struct {
	OID   models.OID
	Value models.TypedValue
}

// ParseWalkFile reads a walk file from disk. See ParseWalk for the grammar.
func ParseWalkFile(path string, logger *slog.Logger) ([]WalkEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open walk file %q", path)
	}
	defer f.Close()
	entries, err := ParseWalk(f, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "parse walk file %q", path)
	}
	return entries, nil
}

// ParseWalk parses newline-separated `OID = TYPE: value` lines.
//
// Blank lines and #-comments are ignored. A line whose TYPE token is unknown
// downgrades to STRING with a warning. Lines that fail to parse entirely are
// logged and skipped — a single bad line never rejects the file.
func ParseWalk(r io.Reader, logger *slog.Logger) ([]WalkEntry, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var entries []WalkEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseWalkLine(line)
		if err != nil {
			logger.Warn("walk: skip unparseable line", "line", lineNo, "error", err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, errors.Wrap(err, "read walk input")
	}
	return entries, nil
}

// parseWalkLine parses one `OID = TYPE: value` line.
func parseWalkLine(line string) (WalkEntry, error) {
	var zero WalkEntry

	eq := strings.Index(line, " = ")
	if eq < 0 {
		return zero, fmt.Errorf("no ` = ` separator")
	}
	oid, err := models.ParseOID(line[:eq])
	if err != nil {
		return zero, err
	}
	rest := strings.TrimSpace(line[eq+3:])

	// `OID = ""` — net-snmp's way of printing an empty string, no type token.
	if rest == `""` || rest == "" {
		return WalkEntry{OID: oid, Value: models.StringValue("")}, nil
	}

	typeTok, valueStr := splitTypeValue(rest)
	value, err := parseTypedValue(typeTok, valueStr)
	if err != nil {
		return zero, err
	}
	return WalkEntry{OID: oid, Value: value}, nil
}

// splitTypeValue splits `TYPE: value`, tolerating the two-word token
// "OCTET STRING". A missing colon means the whole remainder is an untyped
// string value.
func splitTypeValue(rest string) (string, string) {
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "STRING", rest
	}
	return strings.TrimSpace(rest[:colon]), strings.TrimSpace(rest[colon+1:])
}

// parseTypedValue converts a TYPE token (case-insensitive) plus value text
// into a TypedValue. Unknown types downgrade to STRING.
func parseTypedValue(typeTok, valueStr string) (models.TypedValue, error) {
	var zero models.TypedValue
	switch strings.ToUpper(typeTok) {
	case "INTEGER":
		n, err := parseWalkInt(valueStr)
		if err != nil {
			return zero, err
		}
		return models.IntegerValue(n), nil

	case "STRING", "OCTET STRING", "HEX-STRING":
		return models.StringValue(unquote(valueStr)), nil

	case "OID", "OBJECT IDENTIFIER":
		o, err := models.ParseOID(valueStr)
		if err != nil {
			return zero, err
		}
		return models.OIDValue(o), nil

	case "COUNTER32", "COUNTER":
		n, err := parseWalkUint(valueStr, 32)
		if err != nil {
			return zero, err
		}
		return models.Counter32Value(uint32(n)), nil

	case "COUNTER64":
		n, err := parseWalkUint(valueStr, 64)
		if err != nil {
			return zero, err
		}
		return models.Counter64Value(n), nil

	case "GAUGE32", "GAUGE", "UNSIGNED32":
		n, err := parseWalkUint(valueStr, 32)
		if err != nil {
			return zero, err
		}
		return models.Gauge32Value(uint32(n)), nil

	case "TIMETICKS":
		n, err := parseWalkUint(valueStr, 32)
		if err != nil {
			return zero, err
		}
		return models.TimeTicksValue(uint32(n)), nil

	case "IPADDRESS", "NETWORK ADDRESS":
		ip := net.ParseIP(valueStr)
		if ip == nil || ip.To4() == nil {
			return zero, fmt.Errorf("bad IPv4 address %q", valueStr)
		}
		return models.IPAddressValue(ip), nil

	case "OPAQUE":
		return models.OpaqueValue([]byte(unquote(valueStr))), nil

	case "NULL":
		return models.NullValue(), nil

	default:
		// Unknown type: downgrade to STRING rather than reject the line.
		return models.StringValue(unquote(valueStr)), nil
	}
}

// parseWalkInt handles plain integers plus net-snmp's enum rendering
// ("up(1)" → 1).
func parseWalkInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if open := strings.IndexByte(s, '('); open >= 0 {
		if close := strings.IndexByte(s[open:], ')'); close > 0 {
			s = s[open+1 : open+close]
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseWalkUint handles plain unsigned integers plus net-snmp's TimeTicks
// rendering ("(123456) 0:20:34.56" → 123456).
func parseWalkUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		if close := strings.IndexByte(s, ')'); close > 0 {
			s = s[1:close]
		}
	}
	return strconv.ParseUint(s, 10, bits)
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
