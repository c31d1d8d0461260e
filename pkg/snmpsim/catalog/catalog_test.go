package catalog_test

import (
	"strings"
	"testing"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/catalog"
)

// ─────────────────────────────────────────────────────────────────────────────
// Shared fixtures
// ─────────────────────────────────────────────────────────────────────────────

const testWalk = `
# system group
1.3.6.1.2.1.1.1.0 = STRING: "Cable Modem Simulator"
1.3.6.1.2.1.1.2.0 = OID: 1.3.6.1.4.1.4491.2.4.1
1.3.6.1.2.1.1.3.0 = TimeTicks: (123456) 0:20:34.56
1.3.6.1.2.1.1.4.0 = ""
1.3.6.1.2.1.1.5.0 = STRING: cm-000000
1.3.6.1.2.1.2.1.0 = INTEGER: 2
1.3.6.1.2.1.2.2.1.2.1 = STRING: "cable-upstream0"
1.3.6.1.2.1.2.2.1.8.1 = INTEGER: up(1)
1.3.6.1.2.1.2.2.1.10.1 = Counter32: 1000000
1.3.6.1.2.1.2.2.1.16.1 = Counter32: 2000000
1.3.6.1.2.1.4.20.1.1.192.0.2.1 = IpAddress: 192.0.2.1
1.3.6.1.2.1.31.1.1.1.6.1 = Counter64: 987654321098
`

func buildTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	entries, err := catalog.ParseWalk(strings.NewReader(testWalk), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	return catalog.Build("cable_modem", entries, nil, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// Walk parsing
// ─────────────────────────────────────────────────────────────────────────────

func TestParseWalk_Counts(t *testing.T) {
	entries, err := catalog.ParseWalk(strings.NewReader(testWalk), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	if len(entries) != 12 {
		t.Errorf("entry count = %d, want 12", len(entries))
	}
}

func TestParseWalk_Types(t *testing.T) {
	entries, err := catalog.ParseWalk(strings.NewReader(testWalk), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	byOID := map[string]models.TypedValue{}
	for _, e := range entries {
		byOID[e.OID.String()] = e.Value
	}

	tests := []struct {
		oid  string
		kind models.Kind
	}{
		{"1.3.6.1.2.1.1.1.0", models.KindOctetString},
		{"1.3.6.1.2.1.1.2.0", models.KindObjectIdentifier},
		{"1.3.6.1.2.1.1.3.0", models.KindTimeTicks},
		{"1.3.6.1.2.1.1.4.0", models.KindOctetString},
		{"1.3.6.1.2.1.2.2.1.8.1", models.KindInteger},
		{"1.3.6.1.2.1.2.2.1.10.1", models.KindCounter32},
		{"1.3.6.1.2.1.4.20.1.1.192.0.2.1", models.KindIPAddress},
		{"1.3.6.1.2.1.31.1.1.1.6.1", models.KindCounter64},
	}
	for _, tc := range tests {
		v, ok := byOID[tc.oid]
		if !ok {
			t.Errorf("missing entry %s", tc.oid)
			continue
		}
		if v.Kind != tc.kind {
			t.Errorf("%s: kind = %s, want %s", tc.oid, v.Kind, tc.kind)
		}
	}

	// net-snmp renderings.
	if v := byOID["1.3.6.1.2.1.1.3.0"]; v.Uint != 123456 {
		t.Errorf("TimeTicks (123456) parsed as %d", v.Uint)
	}
	if v := byOID["1.3.6.1.2.1.2.2.1.8.1"]; v.Int != 1 {
		t.Errorf("INTEGER up(1) parsed as %d", v.Int)
	}
	if v := byOID["1.3.6.1.2.1.1.1.0"]; string(v.Bytes) != "Cable Modem Simulator" {
		t.Errorf("quoted string parsed as %q", v.Bytes)
	}
}

func TestParseWalk_UnknownTypeDowngradesToString(t *testing.T) {
	entries, err := catalog.ParseWalk(strings.NewReader("1.3.6.1.2.1.1.1.0 = BITS: 80 40\n"), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if entries[0].Value.Kind != models.KindOctetString {
		t.Errorf("unknown type downgraded to %s, want STRING", entries[0].Value.Kind)
	}
}

func TestParseWalk_BadLinesSkippedNotFatal(t *testing.T) {
	input := `
garbage without separator
1.3.6.1.2.1.1.5.0 = STRING: ok
not-an-oid = INTEGER: 5
1.3.6.1.2.1.1.6.0 = INTEGER: not-a-number
`
	entries, err := catalog.ParseWalk(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ParseWalk must not fail wholesale: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entry count = %d, want 1 (only the valid line)", len(entries))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Get
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalogGet_ExactLeaf(t *testing.T) {
	c := buildTestCatalog(t)
	entry, status := c.Get(models.MustParseOID("1.3.6.1.2.1.1.1.0"))
	if status != catalog.Found || entry == nil {
		t.Fatalf("Get(sysDescr.0) = %v, want Found", status)
	}
	if entry.DeclaredType != models.KindOctetString {
		t.Errorf("declared type = %s, want STRING", entry.DeclaredType)
	}
}

func TestCatalogGet_NoSuchInstanceVsObject(t *testing.T) {
	c := buildTestCatalog(t)

	// Sibling instance exists (ifOperStatus.1 exists, .99 does not).
	if _, status := c.Get(models.MustParseOID("1.3.6.1.2.1.2.2.1.8.99")); status != catalog.NoSuchInstance {
		t.Errorf("missing instance with live sibling = %v, want NoSuchInstance", status)
	}

	// Nothing under this parent at all.
	if _, status := c.Get(models.MustParseOID("1.3.6.1.9.9.1.0")); status != catalog.NoSuchObject {
		t.Errorf("unknown subtree = %v, want NoSuchObject", status)
	}

	// Internal node is not a leaf.
	if _, status := c.Get(models.MustParseOID("1.3.6.1.2.1.1")); status == catalog.Found {
		t.Errorf("internal node must not report Found")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetNext — including descent from internal nodes
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalogGetNext_DescendsFromInternalNodes(t *testing.T) {
	c := buildTestCatalog(t)
	// Descent from every ancestor must land on the first leaf.
	for _, start := range []string{"1.3", "1.3.6", "1.3.6.1", "1.3.6.1.2.1", "1.3.6.1.2.1.1"} {
		row, ok := c.GetNext(models.MustParseOID(start))
		if !ok {
			t.Fatalf("GetNext(%s): end of view", start)
		}
		if row.OID.String() != "1.3.6.1.2.1.1.1.0" {
			t.Errorf("GetNext(%s) = %s, want 1.3.6.1.2.1.1.1.0", start, row.OID)
		}
	}
}

func TestCatalogGetNext_RejectsStringPrefixMatch(t *testing.T) {
	entries, err := catalog.ParseWalk(strings.NewReader(
		"1.3.6.1.2.1.1.0 = INTEGER: 1\n1.3.6.1.2.11.1.0 = INTEGER: 2\n"), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	c := catalog.Build("t", entries, nil, nil)

	// After the last descendant of 1.3.6.1.2.1 comes 1.3.6.1.2.11.1.0 —
	// numerically, not because "11" looks like a string extension of "1".
	row, ok := c.GetNext(models.MustParseOID("1.3.6.1.2.1.1.0"))
	if !ok {
		t.Fatal("unexpected end of view")
	}
	if row.OID.String() != "1.3.6.1.2.11.1.0" {
		t.Errorf("GetNext = %s, want 1.3.6.1.2.11.1.0", row.OID)
	}
}

func TestCatalogGetNext_WalkIsSortedAndTerminates(t *testing.T) {
	c := buildTestCatalog(t)
	cur := models.MustParseOID("1.3")
	var prev models.OID
	seen := 0
	for {
		row, ok := c.GetNext(cur)
		if !ok {
			break
		}
		if prev != nil && prev.Compare(row.OID) >= 0 {
			t.Fatalf("walk not strictly increasing: %s then %s", prev, row.OID)
		}
		prev = row.OID
		cur = row.OID
		seen++
		if seen > c.Len() {
			t.Fatal("walk returned more rows than the catalog holds")
		}
	}
	if seen != c.Len() {
		t.Errorf("walk visited %d of %d leaves", seen, c.Len())
	}
}

func TestCatalogGetNext_EndOfView(t *testing.T) {
	c := buildTestCatalog(t)
	if _, ok := c.GetNext(models.MustParseOID("1.3.6.1.2.1.31.1.1.1.6.1")); ok {
		t.Errorf("GetNext past the last leaf must signal end of view")
	}
	if _, ok := c.GetNext(models.MustParseOID("2.0")); ok {
		t.Errorf("GetNext past the whole tree must signal end of view")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetBulk
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalogGetBulk_BoundedAndContiguous(t *testing.T) {
	c := buildTestCatalog(t)
	rows := c.GetBulk(models.MustParseOID("1.3"), 5)
	if len(rows) != 5 {
		t.Fatalf("bulk returned %d rows, want 5", len(rows))
	}

	// Continuing from the last returned OID must not skip or repeat.
	rest := c.GetBulk(rows[4].OID, 100)
	if len(rows)+len(rest) != c.Len() {
		t.Errorf("bulk walk covered %d of %d leaves", len(rows)+len(rest), c.Len())
	}

	// Early stop at end of view.
	tail := c.GetBulk(models.MustParseOID("1.3.6.1.2.1.31"), 50)
	if len(tail) != 1 {
		t.Errorf("tail bulk = %d rows, want 1", len(tail))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Behavior assignment
// ─────────────────────────────────────────────────────────────────────────────

func TestBuild_BuiltinBehaviorAssignment(t *testing.T) {
	c := buildTestCatalog(t)
	tests := []struct {
		oid      string
		behavior models.Behavior
	}{
		{"1.3.6.1.2.1.1.1.0", models.BehaviorStatic},
		{"1.3.6.1.2.1.1.3.0", models.BehaviorUptimeTicks},
		{"1.3.6.1.2.1.2.2.1.8.1", models.BehaviorStatusEnum},
		{"1.3.6.1.2.1.2.2.1.10.1", models.BehaviorTrafficCounter},
		{"1.3.6.1.2.1.31.1.1.1.6.1", models.BehaviorTrafficCounter},
	}
	for _, tc := range tests {
		entry, status := c.Get(models.MustParseOID(tc.oid))
		if status != catalog.Found {
			t.Errorf("%s: not found", tc.oid)
			continue
		}
		if entry.Behavior != tc.behavior {
			t.Errorf("%s: behavior = %s, want %s", tc.oid, entry.Behavior, tc.behavior)
		}
	}
}

func TestBuild_ProfileRuleOverridesBuiltin(t *testing.T) {
	entries, err := catalog.ParseWalk(strings.NewReader("1.3.6.1.2.1.2.2.1.10.1 = Counter32: 5\n"), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	rules := []catalog.ProfileRule{{
		Prefix:   models.MustParseOID("1.3.6.1.2.1.2.2.1.10"),
		Behavior: models.BehaviorStatic,
	}}
	c := catalog.Build("t", entries, rules, nil)
	entry, _ := c.Get(models.MustParseOID("1.3.6.1.2.1.2.2.1.10.1"))
	if entry.Behavior != models.BehaviorStatic {
		t.Errorf("profile rule did not override builtin: %s", entry.Behavior)
	}
}

func TestBuild_SortedInvariant(t *testing.T) {
	// Shuffled input must still produce a strictly increasing walk.
	shuffled := `
1.3.6.1.2.1.2.2.1.10.1 = Counter32: 1
1.3.6.1.2.1.1.1.0 = STRING: a
1.3.6.1.2.11.1.0 = INTEGER: 9
1.3.6.1.2.1.1.3.0 = TimeTicks: 5
`
	entries, err := catalog.ParseWalk(strings.NewReader(shuffled), nil)
	if err != nil {
		t.Fatalf("ParseWalk: %v", err)
	}
	c := catalog.Build("t", entries, nil, nil)
	first, ok := c.First()
	if !ok || first.OID.String() != "1.3.6.1.2.1.1.1.0" {
		t.Errorf("First = %v, want sysDescr.0", first.OID)
	}
}
