package models_test

import (
	"testing"

	"github.com/vpbank/snmp_simulator/models"
)

func TestParseOID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1.3.6.1.2.1.1.1.0", "1.3.6.1.2.1.1.1.0", false},
		{".1.3.6.1.2.1", "1.3.6.1.2.1", false},
		{"  1.3 ", "1.3", false},
		{"1", "", true},
		{"", "", true},
		{"1.3.x.1", "", true},
		{"1.-3", "", true},
	}
	for _, tc := range tests {
		got, err := models.ParseOID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseOID(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOID(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseOID(%q) = %q, want %q", tc.in, got.String(), tc.want)
		}
	}
}

func TestOIDCompare_NumericNotString(t *testing.T) {
	// 1.3.6.1.2.11 must sort AFTER 1.3.6.1.2.1.1.1.0 — component 11 > 1.
	a := models.MustParseOID("1.3.6.1.2.1.1.1.0")
	b := models.MustParseOID("1.3.6.1.2.11")
	if a.Compare(b) != -1 {
		t.Errorf("Compare(%s, %s) = %d, want -1", a, b, a.Compare(b))
	}
	if b.Compare(a) != 1 {
		t.Errorf("Compare(%s, %s) = %d, want 1", b, a, b.Compare(a))
	}
}

func TestOIDCompare_PrefixSortsFirst(t *testing.T) {
	parent := models.MustParseOID("1.3.6.1.2.1")
	child := models.MustParseOID("1.3.6.1.2.1.1")
	if parent.Compare(child) != -1 {
		t.Errorf("parent should sort before child")
	}
	if !parent.Equal(models.MustParseOID("1.3.6.1.2.1")) {
		t.Errorf("Equal on identical OIDs returned false")
	}
}

func TestOIDHasPrefix(t *testing.T) {
	tests := []struct {
		oid, prefix string
		want        bool
	}{
		{"1.3.6.1.2.1.1.1.0", "1.3.6.1.2.1", true},
		{"1.3.6.1.2.1", "1.3.6.1.2.1", true},
		{"1.3.6.1.2.11", "1.3.6.1.2.1", false}, // string prefix, not component prefix
		{"1.3.6.1.2.1", "1.3.6.1.2.1.1", false},
	}
	for _, tc := range tests {
		oid := models.MustParseOID(tc.oid)
		prefix := models.MustParseOID(tc.prefix)
		if got := oid.HasPrefix(prefix); got != tc.want {
			t.Errorf("HasPrefix(%s, %s) = %v, want %v", tc.oid, tc.prefix, got, tc.want)
		}
	}
}

func TestOIDClone_Independent(t *testing.T) {
	orig := models.MustParseOID("1.3.6.1")
	cl := orig.Clone()
	cl[0] = 99
	if orig[0] != 1 {
		t.Errorf("Clone aliases the original slice")
	}
}

func TestTypedValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b models.TypedValue
		want bool
	}{
		{"same integer", models.IntegerValue(5), models.IntegerValue(5), true},
		{"diff integer", models.IntegerValue(5), models.IntegerValue(6), false},
		{"counter vs gauge same bits", models.Counter32Value(5), models.Gauge32Value(5), false},
		{"octets", models.StringValue("abc"), models.OctetStringValue([]byte("abc")), true},
		{"null", models.NullValue(), models.NullValue(), true},
		{"exceptions", models.NoSuchObjectValue(), models.NoSuchObjectValue(), true},
		{"oid", models.OIDValue(models.MustParseOID("1.3.6")), models.OIDValue(models.MustParseOID("1.3.6")), true},
		{"counter64 max", models.Counter64Value(1 << 63), models.Counter64Value(1 << 63), true},
	}
	for _, tc := range tests {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindIsException(t *testing.T) {
	for _, k := range []models.Kind{models.KindNoSuchObject, models.KindNoSuchInstance, models.KindEndOfMibView} {
		if !k.IsException() {
			t.Errorf("%s should be an exception kind", k)
		}
	}
	if models.KindNull.IsException() {
		t.Errorf("Null is not an exception kind")
	}
}
