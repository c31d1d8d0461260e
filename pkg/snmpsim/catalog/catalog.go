package catalog

import (
	"log/slog"
	"sort"

	"github.com/vpbank/snmp_simulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Behavior profiles
// ─────────────────────────────────────────────────────────────────────────────

// ProfileRule assigns a simulation behavior to every walk entry under an OID
// prefix. Rules are evaluated in order; the first match wins. Entries matched
// by no rule fall back to the built-in well-known table, then to static.
type ProfileRule struct {
	Prefix   models.OID
	Behavior models.Behavior
	Params   models.BehaviorParams
}

// builtinRule pairs a well-known OID prefix with its default behavior.
// These cover the interface and system groups that every walker exercises.
type builtinRule struct {
	prefix   models.OID
	behavior models.Behavior
}

var builtinRules = []builtinRule{
	{models.MustParseOID("1.3.6.1.2.1.1.3"), models.BehaviorUptimeTicks},       // sysUpTime
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.8"), models.BehaviorStatusEnum},    // ifOperStatus
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.10"), models.BehaviorTrafficCounter}, // ifInOctets
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.16"), models.BehaviorTrafficCounter}, // ifOutOctets
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.11"), models.BehaviorPacketCounter},  // ifInUcastPkts
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.17"), models.BehaviorPacketCounter},  // ifOutUcastPkts
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.14"), models.BehaviorErrorCounter},   // ifInErrors
	{models.MustParseOID("1.3.6.1.2.1.2.2.1.20"), models.BehaviorErrorCounter},   // ifOutErrors
	{models.MustParseOID("1.3.6.1.2.1.31.1.1.1.6"), models.BehaviorTrafficCounter},  // ifHCInOctets
	{models.MustParseOID("1.3.6.1.2.1.31.1.1.1.10"), models.BehaviorTrafficCounter}, // ifHCOutOctets
	{models.MustParseOID("1.3.6.1.2.1.31.1.1.1.7"), models.BehaviorPacketCounter},   // ifHCInUcastPkts
	{models.MustParseOID("1.3.6.1.2.1.31.1.1.1.11"), models.BehaviorPacketCounter},  // ifHCOutUcastPkts
}

// assignBehavior resolves the behavior for one walk entry.
func assignBehavior(oid models.OID, profiles []ProfileRule) (models.Behavior, models.BehaviorParams) {
	for _, rule := range profiles {
		if oid.HasPrefix(rule.Prefix) {
			return rule.Behavior, rule.Params
		}
	}
	for _, rule := range builtinRules {
		if oid.HasPrefix(rule.prefix) {
			return rule.behavior, models.BehaviorParams{}
		}
	}
	return models.BehaviorStatic, models.BehaviorParams{}
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// GetStatus is the outcome of an exact-match lookup.
type GetStatus int

const (
	// Found means an exact leaf exists.
	Found GetStatus = iota
	// NoSuchInstance means the leaf is missing but a sibling under the same
	// parent exists.
	NoSuchInstance
	// NoSuchObject means nothing under the parent exists at all.
	NoSuchObject
)

// Row is one (OID, entry) pair produced by GetNext / GetBulk.
type Row struct {
	OID   models.OID
	Entry *models.CatalogEntry
}

// Catalog is the immutable sorted OID table for one device type. Safe for
// unlocked concurrent reads after Build.
type Catalog struct {
	typeName string
	oids     []models.OID                    // strictly increasing
	entries  map[string]*models.CatalogEntry // key: OID.String(), exactly the sorted keys
}

// Build constructs a catalog from parsed walk entries. Duplicate OIDs keep
// the last occurrence, matching how repeated walk captures overwrite.
func Build(typeName string, walk []WalkEntry, profiles []ProfileRule, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	entries := make(map[string]*models.CatalogEntry, len(walk))
	oids := make([]models.OID, 0, len(walk))
	for _, w := range walk {
		if w.Value.Kind == models.KindNull {
			// A NULL leaf would leak into clean GetResponses; walkers treat
			// it as an error. Skip it.
			logger.Warn("catalog: dropping NULL-valued walk entry", "oid", w.OID.String())
			continue
		}
		key := w.OID.String()
		if _, dup := entries[key]; !dup {
			oids = append(oids, w.OID.Clone())
		}
		behavior, params := assignBehavior(w.OID, profiles)
		entries[key] = &models.CatalogEntry{
			DeclaredType: w.Value.Kind,
			Base:         w.Value,
			Behavior:     behavior,
			Params:       params,
		}
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i].Compare(oids[j]) < 0 })

	logger.Info("catalog: built",
		"device_type", typeName,
		"oids", len(oids),
	)
	return &Catalog{typeName: typeName, oids: oids, entries: entries}
}

// TypeName returns the device-type name the catalog was built for.
func (c *Catalog) TypeName() string { return c.typeName }

// Len returns the number of leaf OIDs.
func (c *Catalog) Len() int { return len(c.oids) }

// First returns the lexicographically smallest row, or ok=false for an empty
// catalog.
func (c *Catalog) First() (Row, bool) {
	if len(c.oids) == 0 {
		return Row{}, false
	}
	oid := c.oids[0]
	return Row{OID: oid, Entry: c.entries[oid.String()]}, true
}

// Get performs an exact-match lookup.
func (c *Catalog) Get(oid models.OID) (*models.CatalogEntry, GetStatus) {
	if e, ok := c.entries[oid.String()]; ok {
		return e, Found
	}
	// Distinguish noSuchInstance (some sibling under the same parent exists)
	// from noSuchObject.
	parent := oid.Parent()
	if parent != nil {
		idx := c.searchAfterOrAt(parent)
		if idx < len(c.oids) && c.oids[idx].HasPrefix(parent) {
			return nil, NoSuchInstance
		}
	}
	return nil, NoSuchObject
}

// GetNext returns the row with the smallest OID strictly greater than the
// argument. Descent from internal nodes falls out of pure lexicographic
// order: the first descendant of 1.3.6.1.2.1 is the first OID greater than
// it, while 1.3.6.1.2.11 (a string lookalike, not a descendant) sorts after
// the whole subtree. ok=false signals end of MIB view.
func (c *Catalog) GetNext(oid models.OID) (Row, bool) {
	idx := sort.Search(len(c.oids), func(i int) bool {
		return c.oids[i].Compare(oid) > 0
	})
	if idx >= len(c.oids) {
		return Row{}, false
	}
	next := c.oids[idx]
	return Row{OID: next, Entry: c.entries[next.String()]}, true
}

// GetBulk applies GetNext up to max times starting after start, stopping
// early at the end of the MIB view.
func (c *Catalog) GetBulk(start models.OID, max int) []Row {
	if max <= 0 {
		return nil
	}
	rows := make([]Row, 0, max)
	cur := start
	for len(rows) < max {
		row, ok := c.GetNext(cur)
		if !ok {
			break
		}
		rows = append(rows, row)
		cur = row.OID
	}
	return rows
}

// searchAfterOrAt returns the index of the first OID >= probe.
func (c *Catalog) searchAfterOrAt(probe models.OID) int {
	return sort.Search(len(c.oids), func(i int) bool {
		return c.oids[i].Compare(probe) >= 0
	})
}
