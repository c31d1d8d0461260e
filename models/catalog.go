package models

// ─────────────────────────────────────────────────────────────────────────────
// Simulation behaviors
// ─────────────────────────────────────────────────────────────────────────────

// Behavior selects how a catalog entry's value evolves over time. Static
// entries return their base value unchanged; every other behavior derives a
// fresh value from device state and wall time on each read.
type Behavior string

const (
	BehaviorStatic           Behavior = "static"
	BehaviorTrafficCounter   Behavior = "traffic_counter"
	BehaviorPacketCounter    Behavior = "packet_counter"
	BehaviorErrorCounter     Behavior = "error_counter"
	BehaviorUtilizationGauge Behavior = "utilization_gauge"
	BehaviorCPUGauge         Behavior = "cpu_gauge"
	BehaviorTemperatureGauge Behavior = "temperature_gauge"
	BehaviorSignalGauge      Behavior = "signal_gauge"
	BehaviorSNRGauge         Behavior = "snr_gauge"
	BehaviorPowerGauge       Behavior = "power_gauge"
	BehaviorUptimeTicks      Behavior = "uptime_ticks"
	BehaviorStatusEnum       Behavior = "status_enum"
)

// Valid reports whether b names a known behavior.
func (b Behavior) Valid() bool {
	switch b {
	case BehaviorStatic, BehaviorTrafficCounter, BehaviorPacketCounter,
		BehaviorErrorCounter, BehaviorUtilizationGauge, BehaviorCPUGauge,
		BehaviorTemperatureGauge, BehaviorSignalGauge, BehaviorSNRGauge,
		BehaviorPowerGauge, BehaviorUptimeTicks, BehaviorStatusEnum:
		return true
	}
	return false
}

// BehaviorParams carries the per-behavior tuning knobs. Zero values fall back
// to behavior-specific defaults in the simulator; only the fields relevant to
// the selected behavior are consulted.
type BehaviorParams struct {
	// RateMin/RateMax bound the per-second rate for counter behaviors
	// (per-hour for error_counter). The effective rate interpolates between
	// them by utilization and time-of-day pattern.
	RateMin float64 `yaml:"rate_min"`
	RateMax float64 `yaml:"rate_max"`

	// Variance names a jitter profile ("low", "normal", "bursty"). The
	// simulator does not read it; each behavior uses a fixed jitter spread.
	Variance string `yaml:"variance"`

	// Min/Max clamp gauge outputs. Both zero means the behavior default
	// (e.g. [0,100] for utilization, [-10,85] for temperature).
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	// BurstProbability is the per-sample chance of a burst; BurstFactor the
	// multiplier applied during one.
	BurstProbability float64 `yaml:"burst_probability"`
	BurstFactor      float64 `yaml:"burst_factor"`

	// LoadFactor couples temperature_gauge to CPU utilization.
	LoadFactor float64 `yaml:"load_factor"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog entry
// ─────────────────────────────────────────────────────────────────────────────

// CatalogEntry is one OID's declared type, base value, and behavior inside a
// device-type catalog. Entries are immutable after catalog build and shared
// by every agent of the type.
type CatalogEntry struct {
	// DeclaredType is the wire type every rendered value must carry.
	DeclaredType Kind

	// Base is the value captured in the walk file. For counters it seeds the
	// accumulator; for gauges it is the target baseline; static entries
	// return it verbatim.
	Base TypedValue

	// Behavior selects the value simulation rule; Params tunes it.
	Behavior Behavior
	Params   BehaviorParams
}
