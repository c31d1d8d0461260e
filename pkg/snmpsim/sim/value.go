package sim

import (
	"log/slog"
	"math"
	"time"

	"github.com/vpbank/snmp_simulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Device state
// ─────────────────────────────────────────────────────────────────────────────

// DeviceState is the mutable per-agent simulation state consulted and updated
// on every render. It is owned by the agent and therefore serialized by the
// agent's mailbox — the simulator itself holds no locks.
type DeviceState struct {
	// Utilization is the device's load baseline in [0,1].
	Utilization float64
	// SignalQuality in [0,1]; degrades error counters and signal gauges.
	SignalQuality float64
	// Health in [0,1]; drives status_enum.
	Health float64
	// ErrorRate in [0,1]; drives status_enum degradation.
	ErrorRate float64
	// Bias is the per-device multiplier applied to gauge targets.
	Bias float64
	// CPUUtilization is the last cpu_gauge emission in percent; couples the
	// temperature gauge to load.
	CPUUtilization float64

	// Counters holds the 64-bit accumulators keyed by OID. The display width
	// (32 vs 64 bits) is applied at render time with modular reduction.
	Counters map[string]uint64
	// Gauges holds the previously emitted gauge values for exponential
	// smoothing.
	Gauges map[string]float64
	// lastUptime tracks, per counter OID, the uptime at the previous sample
	// so increments cover exactly the elapsed interval.
	lastUptime map[string]float64
}

// NewDeviceState builds a state with neutral baselines. The jitterSalt
// (typically the device ID) fixes the per-device bias deterministically.
func NewDeviceState(jitterSalt string) *DeviceState {
	base := Jitter(time.Unix(0, 0), jitterSalt) // time-independent per-device hash
	return &DeviceState{
		Utilization:   0.3 + 0.4*base,
		SignalQuality: 0.8 + 0.2*base,
		Health:        1.0,
		ErrorRate:     0.0,
		Bias:          0.9 + 0.2*base,
		Counters:      make(map[string]uint64),
		Gauges:        make(map[string]float64),
		lastUptime:    make(map[string]float64),
	}
}

// Reset clears all accumulated simulation state, as on reboot.
func (st *DeviceState) Reset() {
	st.Counters = make(map[string]uint64)
	st.Gauges = make(map[string]float64)
	st.lastUptime = make(map[string]float64)
	st.CPUUtilization = 0
	st.Health = 1.0
	st.ErrorRate = 0.0
}

// SeedCounter pre-loads a counter accumulator. Used by tests exercising wrap
// behavior; without a seed the first render starts from the catalog base value.
func (st *DeviceState) SeedCounter(oid models.OID, v uint64) {
	st.Counters[oid.String()] = v
}

// ─────────────────────────────────────────────────────────────────────────────
// Simulator
// ─────────────────────────────────────────────────────────────────────────────

// Simulator renders catalog entries into fresh TypedValues. It is stateless
// and safe for concurrent use; all mutation happens on the DeviceState the
// caller passes in.
type Simulator struct {
	logger *slog.Logger
}

// New constructs a Simulator.
func New(logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Simulator{logger: logger}
}

// Render produces a TypedValue whose wire tag equals entry.DeclaredType.
// wall is UTC wall time; uptime is the agent's monotonic uptime.
func (s *Simulator) Render(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time, uptime time.Duration) models.TypedValue {
	switch entry.Behavior {
	case models.BehaviorStatic:
		return entry.Base

	case models.BehaviorTrafficCounter:
		return s.renderCounter(oid, entry, st, wall, uptime, counterProfile{
			rateMin: 1_000, rateMax: 10_000_000, jitterSpread: 0.3,
		})

	case models.BehaviorPacketCounter:
		return s.renderCounter(oid, entry, st, wall, uptime, counterProfile{
			rateMin: 10, rateMax: 50_000, jitterSpread: 0.8,
		})

	case models.BehaviorErrorCounter:
		return s.renderErrorCounter(oid, entry, st, wall, uptime)

	case models.BehaviorUtilizationGauge, models.BehaviorCPUGauge:
		return s.renderLoadGauge(oid, entry, st, wall)

	case models.BehaviorTemperatureGauge:
		return s.renderTemperature(oid, entry, st, wall)

	case models.BehaviorSNRGauge:
		return s.renderSNR(oid, entry, st, wall)

	case models.BehaviorPowerGauge, models.BehaviorSignalGauge:
		return s.renderPower(oid, entry, st, wall)

	case models.BehaviorUptimeTicks:
		ticks := uint32((uptime.Milliseconds() / 10) & 0xFFFFFFFF)
		return castNumeric(entry.DeclaredType, uint64(ticks))

	case models.BehaviorStatusEnum:
		return s.renderStatus(entry, st)

	default:
		s.logger.Warn("sim: unknown behavior, rendering base value",
			"behavior", string(entry.Behavior),
			"oid", oid.String(),
		)
		return entry.Base
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Counters
// ─────────────────────────────────────────────────────────────────────────────

type counterProfile struct {
	rateMin, rateMax float64
	jitterSpread     float64 // jitter multiplier spread around 1.0
}

// renderCounter advances a traffic/packet accumulator by
// rate × elapsed × jitter × burst and reduces modulo the declared width.
func (s *Simulator) renderCounter(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time, uptime time.Duration, prof counterProfile) models.TypedValue {
	rateMin, rateMax := prof.rateMin, prof.rateMax
	if entry.Params.RateMax > 0 {
		rateMin, rateMax = entry.Params.RateMin, entry.Params.RateMax
	}

	load := clamp(st.Utilization*DailyUtilization(wall)*WeeklyFactor(wall)/1.5, 0, 1)
	rate := lerp(rateMin, rateMax, load)

	key := oid.String()
	j := Jitter(wall, key)
	jitter := 1 - prof.jitterSpread/2 + prof.jitterSpread*j

	burst := 1.0
	burstProb := entry.Params.BurstProbability
	burstFactor := entry.Params.BurstFactor
	if burstFactor == 0 {
		burstFactor = 3.0
	}
	if burstProb > 0 && j < burstProb {
		burst = burstFactor
	}

	elapsed := s.elapsedSeconds(st, key, uptime)
	increment := uint64(rate * elapsed * jitter * burst)

	prev, ok := st.Counters[key]
	if !ok {
		prev = entry.Base.Uint
	}
	next := reduceCounter(prev+increment, entry.DeclaredType)
	st.Counters[key] = next
	return castNumeric(entry.DeclaredType, next)
}

// renderErrorCounter advances an error accumulator. The configured rate is
// per hour; bursts multiply it by 10 with the configured probability.
func (s *Simulator) renderErrorCounter(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time, uptime time.Duration) models.TypedValue {
	ratePerHour := entry.Params.RateMax
	if ratePerHour <= 0 {
		ratePerHour = 60
	}
	ratePerHour *= 0.7*st.Utilization + 0.3*(1-st.SignalQuality)

	key := oid.String()
	burstProb := entry.Params.BurstProbability
	if burstProb == 0 {
		burstProb = 0.02
	}
	if Jitter(wall, key) < burstProb {
		ratePerHour *= 10
	}

	elapsed := s.elapsedSeconds(st, key, uptime)
	increment := uint64(ratePerHour / 3600 * elapsed)

	prev, ok := st.Counters[key]
	if !ok {
		prev = entry.Base.Uint
	}
	next := reduceCounter(prev+increment, entry.DeclaredType)
	st.Counters[key] = next
	return castNumeric(entry.DeclaredType, next)
}

// elapsedSeconds returns the uptime delta since the previous sample of key.
// The first sample covers the whole uptime, so a counter read at any point
// reflects rate × uptime.
func (s *Simulator) elapsedSeconds(st *DeviceState, key string, uptime time.Duration) float64 {
	now := uptime.Seconds()
	last, ok := st.lastUptime[key]
	st.lastUptime[key] = now
	if !ok {
		return now
	}
	if now < last {
		// Uptime went backwards — reboot raced this render; start over.
		return now
	}
	return now - last
}

// reduceCounter applies the declared display width. Accumulators are 64-bit;
// Counter32/Gauge32/TimeTicks reduce modulo 2^32.
func reduceCounter(v uint64, declared models.Kind) uint64 {
	if declared == models.KindCounter64 {
		return v
	}
	return v & 0xFFFFFFFF
}

// ─────────────────────────────────────────────────────────────────────────────
// Gauges
// ─────────────────────────────────────────────────────────────────────────────

// renderLoadGauge smooths toward base × daily × weekly × bias with factor
// 0.1, clamped to [0,100] (or the configured bounds).
func (s *Simulator) renderLoadGauge(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time) models.TypedValue {
	lo, hi := bounds(entry.Params, 0, 100)
	base := baseFloat(entry.Base)
	target := base * DailyUtilization(wall) * WeeklyFactor(wall) * st.Bias

	key := oid.String()
	prev, ok := st.Gauges[key]
	if !ok {
		prev = base
	}
	next := clamp(prev+0.1*(target-prev), lo, hi)
	st.Gauges[key] = next
	if entry.Behavior == models.BehaviorCPUGauge {
		st.CPUUtilization = next
	}
	return castNumeric(entry.DeclaredType, uint64(math.Round(next)))
}

// renderTemperature is base + diurnal + seasonal + load coupling, clamped to
// [-10, 85].
func (s *Simulator) renderTemperature(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time) models.TypedValue {
	lo, hi := bounds(entry.Params, -10, 85)
	loadFactor := entry.Params.LoadFactor
	if loadFactor == 0 {
		loadFactor = 0.05
	}
	v := baseFloat(entry.Base) +
		DailyTemperatureOffset(wall) +
		SeasonalTemperatureOffset(wall) +
		loadFactor*st.CPUUtilization
	v = clamp(v, lo, hi)
	st.Gauges[oid.String()] = v
	return castSigned(entry.DeclaredType, int64(math.Round(v)))
}

// renderSNR is base × (1 − utilization×0.2) × weather × noise, clamped to
// [10, 40].
func (s *Simulator) renderSNR(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time) models.TypedValue {
	lo, hi := bounds(entry.Params, 10, 40)
	key := oid.String()
	weather := 0.9 + 0.1*Jitter(wall, "weather") // shared across the fleet
	noise := 0.97 + 0.06*Jitter(wall, key)
	v := clamp(baseFloat(entry.Base)*(1-st.Utilization*0.2)*weather*noise, lo, hi)
	st.Gauges[key] = v
	return castSigned(entry.DeclaredType, int64(math.Round(v)))
}

// renderPower modulates the base level by temperature drift and signal
// quality, clamped to the configured range.
func (s *Simulator) renderPower(oid models.OID, entry *models.CatalogEntry, st *DeviceState, wall time.Time) models.TypedValue {
	lo, hi := bounds(entry.Params, -15, 15)
	tempDrift := 1 + 0.01*DailyTemperatureOffset(wall)
	quality := 0.9 + 0.2*st.SignalQuality
	v := clamp(baseFloat(entry.Base)*tempDrift*quality, lo, hi)
	st.Gauges[oid.String()] = v
	return castSigned(entry.DeclaredType, int64(math.Round(v)))
}

// ─────────────────────────────────────────────────────────────────────────────
// Status
// ─────────────────────────────────────────────────────────────────────────────

// ifOperStatus-style enum values.
const (
	statusUp       = 1
	statusDown     = 2
	statusDegraded = 3
)

// renderStatus maps device health to up/down/degraded. String-typed status
// entries (some vendors capture status as text) get the word instead of the
// enum.
func (s *Simulator) renderStatus(entry *models.CatalogEntry, st *DeviceState) models.TypedValue {
	var code int64
	var word string
	switch {
	case st.Health < 0.5:
		code, word = statusDown, "down"
	case st.ErrorRate > 0.1:
		code, word = statusDegraded, "degraded"
	default:
		code, word = statusUp, "up"
	}
	if entry.DeclaredType == models.KindOctetString {
		return models.StringValue(word)
	}
	return castSigned(entry.DeclaredType, code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Numeric casting — tag fidelity at emission
// ─────────────────────────────────────────────────────────────────────────────

// castNumeric emits an unsigned quantity under the declared type.
func castNumeric(declared models.Kind, v uint64) models.TypedValue {
	switch declared {
	case models.KindCounter64:
		return models.Counter64Value(v)
	case models.KindCounter32:
		return models.Counter32Value(uint32(v))
	case models.KindGauge32:
		return models.Gauge32Value(uint32(v))
	case models.KindTimeTicks:
		return models.TimeTicksValue(uint32(v))
	case models.KindInteger:
		return models.IntegerValue(int64(v & 0x7FFFFFFFFFFFFFFF))
	default:
		return models.TypedValue{Kind: declared, Uint: v}
	}
}

// castSigned emits a signed quantity under the declared type; negative
// values under unsigned declared types clamp to zero rather than wrap.
func castSigned(declared models.Kind, v int64) models.TypedValue {
	if declared == models.KindInteger {
		return models.IntegerValue(v)
	}
	if v < 0 {
		v = 0
	}
	return castNumeric(declared, uint64(v))
}

func baseFloat(v models.TypedValue) float64 {
	switch v.Kind {
	case models.KindInteger:
		return float64(v.Int)
	case models.KindCounter32, models.KindGauge32, models.KindTimeTicks, models.KindCounter64:
		return float64(v.Uint)
	default:
		return 0
	}
}

func bounds(p models.BehaviorParams, defLo, defHi float64) (float64, float64) {
	if p.Min == 0 && p.Max == 0 {
		return defLo, defHi
	}
	return p.Min, p.Max
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
