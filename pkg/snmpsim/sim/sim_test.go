package sim_test

import (
	"testing"
	"time"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/sim"
)

// ─────────────────────────────────────────────────────────────────────────────
// Patterns
// ─────────────────────────────────────────────────────────────────────────────

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

// A Wednesday.
var wednesday = time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

func TestDailyUtilization_Shape(t *testing.T) {
	night := sim.DailyUtilization(at(wednesday, 3, 0))
	business := sim.DailyUtilization(at(wednesday, 10, 0))
	evening := sim.DailyUtilization(at(wednesday, 19, 30))

	if night != 0.2 {
		t.Errorf("overnight utilization = %v, want 0.2", night)
	}
	if business != 1.0 {
		t.Errorf("business utilization = %v, want 1.0", business)
	}
	if evening <= business {
		t.Errorf("residential peak %v must exceed business %v", evening, business)
	}

	// Bounds over the full day at minute resolution.
	for m := 0; m < 24*60; m++ {
		v := sim.DailyUtilization(at(wednesday, m/60, m%60))
		if v < 0.2-1e-9 || v > 1.5+1e-9 {
			t.Fatalf("utilization at minute %d = %v outside [0.2,1.5]", m, v)
		}
	}
}

func TestWeeklyFactor(t *testing.T) {
	sat := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	if got := sim.WeeklyFactor(sat); got != 0.7 {
		t.Errorf("Saturday factor = %v, want 0.7", got)
	}
	if got := sim.WeeklyFactor(sun); got != 0.5 {
		t.Errorf("Sunday factor = %v, want 0.5", got)
	}
	if got := sim.WeeklyFactor(wednesday); got != 1.0 {
		t.Errorf("Wednesday factor = %v, want 1.0", got)
	}
}

func TestDailyTemperatureOffset_Extremes(t *testing.T) {
	min := sim.DailyTemperatureOffset(at(wednesday, 6, 0))
	max := sim.DailyTemperatureOffset(at(wednesday, 15, 0))
	if min != -5 {
		t.Errorf("offset at 06:00 = %v, want -5", min)
	}
	if max != 5 {
		t.Errorf("offset at 15:00 = %v, want +5", max)
	}
	for m := 0; m < 24*60; m += 10 {
		v := sim.DailyTemperatureOffset(at(wednesday, m/60, m%60))
		if v < -5-1e-9 || v > 5+1e-9 {
			t.Fatalf("offset at minute %d = %v outside [-5,5]", m, v)
		}
	}
}

func TestSeasonalTemperatureOffset_PeaksInJuly(t *testing.T) {
	july := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if v := sim.SeasonalTemperatureOffset(july); v < 14.9 {
		t.Errorf("July offset = %v, want ~+15", v)
	}
	if v := sim.SeasonalTemperatureOffset(jan); v > -14 {
		t.Errorf("January offset = %v, want ~-15", v)
	}
}

func TestJitter_DeterministicPerMinute(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 30, 5, 0, time.UTC)
	sameMinute := base.Add(20 * time.Second)
	nextMinute := base.Add(time.Minute)

	if sim.Jitter(base, "x") != sim.Jitter(sameMinute, "x") {
		t.Errorf("jitter must be constant within a minute")
	}
	if sim.Jitter(base, "x") == sim.Jitter(nextMinute, "x") {
		t.Errorf("jitter should change across minutes")
	}
	if sim.Jitter(base, "x") == sim.Jitter(base, "y") {
		t.Errorf("jitter must vary by salt")
	}
	v := sim.Jitter(base, "x")
	if v < 0 || v >= 1 {
		t.Errorf("jitter %v outside [0,1)", v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Value rendering
// ─────────────────────────────────────────────────────────────────────────────

func trafficEntry(declared models.Kind, base uint64) *models.CatalogEntry {
	return &models.CatalogEntry{
		DeclaredType: declared,
		Base:         models.TypedValue{Kind: declared, Uint: base},
		Behavior:     models.BehaviorTrafficCounter,
		Params:       models.BehaviorParams{RateMin: 100, RateMax: 1000},
	}
}

func TestRender_StaticReturnsBase(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	entry := &models.CatalogEntry{
		DeclaredType: models.KindOctetString,
		Base:         models.StringValue("Cable Modem"),
		Behavior:     models.BehaviorStatic,
	}
	v := s.Render(models.MustParseOID("1.3.6.1.2.1.1.1.0"), entry, st, wednesday, time.Minute)
	if v.Kind != models.KindOctetString || string(v.Bytes) != "Cable Modem" {
		t.Errorf("static render = %v, want base value", v)
	}
}

func TestRender_TrafficCounterMonotone(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	oid := models.MustParseOID("1.3.6.1.2.1.2.2.1.10.1")
	entry := trafficEntry(models.KindCounter32, 1000)

	var prev uint64
	for i := 1; i <= 20; i++ {
		v := s.Render(oid, entry, st, wednesday.Add(time.Duration(i)*time.Minute), time.Duration(i)*time.Minute)
		if v.Kind != models.KindCounter32 {
			t.Fatalf("tag = %s, want Counter32", v.Kind)
		}
		if v.Uint < prev {
			t.Fatalf("counter went backwards: %d after %d", v.Uint, prev)
		}
		prev = v.Uint
	}
	if prev <= 1000 {
		t.Errorf("counter never advanced past its base (%d)", prev)
	}
}

func TestRender_CounterWrap32(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	oid := models.MustParseOID("1.3.6.1.2.1.2.2.1.10.1")
	entry := trafficEntry(models.KindCounter32, 0)

	// Seed just below the 32-bit wrap; one render at >=1 minute uptime with
	// rate >=100/s adds comfortably more than 10.
	seed := uint64(1)<<32 - 10
	st.SeedCounter(oid, seed)

	v := s.Render(oid, entry, st, wednesday, time.Minute)
	if v.Uint >= seed {
		t.Fatalf("expected wrap, got %d", v.Uint)
	}
	if v.Uint > 1<<20 {
		t.Errorf("post-wrap value %d implausibly large", v.Uint)
	}
}

func TestRender_Counter64KeepsWidth(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	oid := models.MustParseOID("1.3.6.1.2.1.31.1.1.1.6.1")
	entry := trafficEntry(models.KindCounter64, uint64(1)<<33)

	v := s.Render(oid, entry, st, wednesday, time.Minute)
	if v.Kind != models.KindCounter64 {
		t.Fatalf("tag = %s, want Counter64", v.Kind)
	}
	if v.Uint < uint64(1)<<33 {
		t.Errorf("64-bit counter must not reduce modulo 2^32: %d", v.Uint)
	}
}

func TestRender_UptimeTicks(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	entry := &models.CatalogEntry{
		DeclaredType: models.KindTimeTicks,
		Base:         models.TimeTicksValue(0),
		Behavior:     models.BehaviorUptimeTicks,
	}
	v := s.Render(models.MustParseOID("1.3.6.1.2.1.1.3.0"), entry, st, wednesday, 90*time.Second)
	if v.Kind != models.KindTimeTicks {
		t.Fatalf("tag = %s, want TimeTicks", v.Kind)
	}
	if v.Uint != 9000 {
		t.Errorf("uptime ticks = %d, want 9000 (90 s in centiseconds)", v.Uint)
	}
}

func TestRender_LoadGaugeClampedAndSmoothed(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	oid := models.MustParseOID("1.3.6.1.4.1.9.9.109.1.1.1.1.7.1")
	entry := &models.CatalogEntry{
		DeclaredType: models.KindGauge32,
		Base:         models.Gauge32Value(40),
		Behavior:     models.BehaviorCPUGauge,
	}
	for i := 0; i < 50; i++ {
		v := s.Render(oid, entry, st, wednesday.Add(time.Duration(i)*time.Minute), time.Duration(i)*time.Minute)
		if v.Kind != models.KindGauge32 {
			t.Fatalf("tag = %s, want Gauge32", v.Kind)
		}
		if v.Uint > 100 {
			t.Fatalf("cpu gauge %d above 100", v.Uint)
		}
	}
	if st.CPUUtilization <= 0 {
		t.Errorf("cpu gauge must feed CPUUtilization back into state")
	}
}

func TestRender_TemperatureWithinClamp(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	st.CPUUtilization = 80
	entry := &models.CatalogEntry{
		DeclaredType: models.KindInteger,
		Base:         models.IntegerValue(45),
		Behavior:     models.BehaviorTemperatureGauge,
	}
	for hour := 0; hour < 24; hour++ {
		v := s.Render(models.MustParseOID("1.3.6.1.4.1.2021.13.16.2.1.3.1"), entry, st,
			at(wednesday, hour, 0), time.Hour)
		if v.Kind != models.KindInteger {
			t.Fatalf("tag = %s, want INTEGER", v.Kind)
		}
		if v.Int < -10 || v.Int > 85 {
			t.Fatalf("temperature %d outside [-10,85]", v.Int)
		}
	}
}

func TestRender_StatusEnum(t *testing.T) {
	s := sim.New(nil)
	entry := &models.CatalogEntry{
		DeclaredType: models.KindInteger,
		Base:         models.IntegerValue(1),
		Behavior:     models.BehaviorStatusEnum,
	}
	oid := models.MustParseOID("1.3.6.1.2.1.2.2.1.8.1")

	st := sim.NewDeviceState("dev-1")
	if v := s.Render(oid, entry, st, wednesday, time.Minute); v.Int != 1 {
		t.Errorf("healthy status = %d, want 1 (up)", v.Int)
	}
	st.ErrorRate = 0.5
	if v := s.Render(oid, entry, st, wednesday, time.Minute); v.Int != 3 {
		t.Errorf("degraded status = %d, want 3", v.Int)
	}
	st.Health = 0.2
	if v := s.Render(oid, entry, st, wednesday, time.Minute); v.Int != 2 {
		t.Errorf("down status = %d, want 2", v.Int)
	}
}

func TestRender_ResetClearsAccumulators(t *testing.T) {
	s := sim.New(nil)
	st := sim.NewDeviceState("dev-1")
	oid := models.MustParseOID("1.3.6.1.2.1.2.2.1.10.1")
	entry := trafficEntry(models.KindCounter32, 0)

	_ = s.Render(oid, entry, st, wednesday, 10*time.Minute)
	before := st.Counters[oid.String()]
	if before == 0 {
		t.Fatal("counter did not advance before reset")
	}
	st.Reset()
	v := s.Render(oid, entry, st, wednesday, time.Second)
	if v.Uint >= before {
		t.Errorf("post-reboot counter %d not below pre-reboot %d", v.Uint, before)
	}
}
