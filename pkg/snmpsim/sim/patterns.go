// Package sim renders fresh, type-correct values from catalog entries. It
// combines the per-behavior simulation rules with deterministic time-of-day,
// weekly, and seasonal patterns so that traffic shapes are realistic and —
// at minute granularity — reproducible across processes.
package sim

import (
	"hash/fnv"
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Time-of-day / weekly / seasonal patterns
//
// Pure functions of UTC wall time. No process state, no randomness beyond
// the minute-granular hash in Jitter.
// ─────────────────────────────────────────────────────────────────────────────

// DailyUtilization returns the time-of-day traffic multiplier in [0.2, 1.5]:
// low overnight, morning ramp 05–09, business plateau 09–17 with a lunch dip,
// transition 17–18, residential peak 18–21, decline 21–24.
func DailyUtilization(t time.Time) float64 {
	h := hourOfDay(t.UTC())
	switch {
	case h < 5:
		return 0.2
	case h < 9:
		// Ramp 0.2 → 1.0.
		return lerp(0.2, 1.0, smooth((h-5)/4))
	case h < 12:
		return 1.0
	case h < 13:
		// Lunch dip to 0.85 and back.
		return 1.0 - 0.15*math.Sin(math.Pi*(h-12))
	case h < 17:
		return 1.0
	case h < 18:
		// Transition 1.0 → 1.2.
		return lerp(1.0, 1.2, smooth(h-17))
	case h < 21:
		// Residential peak up to 1.5 centred on 19:30.
		return 1.2 + 0.3*math.Sin(math.Pi*(h-18)/3)
	default:
		// Decline 1.2 → 0.2 by midnight.
		return lerp(1.2, 0.2, smooth((h-21)/3))
	}
}

// WeeklyFactor returns the day-of-week multiplier: roughly 1.0 on weekdays
// with a small per-day bias, 0.7 on Saturday, 0.5 on Sunday. Weekend
// evenings recover part of the residential traffic.
func WeeklyFactor(t time.Time) float64 {
	u := t.UTC()
	h := hourOfDay(u)
	switch u.Weekday() {
	case time.Saturday:
		if h >= 18 && h < 23 {
			return 0.85
		}
		return 0.7
	case time.Sunday:
		if h >= 18 && h < 23 {
			return 0.65
		}
		return 0.5
	case time.Monday:
		return 0.97
	case time.Friday:
		return 1.03
	default:
		return 1.0
	}
}

// DailyTemperatureOffset returns the diurnal temperature swing in °C within
// [-5, +5]: minimum at 06:00, maximum at 15:00.
func DailyTemperatureOffset(t time.Time) float64 {
	h := hourOfDay(t.UTC())
	// Rise over the 9 hours 06→15, fall over the remaining 15 hours.
	var phase float64
	if h >= 6 && h < 15 {
		phase = (h - 6) / 9 // 0 → 1
	} else {
		since15 := math.Mod(h-15+24, 24)
		phase = 1 - since15/15 // 1 → 0
	}
	return -5 + 10*phase
}

// SeasonalTemperatureOffset returns the annual temperature swing in °C within
// [-15, +15], peaking around July 1 (northern-hemisphere shape).
func SeasonalTemperatureOffset(t time.Time) float64 {
	day := float64(t.UTC().YearDay())
	return 15 * math.Cos(2*math.Pi*(day-182)/365.25)
}

// ─────────────────────────────────────────────────────────────────────────────
// Deterministic jitter
// ─────────────────────────────────────────────────────────────────────────────

// Jitter returns a pseudo-random value in [0, 1) that is a pure function of
// (wall-clock minute, salt). Identical inputs yield identical outputs across
// processes, which makes injected bursts reproducible in tests.
func Jitter(t time.Time, salt string) float64 {
	h := fnv.New64a()
	var buf [8]byte
	minute := t.UTC().Unix() / 60
	for i := 0; i < 8; i++ {
		buf[i] = byte(minute >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(salt))
	return float64(h.Sum64()>>11) / float64(1<<53)
}

// ─────────────────────────────────────────────────────────────────────────────
// Small helpers
// ─────────────────────────────────────────────────────────────────────────────

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

// smooth is the cubic smoothstep easing over [0,1].
func smooth(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x * x * (3 - 2*x)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
