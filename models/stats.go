package models

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Statistics snapshots
// ─────────────────────────────────────────────────────────────────────────────

// PoolStats is a point-in-time snapshot of the device pool counters.
type PoolStats struct {
	ActiveCount   int64 `json:"active_count"`
	CreatedTotal  int64 `json:"created_total"`
	EvictedTotal  int64 `json:"evicted_total"`
	PeakCount     int64 `json:"peak_count"`
	MaxDevices    int64 `json:"max_devices"`
	CapacityDrops int64 `json:"capacity_drops"`
}

// IngressStats is a point-in-time snapshot of the UDP ingress counters.
type IngressStats struct {
	RequestsTotal       int64 `json:"requests_total"`
	ResponsesTotal      int64 `json:"responses_total"`
	DecodeErrors        int64 `json:"decode_errors"`
	AuthFailures        int64 `json:"auth_failures"`
	DroppedBackpressure int64 `json:"dropped_backpressure"`
	UnknownPortDrops    int64 `json:"unknown_port_drops"`
	HotPathHits         int64 `json:"hot_path_hits"`
}

// ServerStats is the combined get_stats payload.
type ServerStats struct {
	Pool    PoolStats    `json:"pool"`
	Ingress IngressStats `json:"ingress"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Device info
// ─────────────────────────────────────────────────────────────────────────────

// DeviceInfo is the get_info payload for one agent.
type DeviceInfo struct {
	Port          int       `json:"port"`
	DeviceType    string    `json:"device_type"`
	DeviceID      string    `json:"device_id"`
	MAC           string    `json:"mac"`
	Community     string    `json:"community"`
	State         string    `json:"state"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	LastAccess    time.Time `json:"last_access"`
	ActiveFaults  []string  `json:"active_faults"`
	RequestsSeen  int64     `json:"requests_seen"`
}
