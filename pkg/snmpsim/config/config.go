// Package config loads the simulator's YAML configuration: global limits,
// ingress tuning, and the device-type definitions that bind walk files to
// port ranges. Defaults merge into whatever the operator leaves unset;
// validation accumulates every problem so operators see all of them at once.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"

	"github.com/vpbank/snmp_simulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Schema
// ─────────────────────────────────────────────────────────────────────────────

// ProfileDef assigns a behavior to a walk-file OID subtree for one device
// type.
type ProfileDef struct {
	OIDPrefix string                `yaml:"oid_prefix"`
	Behavior  string                `yaml:"behavior"`
	Params    models.BehaviorParams `yaml:"params"`
}

// DeviceTypeDef binds a device type to its walk file, port range, and
// identity strings.
type DeviceTypeDef struct {
	Name      string       `yaml:"name"`
	WalkFile  string       `yaml:"walk_file"`
	SysDescr  string       `yaml:"sys_descr"`
	Community string       `yaml:"community"`
	PortStart int          `yaml:"port_start"`
	PortEnd   int          `yaml:"port_end"`
	Profiles  []ProfileDef `yaml:"profiles"`
}

// Config is the full simulator configuration.
type Config struct {
	// Device pool.
	MaxDevices        int `yaml:"max_devices"`
	MaxMemoryMB       int `yaml:"max_memory_mb"`
	PortRangeStart    int `yaml:"port_range_start"`
	PortRangeEnd      int `yaml:"port_range_end"`
	IdleTimeoutMs     int `yaml:"idle_timeout_ms"`
	CleanupIntervalMs int `yaml:"cleanup_interval_ms"`

	// Ingress.
	Host            string `yaml:"host"`
	WorkerPoolSize  int    `yaml:"worker_pool_size"`
	SocketCount     int    `yaml:"socket_count"`
	FrontPort       int    `yaml:"front_port"`
	PacketQueueSize int    `yaml:"packet_queue_size"`
	EnableHotPath   *bool  `yaml:"enable_hot_path"`
	MTU             int    `yaml:"mtu"`

	// Identity and I/O.
	DefaultCommunity string          `yaml:"default_community"`
	WalkRoot         string          `yaml:"walk_root"`
	DeviceTypes      []DeviceTypeDef `yaml:"device_types"`

	// Integrations.
	TrapSink      string `yaml:"trap_sink"`      // host:port, empty = disabled
	ControlSocket string `yaml:"control_socket"` // unix socket path, empty = in-process only

	// Logging.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_fmt"`
}

// HotPathEnabled resolves the tri-state flag (unset means on).
func (c *Config) HotPathEnabled() bool {
	return c.EnableHotPath == nil || *c.EnableHotPath
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		MaxDevices:        10_000,
		MaxMemoryMB:       1024,
		PortRangeStart:    30000,
		PortRangeEnd:      39999,
		IdleTimeoutMs:     1_800_000,
		CleanupIntervalMs: 300_000,
		Host:              "0.0.0.0",
		WorkerPoolSize:    16,
		SocketCount:       4,
		PacketQueueSize:   10_000,
		MTU:               1400,
		DefaultCommunity:  "public",
		WalkRoot:          "walks",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────────────────────

// Load reads path, merges defaults into unset fields, applies environment
// overrides, and validates. An empty path yields pure defaults (the device
// type list will then fail validation unless supplied elsewhere); a path that
// cannot be read is an error.
func Load(path string) (*Config, error) {
	cfg := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(false) // be lenient — extra keys are fine
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	defaults := Default()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, fmt.Errorf("config: merge defaults: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets deployment tooling override file paths without editing the
// config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SNMPSIM_WALK_ROOT"); v != "" {
		cfg.WalkRoot = v
	}
	if v := os.Getenv("SNMPSIM_CONTROL_SOCKET"); v != "" {
		cfg.ControlSocket = v
	}
	if v := os.Getenv("SNMPSIM_TRAP_SINK"); v != "" {
		cfg.TrapSink = v
	}
}

// Validate accumulates every configuration problem.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.PortRangeStart < 1 || c.PortRangeEnd > 65535 || c.PortRangeStart > c.PortRangeEnd {
		fail("port range [%d,%d] invalid", c.PortRangeStart, c.PortRangeEnd)
	}
	if c.MaxDevices <= 0 {
		fail("max_devices must be positive")
	}
	if len(c.DeviceTypes) == 0 {
		fail("at least one device type is required")
	}

	for i := range c.DeviceTypes {
		dt := &c.DeviceTypes[i]
		if dt.Name == "" {
			fail("device type %d: name is required", i)
		}
		if dt.WalkFile == "" {
			fail("device type %q: walk_file is required", dt.Name)
		}
		if dt.Community == "" {
			dt.Community = c.DefaultCommunity
		}
		if dt.PortStart > dt.PortEnd {
			fail("device type %q: port range [%d,%d] inverted", dt.Name, dt.PortStart, dt.PortEnd)
		}
		if dt.PortStart < c.PortRangeStart || dt.PortEnd > c.PortRangeEnd {
			fail("device type %q: ports [%d,%d] outside global range [%d,%d]",
				dt.Name, dt.PortStart, dt.PortEnd, c.PortRangeStart, c.PortRangeEnd)
		}
		for j := 0; j < i; j++ {
			prev := c.DeviceTypes[j]
			if dt.PortStart <= prev.PortEnd && prev.PortStart <= dt.PortEnd {
				fail("device types %q and %q have overlapping port ranges", prev.Name, dt.Name)
			}
		}
		for _, p := range dt.Profiles {
			if _, err := models.ParseOID(p.OIDPrefix); err != nil {
				fail("device type %q: profile prefix %q: %v", dt.Name, p.OIDPrefix, err)
			}
			if !models.Behavior(p.Behavior).Valid() {
				fail("device type %q: unknown behavior %q", dt.Name, p.Behavior)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}
	return nil
}
