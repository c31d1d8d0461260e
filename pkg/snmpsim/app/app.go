// Package app wires the simulator components together and manages their
// lifecycle.
//
// Request path:
//
//	UDP → Ingress (readers + decode workers) → DevicePool → Agent →
//	Catalog/Simulator → Ingress (encode + send)
//
// Side paths:
//
//	Control API (unix socket / in-process) → faults, reboots, stats
//	Recovery timers → scheduled fault recovery → agents
//	Notifier → lifecycle traps to the configured sink
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/agent"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/catalog"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/config"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/control"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/ingress"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/notify"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/pool"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/recovery"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/sim"
)

// deviceType is the resolved runtime form of one config.DeviceTypeDef.
type deviceType struct {
	def     config.DeviceTypeDef
	catalog *catalog.Catalog
}

// App orchestrates the full simulator. Create with New, run with Start, and
// shut down with Stop (or cancel the context).
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	types     map[string]*deviceType
	devPool   *pool.Pool
	udp       *ingress.Ingress
	timers    *recovery.Timers
	notifier  *notify.Notifier
	ctrl      *control.Controller
	ctrlSrv   *control.Server
	simulator *sim.Simulator

	cancel context.CancelFunc
}

// New constructs an App. Nothing starts until Start.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &App{cfg: cfg, logger: logger}
}

// Controller exposes the in-process control API (fault injection, reboots,
// stats). Valid after Start.
func (a *App) Controller() *control.Controller { return a.ctrl }

// Pool exposes the device pool for tests and embedding callers. Valid after
// Start.
func (a *App) Pool() *pool.Pool { return a.devPool }

// Start loads walk files, builds every component, binds the UDP surface, and
// begins serving. The caller must eventually call Stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// ── 1. Load per-type catalogs ───────────────────────────────────────
	a.types = make(map[string]*deviceType, len(a.cfg.DeviceTypes))
	for _, def := range a.cfg.DeviceTypes {
		path := def.WalkFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.cfg.WalkRoot, path)
		}
		entries, err := catalog.ParseWalkFile(path, a.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("app: device type %q: %w", def.Name, err)
		}
		profiles, err := profileRules(def.Profiles)
		if err != nil {
			cancel()
			return fmt.Errorf("app: device type %q: %w", def.Name, err)
		}
		a.types[def.Name] = &deviceType{
			def:     def,
			catalog: catalog.Build(def.Name, entries, profiles, a.logger),
		}
	}

	// ── 2. Shared services ──────────────────────────────────────────────
	a.simulator = sim.New(a.logger)
	a.timers = recovery.New(a.logger)
	go a.timers.Start(runCtx)

	a.notifier = notify.New(notifyConfig(a.cfg, a.logger))
	if err := a.notifier.Start(runCtx); err != nil {
		// Trap emission is best-effort; run without it.
		a.logger.Error("app: trap notifier failed to start — continuing without lifecycle traps",
			"error", err.Error(),
		)
	}

	// ── 3. Device pool ──────────────────────────────────────────────────
	rules := make([]pool.Rule, 0, len(a.cfg.DeviceTypes))
	for _, def := range a.cfg.DeviceTypes {
		rules = append(rules, pool.Rule{
			DeviceType: def.Name,
			Start:      def.PortStart,
			End:        def.PortEnd,
		})
	}
	devPool, err := pool.New(pool.Config{
		Rules:           rules,
		MaxDevices:      a.cfg.MaxDevices,
		IdleTimeout:     time.Duration(a.cfg.IdleTimeoutMs) * time.Millisecond,
		CleanupInterval: time.Duration(a.cfg.CleanupIntervalMs) * time.Millisecond,
		Factory:         a.agentFactory(),
		Logger:          a.logger,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("app: build pool: %w", err)
	}
	a.devPool = devPool
	a.devPool.Start(runCtx)

	// ── 4. UDP ingress ──────────────────────────────────────────────────
	ports := make([]int, 0, 1024)
	for _, r := range rules {
		for port := r.Start; port <= r.End; port++ {
			ports = append(ports, port)
		}
	}
	a.udp = ingress.New(ingress.Config{
		Host:           a.cfg.Host,
		Ports:          ports,
		FrontPort:      a.cfg.FrontPort,
		SocketCount:    a.cfg.SocketCount,
		WorkerPoolSize: a.cfg.WorkerPoolSize,
		QueueSize:      a.cfg.PacketQueueSize,
		EnableHotPath:  a.cfg.HotPathEnabled(),
		Pool:           a.devPool,
		Logger:         a.logger,
	})
	if err := a.udp.Start(runCtx); err != nil {
		a.devPool.Close()
		cancel()
		return fmt.Errorf("app: start ingress: %w", err)
	}

	// ── 5. Control API ──────────────────────────────────────────────────
	a.ctrl = control.New(a.devPool, a.udp, a.logger)
	if a.cfg.ControlSocket != "" {
		a.ctrlSrv = control.NewServer(a.ctrl, a.cfg.ControlSocket, a.logger)
		if err := a.ctrlSrv.Start(runCtx); err != nil {
			a.udp.Stop()
			a.devPool.Close()
			cancel()
			return fmt.Errorf("app: start control server: %w", err)
		}
	}

	// ── 6. Memory watchdog ──────────────────────────────────────────────
	if a.cfg.MaxMemoryMB > 0 {
		go a.memoryWatch(runCtx)
	}

	a.logger.Info("app: serving",
		"device_types", len(a.types),
		"ports", len(ports),
		"max_devices", a.cfg.MaxDevices,
		"workers", a.cfg.WorkerPoolSize,
	)
	return nil
}

// Stop shuts everything down: the control server, then ingress (no new
// requests), then the pool (agents drain their current request), then the
// notifier and recovery timers.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	if a.ctrlSrv != nil {
		a.ctrlSrv.Stop()
	}
	if a.udp != nil {
		a.udp.Stop()
	}
	if a.devPool != nil {
		a.devPool.Close()
	}
	if a.notifier != nil {
		a.notifier.Stop()
	}
	if a.timers != nil {
		a.timers.Stop()
	}
	a.logger.Info("app: shutdown complete")
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// agentFactory builds the pool's per-port agent constructor, closing over the
// shared catalogs and services.
func (a *App) agentFactory() pool.Factory {
	return func(port int, rule pool.Rule) *agent.Agent {
		dt, ok := a.types[rule.DeviceType]
		if !ok {
			return nil
		}
		return agent.New(agent.Config{
			Port:       port,
			DeviceType: dt.def.Name,
			Community:  dt.def.Community,
			SysDescr:   dt.def.SysDescr,
			Catalog:    dt.catalog,
			Simulator:  a.simulator,
			Timers:     a.timers,
			Notifier:   a.notifier,
			Logger:     a.logger,
			MTU:        a.cfg.MTU,
			OnExit: func(port int) {
				if ag, ok := a.devPool.Peek(port); ok {
					a.devPool.Remove(port, ag)
				}
			},
		})
	}
}

// memoryWatch evicts idle agents LRU-first when heap use crosses the
// configured soft cap.
func (a *App) memoryWatch(ctx context.Context) {
	interval := time.Duration(a.cfg.CleanupIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	limit := uint64(a.cfg.MaxMemoryMB) << 20
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			if ms.HeapAlloc <= limit {
				continue
			}
			active := int(a.devPool.Stats().ActiveCount)
			n := active / 10
			if n < 1 {
				n = 1
			}
			evicted := a.devPool.ShrinkLRU(n)
			a.logger.Warn("app: memory pressure eviction",
				"heap_alloc_mb", ms.HeapAlloc>>20,
				"limit_mb", a.cfg.MaxMemoryMB,
				"evicted", evicted,
			)
		}
	}
}

// profileRules converts config profile definitions into catalog rules.
func profileRules(defs []config.ProfileDef) ([]catalog.ProfileRule, error) {
	rules := make([]catalog.ProfileRule, 0, len(defs))
	for _, d := range defs {
		prefix, err := models.ParseOID(d.OIDPrefix)
		if err != nil {
			return nil, err
		}
		rules = append(rules, catalog.ProfileRule{
			Prefix:   prefix,
			Behavior: models.Behavior(d.Behavior),
			Params:   d.Params,
		})
	}
	return rules, nil
}

// notifyConfig resolves the trap sink address.
func notifyConfig(cfg *config.Config, logger *slog.Logger) notify.Config {
	out := notify.Config{Community: cfg.DefaultCommunity, Logger: logger}
	if cfg.TrapSink == "" {
		return out
	}
	host, portStr, err := net.SplitHostPort(cfg.TrapSink)
	if err != nil {
		logger.Warn("app: bad trap_sink address — notifier disabled",
			"trap_sink", cfg.TrapSink,
			"error", err.Error(),
		)
		return out
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		logger.Warn("app: bad trap_sink port — notifier disabled", "trap_sink", cfg.TrapSink)
		return out
	}
	out.SinkHost = host
	out.SinkPort = uint16(port)
	return out
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
