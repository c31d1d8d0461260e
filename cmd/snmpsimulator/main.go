// Command snmpsimulator runs the SNMP agent population simulator.
//
// It loads a YAML configuration describing device types, walk files, and
// port ranges, binds one UDP socket per simulated agent port, and answers
// GET / GETNEXT / GETBULK from real management tools until interrupted
// (SIGINT / SIGTERM). Fault injection and operational control are available
// over the configured unix control socket.
//
// Usage:
//
//	snmpsimulator -config snmpsim.yaml [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vpbank/snmp_simulator/pkg/snmpsim/app"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snmpsimulator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		cfgPath  string
		logLevel string
		logFmt   string

		host          string
		maxDevices    int
		workers       int
		queueSize     int
		controlSocket string
		trapSink      string
	)

	flag.StringVar(&cfgPath, "config", "snmpsim.yaml", "Path to the simulator configuration file")
	flag.StringVar(&logLevel, "log.level", "", "Log level override: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "", "Log format override: json, text")
	flag.StringVar(&host, "listen.host", "", "Bind address override")
	flag.IntVar(&maxDevices, "devices.max", 0, "Override max_devices")
	flag.IntVar(&workers, "ingress.workers", 0, "Override worker_pool_size")
	flag.IntVar(&queueSize, "ingress.queue.size", 0, "Override packet_queue_size")
	flag.StringVar(&controlSocket, "control.socket", "", "Override control_socket path")
	flag.StringVar(&trapSink, "trap.sink", "", "Override trap_sink address (host:port)")
	flag.Parse()

	// ── Config ───────────────────────────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, host, maxDevices, workers, queueSize, controlSocket, trapSink, logLevel, logFmt)

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// ── Run ──────────────────────────────────────────────────────────────
	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("snmpsimulator: running — press Ctrl-C to stop")

	<-ctx.Done()
	logger.Info("snmpsimulator: received shutdown signal")

	application.Stop()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func applyOverrides(cfg *config.Config, host string, maxDevices, workers, queueSize int, controlSocket, trapSink, logLevel, logFmt string) {
	if host != "" {
		cfg.Host = host
	}
	if maxDevices > 0 {
		cfg.MaxDevices = maxDevices
	}
	if workers > 0 {
		cfg.WorkerPoolSize = workers
	}
	if queueSize > 0 {
		cfg.PacketQueueSize = queueSize
	}
	if controlSocket != "" {
		cfg.ControlSocket = controlSocket
	}
	if trapSink != "" {
		cfg.TrapSink = trapSink
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFmt != "" {
		cfg.LogFormat = logFmt
	}
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
