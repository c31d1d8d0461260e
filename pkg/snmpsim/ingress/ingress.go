// Package ingress owns the UDP surface: one socket per agent port (plus
// optional reuse-port parallel queues on a front endpoint), a bounded
// decode-worker pool, community validation, dispatch to agents through the
// device pool, and backpressure with drop-at-admission hysteresis.
//
// Request path:
//
//	UDP datagram → reader goroutine → [hot path?] → bounded job queue →
//	decode worker → pool lookup → community check → agent.Handle →
//	encode/send (or drop/delay/send-malformed per the agent's Response)
package ingress

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/agent"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/pool"
	"github.com/vpbank/snmp_simulator/snmp/codec"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the ingress behaviour.
type Config struct {
	// Host is the bind address (default "0.0.0.0").
	Host string

	// Ports are the UDP ports to serve; normally every port covered by the
	// pool's rules.
	Ports []int

	// FrontPort, when non-zero, additionally binds SocketCount reuse-port
	// sockets on this port so parallel kernel queues feed the decoders.
	// Per-agent ports always get exactly one socket.
	FrontPort   int
	SocketCount int

	// WorkerPoolSize is the number of decode workers (default 16).
	WorkerPoolSize int

	// QueueSize bounds the pending-work queue (default 10000). Above
	// HighWatermark×QueueSize new packets drop; admission resumes below
	// LowWatermark×QueueSize. Hysteresis prevents flapping.
	QueueSize     int
	HighWatermark float64
	LowWatermark  float64

	// EnableHotPath answers single-varbind sysDescr.0 / sysUpTime.0 GETs
	// inline in the reader, bypassing the worker queue (default on via
	// config; observable behavior is unchanged).
	EnableHotPath bool

	Pool   *pool.Pool
	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 16
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10_000
	}
	if c.HighWatermark <= 0 || c.HighWatermark > 1 {
		c.HighWatermark = 0.9
	}
	if c.LowWatermark <= 0 || c.LowWatermark >= c.HighWatermark {
		c.LowWatermark = 0.5
	}
	if c.SocketCount <= 0 {
		c.SocketCount = 4
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Ingress
// ─────────────────────────────────────────────────────────────────────────────

// job is one received datagram awaiting a decode worker.
type job struct {
	data []byte
	addr net.Addr
	conn net.PacketConn
	port int
}

// Ingress is the UDP front end.
type Ingress struct {
	cfg    Config
	logger *slog.Logger

	conns []net.PacketConn
	jobs  chan job

	admitting atomic.Bool

	requests     atomic.Int64
	responses    atomic.Int64
	decodeErrors atomic.Int64
	authFailures atomic.Int64
	bpDrops      atomic.Int64
	unknownPort  atomic.Int64
	hotHits      atomic.Int64

	cancel   context.CancelFunc
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates an Ingress. Call Start to bind sockets and begin serving.
func New(cfg Config) *Ingress {
	cfg.withDefaults()
	in := &Ingress{
		cfg:    cfg,
		logger: cfg.Logger,
		jobs:   make(chan job, cfg.QueueSize),
	}
	in.admitting.Store(true)
	return in
}

// Start binds every configured port and launches readers and workers. It
// fails fast if any port cannot be bound.
func (in *Ingress) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		return fmt.Errorf("ingress: already running")
	}
	in.running = true
	in.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	in.cancel = cancel

	lc := net.ListenConfig{Control: reuseControl}
	bind := func(port int) error {
		conn, err := lc.ListenPacket(runCtx, "udp", fmt.Sprintf("%s:%d", in.cfg.Host, port))
		if err != nil {
			return fmt.Errorf("ingress: bind %s:%d: %w", in.cfg.Host, port, err)
		}
		in.conns = append(in.conns, conn)
		in.readerWg.Add(1)
		go in.readLoop(conn, port)
		return nil
	}

	for _, port := range in.cfg.Ports {
		if err := bind(port); err != nil {
			in.closeConns()
			return err
		}
	}
	if in.cfg.FrontPort > 0 {
		for i := 0; i < in.cfg.SocketCount; i++ {
			if err := bind(in.cfg.FrontPort); err != nil {
				in.closeConns()
				return err
			}
		}
	}

	for i := 0; i < in.cfg.WorkerPoolSize; i++ {
		in.workerWg.Add(1)
		go in.worker(runCtx)
	}

	in.logger.Info("ingress: serving",
		"ports", len(in.cfg.Ports),
		"front_port", in.cfg.FrontPort,
		"workers", in.cfg.WorkerPoolSize,
		"queue", in.cfg.QueueSize,
	)
	return nil
}

// Stop closes every socket and drains the workers. Delayed sends still
// pending fire into closed sockets and are discarded. Safe to call after
// Start, including after a failed Start.
func (in *Ingress) Stop() {
	in.mu.Lock()
	if !in.running {
		in.mu.Unlock()
		return
	}
	in.running = false
	in.mu.Unlock()

	in.cancel()
	in.closeConns()
	in.readerWg.Wait()
	close(in.jobs)
	in.workerWg.Wait()
	in.logger.Info("ingress: stopped")
}

func (in *Ingress) closeConns() {
	for _, c := range in.conns {
		_ = c.Close()
	}
}

// Stats snapshots the ingress counters.
func (in *Ingress) Stats() models.IngressStats {
	return models.IngressStats{
		RequestsTotal:       in.requests.Load(),
		ResponsesTotal:      in.responses.Load(),
		DecodeErrors:        in.decodeErrors.Load(),
		AuthFailures:        in.authFailures.Load(),
		DroppedBackpressure: in.bpDrops.Load(),
		UnknownPortDrops:    in.unknownPort.Load(),
		HotPathHits:         in.hotHits.Load(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reader
// ─────────────────────────────────────────────────────────────────────────────

// readLoop receives datagrams on one socket. Hot-path candidates answer
// inline; everything else passes through the bounded queue.
func (in *Ingress) readLoop(conn net.PacketConn, port int) {
	defer in.readerWg.Done()
	buf := make([]byte, 65535)

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Socket closed during shutdown, or a transient error.
			return
		}
		in.requests.Add(1)

		data := make([]byte, n)
		copy(data, buf[:n])

		if in.cfg.EnableHotPath && n < 90 && in.tryHotPath(data, addr, conn, port) {
			in.hotHits.Add(1)
			continue
		}

		if !in.admit() {
			in.bpDrops.Add(1)
			continue
		}
		select {
		case in.jobs <- job{data: data, addr: addr, conn: conn, port: port}:
		default:
			in.bpDrops.Add(1)
		}
	}
}

// admit applies the high/low watermark hysteresis on queue occupancy.
func (in *Ingress) admit() bool {
	occupancy := len(in.jobs)
	capacity := cap(in.jobs)
	if in.admitting.Load() {
		if float64(occupancy) >= in.cfg.HighWatermark*float64(capacity) {
			in.admitting.Store(false)
			in.logger.Warn("ingress: backpressure engaged", "occupancy", occupancy)
			return false
		}
		return true
	}
	if float64(occupancy) <= in.cfg.LowWatermark*float64(capacity) {
		in.admitting.Store(true)
		in.logger.Info("ingress: backpressure released", "occupancy", occupancy)
		return true
	}
	return false
}

// tryHotPath answers sysDescr.0 / sysUpTime.0 single-varbind GETs from agent
// metadata without touching the worker queue. It declines unless the agent
// already exists, is fault-free, and the community matches — so behavior is
// indistinguishable from the slow path.
func (in *Ingress) tryHotPath(data []byte, addr net.Addr, conn net.PacketConn, port int) bool {
	msg, err := codec.Decode(data)
	if err != nil {
		return false // the worker path owns decode-error accounting
	}
	a, ok := in.cfg.Pool.Peek(port)
	if !ok {
		return false
	}
	if !bytes.Equal(msg.Community, []byte(a.Community())) {
		return false
	}
	reply, ok := a.HotReply(msg)
	if !ok {
		return false
	}
	if _, err := conn.WriteTo(reply, addr); err == nil {
		in.responses.Add(1)
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Workers
// ─────────────────────────────────────────────────────────────────────────────

// worker decodes, validates, and dispatches jobs until the queue closes.
func (in *Ingress) worker(ctx context.Context) {
	defer in.workerWg.Done()
	for j := range in.jobs {
		in.handle(ctx, j)
	}
}

// handle is the per-datagram slow path.
func (in *Ingress) handle(ctx context.Context, j job) {
	msg, err := codec.Decode(j.data)
	if err != nil {
		in.decodeErrors.Add(1)
		return
	}

	a, err := in.cfg.Pool.GetOrCreate(j.port)
	if err != nil {
		switch err {
		case pool.ErrUnknownPortRange:
			in.unknownPort.Add(1)
		case pool.ErrCapacityExceeded:
			// The pool counts capacity drops; nothing is sent back — no
			// agent exists to answer.
		}
		return
	}

	// Community strings compare byte-exact; mismatch is a silent drop.
	if !bytes.Equal(msg.Community, []byte(a.Community())) {
		in.authFailures.Add(1)
		return
	}

	resp := a.Handle(ctx, msg)
	switch resp.Kind {
	case agent.Reply, agent.ReplyMalformed:
		in.send(j.conn, j.addr, resp.Data)
	case agent.DelayedReply:
		in.sendLater(ctx, j.conn, j.addr, resp.Data, resp.Delay)
	case agent.Drop:
	}
}

func (in *Ingress) send(conn net.PacketConn, addr net.Addr, data []byte) {
	if len(data) == 0 {
		return
	}
	if _, err := conn.WriteTo(data, addr); err != nil {
		in.logger.Debug("ingress: send failed", "remote", addr.String(), "error", err.Error())
		return
	}
	in.responses.Add(1)
}

// sendLater schedules a delayed transmission without holding any agent or
// worker resource across the sleep. A send that fires after shutdown hits a
// closed socket and is silently discarded.
func (in *Ingress) sendLater(ctx context.Context, conn net.PacketConn, addr net.Addr, data []byte, d time.Duration) {
	time.AfterFunc(d, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		in.send(conn, addr, data)
	})
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
