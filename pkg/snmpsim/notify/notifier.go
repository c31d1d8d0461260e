// Package notify emits SNMPv2c notifications when simulated devices change
// lifecycle state: a fault-driven outage sends linkDown-style traps to the
// configured sink, recovery sends linkUp. Monitoring stacks under load test
// see the same asynchronous signal a real outage produces.
//
// The notifier is fire-and-forget: agents report transitions into a bounded
// queue and continue immediately; a single sender goroutine drains the queue
// over one gosnmp session.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Well-known notification OIDs.
const (
	oidSysUpTime   = ".1.3.6.1.2.1.1.3.0"
	oidSnmpTrapOID = ".1.3.6.1.6.3.1.1.4.1.0"
	oidLinkDown    = ".1.3.6.1.6.3.1.1.5.3"
	oidLinkUp      = ".1.3.6.1.6.3.1.1.5.4"
	oidIfIndex     = ".1.3.6.1.2.1.2.2.1.1"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the trap notifier.
type Config struct {
	// SinkHost and SinkPort address the trap receiver. An empty SinkHost
	// disables the notifier entirely.
	SinkHost string
	SinkPort uint16

	// Community for outgoing notifications (default "public").
	Community string

	// QueueSize bounds pending notifications (default 1024). On overflow the
	// new event is discarded with a warning.
	QueueSize int

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Community == "" {
		c.Community = "public"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Notifier
// ─────────────────────────────────────────────────────────────────────────────

// event is one queued lifecycle transition.
type event struct {
	port       int
	deviceType string
	up         bool
	at         time.Time
}

// Notifier sends linkDown/linkUp notifications for agent state transitions.
// It satisfies the agent.Notifier interface.
type Notifier struct {
	cfg    Config
	logger *slog.Logger

	events chan event

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Notifier. Call Start to open the gosnmp session and begin
// draining; before Start (or with an empty sink) transitions are discarded.
func New(cfg Config) *Notifier {
	cfg.withDefaults()
	return &Notifier{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan event, cfg.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Enabled reports whether a sink is configured.
func (n *Notifier) Enabled() bool { return n.cfg.SinkHost != "" }

// AgentDown implements agent.Notifier. It never blocks.
func (n *Notifier) AgentDown(port int, deviceType string) {
	n.enqueue(event{port: port, deviceType: deviceType, up: false, at: time.Now()})
}

// AgentUp implements agent.Notifier. It never blocks.
func (n *Notifier) AgentUp(port int, deviceType string) {
	n.enqueue(event{port: port, deviceType: deviceType, up: true, at: time.Now()})
}

func (n *Notifier) enqueue(ev event) {
	if !n.Enabled() {
		return
	}
	select {
	case n.events <- ev:
	default:
		n.logger.Warn("notify: queue full — notification dropped",
			"port", ev.port,
			"up", ev.up,
		)
	}
}

// Start opens the sender session and launches the drain goroutine. A
// disabled notifier starts successfully and does nothing.
func (n *Notifier) Start(ctx context.Context) error {
	if !n.Enabled() {
		return nil
	}
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = true
	n.mu.Unlock()

	sender := &gosnmp.GoSNMP{
		Target:    n.cfg.SinkHost,
		Port:      n.cfg.SinkPort,
		Community: n.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   0,
	}
	if err := sender.Connect(); err != nil {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return err
	}

	go func() {
		defer close(n.doneCh)
		defer func() { _ = sender.Conn.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-n.stopCh:
				return
			case ev := <-n.events:
				n.send(sender, ev)
			}
		}
	}()

	n.logger.Info("notify: sending lifecycle traps",
		"sink", n.cfg.SinkHost,
		"sink_port", n.cfg.SinkPort,
	)
	return nil
}

// Stop terminates the drain goroutine. Pending notifications are discarded.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()
	close(n.stopCh)
	<-n.doneCh
}

// send builds and transmits one v2c notification: the standard sysUpTime.0 +
// snmpTrapOID.0 preamble, then ifIndex tagged with the agent's port so the
// receiver can tell simulated devices apart.
func (n *Notifier) send(sender *gosnmp.GoSNMP, ev event) {
	trapOID := oidLinkDown
	if ev.up {
		trapOID = oidLinkUp
	}
	trap := gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			{Name: oidSysUpTime, Type: gosnmp.TimeTicks, Value: uint32(time.Since(ev.at).Milliseconds() / 10)},
			{Name: oidSnmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: trapOID},
			{Name: oidIfIndex, Type: gosnmp.Integer, Value: ev.port},
		},
	}
	if _, err := sender.SendTrap(trap); err != nil {
		n.logger.Warn("notify: trap send failed",
			"port", ev.port,
			"up", ev.up,
			"error", err.Error(),
		)
		return
	}
	n.logger.Debug("notify: trap sent", "port", ev.port, "trap_oid", trapOID)
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
