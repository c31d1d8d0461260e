// Package agent implements the per-port simulated SNMP device: a state
// machine owning its counters, gauges, and fault store, fed by a bounded
// single-consumer mailbox so that at most one handler mutates agent state at
// a time. Across agents, handlers run in parallel.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/catalog"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/recovery"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/sim"
	"github.com/vpbank/snmp_simulator/snmp/codec"
)

// processStart anchors the monotonic clock all agents derive uptime from.
var processStart = time.Now()

// ─────────────────────────────────────────────────────────────────────────────
// Response
// ─────────────────────────────────────────────────────────────────────────────

// ResponseKind tells the ingress what to do with a handled request.
type ResponseKind int

const (
	// Reply sends Data immediately.
	Reply ResponseKind = iota
	// Drop sends nothing.
	Drop
	// DelayedReply sends Data after Delay. The agent lock is NOT held during
	// the delay — scheduling is the ingress's job.
	DelayedReply
	// ReplyMalformed sends Data, which is deliberately corrupt.
	ReplyMalformed
)

// Response is the agent's verdict on one request.
type Response struct {
	Kind  ResponseKind
	Delay time.Duration
	Data  []byte
}

// ─────────────────────────────────────────────────────────────────────────────
// Notifier
// ─────────────────────────────────────────────────────────────────────────────

// Notifier receives device lifecycle transitions (fault-driven DOWN/UP).
// Implementations must not block; the trap notifier queues internally.
type Notifier interface {
	AgentDown(port int, deviceType string)
	AgentUp(port int, deviceType string)
}

// NopNotifier ignores all transitions.
type NopNotifier struct{}

func (NopNotifier) AgentDown(int, string) {}
func (NopNotifier) AgentUp(int, string)   {}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config assembles an agent. Catalog and Simulator are shared across agents;
// everything else is per-port.
type Config struct {
	Port       int
	DeviceType string
	Community  string
	SysDescr   string // override; empty means the catalog's sysDescr entry

	Catalog   *catalog.Catalog
	Simulator *sim.Simulator
	Timers    *recovery.Timers
	Notifier  Notifier
	Logger    *slog.Logger

	// MTU caps encoded responses; larger GETBULK replies truncate, larger
	// GET replies become tooBig. Default 1400.
	MTU int
	// MailboxSize bounds pending requests per agent. Default 128.
	MailboxSize int
	// HandleTimeout abandons a handler invocation. Default 5 s.
	HandleTimeout time.Duration
	// OnExit fires when the agent terminates abnormally (panic in the run
	// loop). The pool uses it to clear the slot so the next packet recreates
	// the agent.
	OnExit func(port int)
}

func (c *Config) withDefaults() {
	if c.MTU <= 0 {
		c.MTU = 1400
	}
	if c.MTU > codec.MaxUDPPayload {
		c.MTU = codec.MaxUDPPayload
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 128
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 5 * time.Second
	}
	if c.Notifier == nil {
		c.Notifier = NopNotifier{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Agent
// ─────────────────────────────────────────────────────────────────────────────

// Agent states.
const (
	stateReady int32 = iota
	stateDown
	stateStopped
)

// Agent is one simulated device bound to one UDP port.
type Agent struct {
	cfg      Config
	deviceID string
	mac      string
	logger   *slog.Logger

	mailbox chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Atomics readable without the mailbox (hot path, pool eviction scan).
	uptimeStartNanos atomic.Int64 // nanoseconds since processStart
	lastAccessNanos  atomic.Int64
	requestsSeen     atomic.Int64
	state            atomic.Int32
	faultFree        atomic.Bool

	// Owned by the run loop — only mailbox closures touch these.
	st       *sim.DeviceState
	faults   map[models.FaultKind]models.FaultConfig
	downMode string
	downSeq  int // invalidates stale recovery timers
	rng      *rand.Rand
}

// New constructs and starts an agent. The returned agent is READY: its run
// loop is consuming the mailbox.
func New(cfg Config) *Agent {
	cfg.withDefaults()
	id := uuid.NewString()
	a := &Agent{
		cfg:      cfg,
		deviceID: id,
		mac:      macFromPort(cfg.Port),
		logger: cfg.Logger.With(
			"port", cfg.Port,
			"device_type", cfg.DeviceType,
		),
		mailbox: make(chan func(), cfg.MailboxSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		st:      sim.NewDeviceState(id),
		faults:  make(map[models.FaultKind]models.FaultConfig),
		rng:     rand.New(rand.NewSource(int64(cfg.Port)<<16 ^ time.Now().UnixNano())),
	}
	a.uptimeStartNanos.Store(int64(time.Since(processStart)))
	a.touch()
	a.faultFree.Store(true)
	go a.run()
	return a
}

// macFromPort derives a stable, locally administered MAC from the port.
func macFromPort(port int) string {
	return fmt.Sprintf("02:00:00:53:%02x:%02x", (port>>8)&0xFF, port&0xFF)
}

// run is the single consumer of the mailbox. A panic inside a handler kills
// only this agent; the pool's OnExit recreates it on the next packet.
func (a *Agent) run() {
	defer close(a.doneCh)
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent: handler panic — terminating agent", "panic", fmt.Sprint(r))
			a.state.Store(stateStopped)
			if a.cfg.OnExit != nil {
				a.cfg.OnExit(a.cfg.Port)
			}
		}
	}()

	for {
		select {
		case <-a.stopCh:
			return
		case task := <-a.mailbox:
			task()
		}
	}
}

// Stop terminates the agent after the in-flight handler finishes. Pending
// mailbox tasks are dropped. Safe to call more than once.
func (a *Agent) Stop() {
	if a.state.Swap(stateStopped) == stateStopped {
		return
	}
	close(a.stopCh)
	<-a.doneCh
}

// ─────────────────────────────────────────────────────────────────────────────
// Accessors used by the ingress and pool without serialization
// ─────────────────────────────────────────────────────────────────────────────

func (a *Agent) Port() int          { return a.cfg.Port }
func (a *Agent) DeviceType() string { return a.cfg.DeviceType }
func (a *Agent) DeviceID() string   { return a.deviceID }
func (a *Agent) Community() string  { return a.cfg.Community }

// LastAccess returns the time of the most recently handled request.
func (a *Agent) LastAccess() time.Time {
	return processStart.Add(time.Duration(a.lastAccessNanos.Load()))
}

func (a *Agent) touch() {
	a.lastAccessNanos.Store(int64(time.Since(processStart)))
}

func (a *Agent) uptime() time.Duration {
	return time.Since(processStart) - time.Duration(a.uptimeStartNanos.Load())
}

// UptimeTicks returns the agent uptime in centiseconds modulo 2^32.
func (a *Agent) UptimeTicks() uint32 {
	return uint32((a.uptime().Milliseconds() / 10) & 0xFFFFFFFF)
}

// ─────────────────────────────────────────────────────────────────────────────
// Request handling entry point
// ─────────────────────────────────────────────────────────────────────────────

// Handle delivers a decoded PDU to the agent and waits for its verdict.
// Requests are processed strictly one at a time in mailbox order. A full
// mailbox drops the request (bounded admission); a handler that exceeds
// HandleTimeout is abandoned and the client gets genErr.
func (a *Agent) Handle(ctx context.Context, msg *codec.Message) Response {
	if a.state.Load() == stateStopped {
		return Response{Kind: Drop}
	}

	respCh := make(chan Response, 1)
	task := func() { respCh <- a.process(msg) }

	select {
	case a.mailbox <- task:
	default:
		// Mailbox full: drop at admission, never deep in the pipeline.
		return Response{Kind: Drop}
	}

	timer := time.NewTimer(a.cfg.HandleTimeout)
	defer timer.Stop()
	select {
	case resp := <-respCh:
		return resp
	case <-timer.C:
		a.logger.Warn("agent: handler timeout — abandoning request", "request_id", msg.RequestID)
		return a.errorResponse(msg, codec.ErrGenErr)
	case <-ctx.Done():
		return Response{Kind: Drop}
	case <-a.stopCh:
		return Response{Kind: Drop}
	}
}

// HotReply answers a single-varbind sysDescr.0 / sysUpTime.0 GET from agent
// metadata only, bypassing the mailbox. It declines (ok=false) whenever any
// fault or DOWN state is active so the bypass never changes observable
// behavior.
func (a *Agent) HotReply(msg *codec.Message) ([]byte, bool) {
	if !a.faultFree.Load() || a.state.Load() != stateReady {
		return nil, false
	}
	if msg.PDUType != codec.GetRequest || len(msg.Varbinds) != 1 {
		return nil, false
	}

	var value models.TypedValue
	switch msg.Varbinds[0].OID.String() {
	case "1.3.6.1.2.1.1.1.0":
		descr, ok := a.sysDescr()
		if !ok {
			return nil, false
		}
		value = models.StringValue(descr)
	case "1.3.6.1.2.1.1.3.0":
		value = models.TimeTicksValue(a.UptimeTicks())
	default:
		return nil, false
	}

	resp := &codec.Message{
		Version:   msg.Version,
		Community: msg.Community,
		PDUType:   codec.GetResponse,
		RequestID: msg.RequestID,
		Varbinds:  []codec.Varbind{{OID: msg.Varbinds[0].OID, Value: value}},
	}
	data, err := codec.Encode(resp)
	if err != nil {
		return nil, false
	}
	a.touch()
	a.requestsSeen.Add(1)
	return data, true
}

// sysDescr resolves the device description: the per-type override first,
// then the catalog's static sysDescr.0 entry.
func (a *Agent) sysDescr() (string, bool) {
	if a.cfg.SysDescr != "" {
		return a.cfg.SysDescr, true
	}
	entry, status := a.cfg.Catalog.Get(models.MustParseOID("1.3.6.1.2.1.1.1.0"))
	if status != catalog.Found || entry.Behavior != models.BehaviorStatic ||
		entry.DeclaredType != models.KindOctetString {
		return "", false
	}
	return string(entry.Base.Bytes), true
}

// ─────────────────────────────────────────────────────────────────────────────
// Control operations (serialized through the mailbox)
// ─────────────────────────────────────────────────────────────────────────────

// errAgentBusy is returned when a control op cannot reach the run loop.
var errAgentBusy = fmt.Errorf("agent busy or stopped")

// submit runs fn on the run loop and waits for completion.
func (a *Agent) submit(fn func()) error {
	done := make(chan struct{})
	task := func() {
		fn()
		close(done)
	}
	select {
	case a.mailbox <- task:
	case <-a.stopCh:
		return errAgentBusy
	case <-time.After(a.cfg.HandleTimeout):
		return errAgentBusy
	}
	select {
	case <-done:
		return nil
	case <-a.stopCh:
		return errAgentBusy
	case <-time.After(a.cfg.HandleTimeout):
		return errAgentBusy
	}
}

// InstallFault installs or replaces the fault of the given kind.
func (a *Agent) InstallFault(kind models.FaultKind, cfg models.FaultConfig) error {
	if err := cfg.Validate(kind); err != nil {
		return err
	}
	return a.submit(func() {
		a.faults[kind] = cfg
		if kind == models.FaultDeviceFailure {
			a.enterDown(cfg)
		}
		a.refreshFaultFlag()
		a.logger.Info("agent: fault installed", "kind", string(kind))
	})
}

// ClearFault removes one fault kind. Clearing device_failure brings a DOWN
// agent back up.
func (a *Agent) ClearFault(kind models.FaultKind) error {
	return a.submit(func() {
		delete(a.faults, kind)
		if kind == models.FaultDeviceFailure && a.downMode != "" {
			a.leaveDown(models.RecoveryImmediate)
		}
		a.refreshFaultFlag()
		a.logger.Info("agent: fault cleared", "kind", string(kind))
	})
}

// ClearAllFaults empties the fault store and restores a DOWN agent.
func (a *Agent) ClearAllFaults() error {
	return a.submit(func() {
		a.faults = make(map[models.FaultKind]models.FaultConfig)
		if a.downMode != "" {
			a.leaveDown(models.RecoveryImmediate)
		}
		a.refreshFaultFlag()
		a.logger.Info("agent: all faults cleared")
	})
}

// Reboot resets uptime, counters, gauges, status vars, and active faults,
// then continues serving.
func (a *Agent) Reboot() error {
	return a.submit(func() {
		a.uptimeStartNanos.Store(int64(time.Since(processStart)))
		a.st.Reset()
		a.faults = make(map[models.FaultKind]models.FaultConfig)
		a.downMode = ""
		a.downSeq++
		a.state.Store(stateReady)
		a.refreshFaultFlag()
		a.logger.Info("agent: rebooted")
	})
}

// Info snapshots the agent for the control API.
func (a *Agent) Info() (models.DeviceInfo, error) {
	info := models.DeviceInfo{
		Port:          a.cfg.Port,
		DeviceType:    a.cfg.DeviceType,
		DeviceID:      a.deviceID,
		MAC:           a.mac,
		Community:     a.cfg.Community,
		UptimeSeconds: a.uptime().Seconds(),
		LastAccess:    a.LastAccess(),
		RequestsSeen:  a.requestsSeen.Load(),
	}
	err := a.submit(func() {
		if a.downMode != "" {
			info.State = "down"
		} else {
			info.State = "ready"
		}
		for kind := range a.faults {
			info.ActiveFaults = append(info.ActiveFaults, string(kind))
		}
		sort.Strings(info.ActiveFaults)
	})
	if err != nil {
		info.State = "unknown"
	}
	return info, err
}

// ─────────────────────────────────────────────────────────────────────────────
// DOWN state management (run-loop only)
// ─────────────────────────────────────────────────────────────────────────────

// enterDown switches the agent to DOWN per the device_failure config and, for
// finite failures, schedules the recovery message.
func (a *Agent) enterDown(cfg models.FaultConfig) {
	a.downMode = cfg.FailureType
	a.downSeq++
	seq := a.downSeq
	a.state.Store(stateDown)
	a.cfg.Notifier.AgentDown(a.cfg.Port, a.cfg.DeviceType)

	if cfg.FailureType == models.FailurePowerFailure {
		// Stays DOWN until cleared.
		return
	}
	d := time.Duration(cfg.DurationMs) * time.Millisecond
	recoveryPolicy := cfg.Recovery
	if a.cfg.Timers != nil {
		a.cfg.Timers.Schedule(d, func() {
			// Timer callbacks must not block; hand off to a goroutine that
			// goes through the mailbox. A reboot or clear in the meantime
			// invalidates this recovery via downSeq.
			go func() {
				_ = a.submit(func() {
					if a.downSeq != seq || a.downMode == "" {
						return
					}
					a.leaveDown(recoveryPolicy)
					delete(a.faults, models.FaultDeviceFailure)
					a.refreshFaultFlag()
				})
			}()
		})
	}
}

// leaveDown restores READY, applying the recovery policy.
func (a *Agent) leaveDown(policy string) {
	mode := a.downMode
	a.downMode = ""
	a.downSeq++
	a.state.Store(stateReady)

	switch policy {
	case models.RecoveryResetCounters:
		a.st.Reset()
	case models.RecoveryGradual:
		// Come back degraded; full health follows shortly.
		a.st.Health = 0.75
		a.st.ErrorRate = 0.2
		seq := a.downSeq
		if a.cfg.Timers != nil {
			a.cfg.Timers.Schedule(30*time.Second, func() {
				go func() {
					_ = a.submit(func() {
						if a.downSeq != seq {
							return
						}
						a.st.Health = 1.0
						a.st.ErrorRate = 0.0
					})
				}()
			})
		}
	}
	if mode == models.FailureReboot {
		// The simulated device rebooted: fresh uptime and counters.
		a.uptimeStartNanos.Store(int64(time.Since(processStart)))
		a.st.Reset()
	}
	a.cfg.Notifier.AgentUp(a.cfg.Port, a.cfg.DeviceType)
	a.logger.Info("agent: recovered", "failure_type", mode)
}

// refreshFaultFlag recomputes the hot-path eligibility bit.
func (a *Agent) refreshFaultFlag() {
	a.faultFree.Store(len(a.faults) == 0 && a.downMode == "")
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
