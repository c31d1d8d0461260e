// Package pool owns the port→agent map: lazy creation on first packet,
// idle eviction, a global device cap, and death handling. Creation is
// synchronized per port with a pending marker so N concurrent first-packets
// to one port yield exactly one agent.
package pool

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/agent"
)

// Sentinel errors surfaced to the ingress.
var (
	// ErrUnknownPortRange means no configured rule covers the port; the
	// packet is not served.
	ErrUnknownPortRange = errors.New("port outside configured ranges")
	// ErrCapacityExceeded means max_devices live agents already exist.
	ErrCapacityExceeded = errors.New("device capacity exceeded")
	// ErrPoolClosed means the pool is shutting down.
	ErrPoolClosed = errors.New("pool closed")
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Rule maps an inclusive port range to a device type. Ranges must not
// overlap; New rejects configurations where a port matches two rules.
type Rule struct {
	DeviceType string
	Start, End int
}

// Factory creates the agent for a port once the pool has debited capacity.
type Factory func(port int, rule Rule) *agent.Agent

// Config assembles a pool.
type Config struct {
	Rules      []Rule
	MaxDevices int
	// IdleTimeout evicts agents with no handled request for this long.
	// Default 30 min.
	IdleTimeout time.Duration
	// CleanupInterval is the idle scanner period. Default 60 s.
	CleanupInterval time.Duration
	Factory         Factory
	Logger          *slog.Logger
}

func (c *Config) withDefaults() {
	if c.MaxDevices <= 0 {
		c.MaxDevices = 10_000
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pool
// ─────────────────────────────────────────────────────────────────────────────

// slot is the pending-or-ready marker published under the pool lock. Waiters
// block on ready; the creator fills agent or err before closing it.
type slot struct {
	ready chan struct{}
	agent *agent.Agent
	err   error
}

// Pool is the lazy device pool.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	slots   map[int]*slot
	closed  bool
	started bool

	active  atomic.Int64
	created atomic.Int64
	evicted atomic.Int64
	peak    atomic.Int64
	capDrop atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New validates the rules and builds a pool. The idle scanner does not start
// until Start is called.
func New(cfg Config) (*Pool, error) {
	cfg.withDefaults()
	if cfg.Factory == nil {
		return nil, errors.New("pool: factory is required")
	}
	for i, r := range cfg.Rules {
		if r.Start > r.End {
			return nil, errors.Errorf("pool: rule %d (%s): start %d > end %d", i, r.DeviceType, r.Start, r.End)
		}
		for j := 0; j < i; j++ {
			prev := cfg.Rules[j]
			if r.Start <= prev.End && prev.Start <= r.End {
				return nil, errors.Errorf(
					"pool: rules %q [%d,%d] and %q [%d,%d] overlap",
					prev.DeviceType, prev.Start, prev.End, r.DeviceType, r.Start, r.End,
				)
			}
		}
	}
	return &Pool{
		cfg:    cfg,
		logger: cfg.Logger,
		slots:  make(map[int]*slot),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the idle-eviction scanner. It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.evictIdle()
			}
		}
	}()
}

// ruleFor finds the rule covering port; a port matches at most one rule.
func (p *Pool) ruleFor(port int) (Rule, bool) {
	for _, r := range p.cfg.Rules {
		if port >= r.Start && port <= r.End {
			return r, true
		}
	}
	return Rule{}, false
}

// GetOrCreate returns the agent for port, creating it on first use.
// Concurrent callers for the same port block on the pending marker and all
// receive the same agent. Creation under an exhausted cap fails without
// blocking other creators.
func (p *Pool) GetOrCreate(port int) (*agent.Agent, error) {
	rule, ok := p.ruleFor(port)
	if !ok {
		return nil, ErrUnknownPortRange
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if s, exists := p.slots[port]; exists {
		p.mu.Unlock()
		<-s.ready
		if s.err != nil {
			return nil, s.err
		}
		return s.agent, nil
	}

	// Debit the device counter under the lock; publish a pending marker and
	// create outside it so slow factories never serialize the whole pool.
	if p.active.Load() >= int64(p.cfg.MaxDevices) {
		p.mu.Unlock()
		p.capDrop.Add(1)
		return nil, ErrCapacityExceeded
	}
	s := &slot{ready: make(chan struct{})}
	p.slots[port] = s
	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	p.mu.Unlock()

	a := p.cfg.Factory(port, rule)
	if a == nil {
		s.err = errors.Errorf("pool: factory returned no agent for port %d", port)
		close(s.ready)
		p.removeSlot(port, s)
		return nil, s.err
	}
	s.agent = a
	close(s.ready)
	p.created.Add(1)
	p.logger.Debug("pool: agent created", "port", port, "device_type", rule.DeviceType)
	return a, nil
}

// Peek returns the live agent for port without creating one. Used by the
// ingress hot path.
func (p *Pool) Peek(port int) (*agent.Agent, bool) {
	p.mu.Lock()
	s, exists := p.slots[port]
	p.mu.Unlock()
	if !exists {
		return nil, false
	}
	select {
	case <-s.ready:
	default:
		return nil, false
	}
	if s.err != nil || s.agent == nil {
		return nil, false
	}
	return s.agent, true
}

// Remove clears a dead agent's slot so the next packet recreates it. The
// agent is identified, not just the port, to avoid removing a successor.
func (p *Pool) Remove(port int, a *agent.Agent) {
	p.mu.Lock()
	s, exists := p.slots[port]
	if !exists || s.agent != a {
		p.mu.Unlock()
		return
	}
	delete(p.slots, port)
	p.active.Add(-1)
	p.mu.Unlock()
	p.evicted.Add(1)
	p.logger.Warn("pool: agent removed after abnormal exit", "port", port)
}

// removeSlot drops a slot that never produced an agent.
func (p *Pool) removeSlot(port int, s *slot) {
	p.mu.Lock()
	if cur, exists := p.slots[port]; exists && cur == s {
		delete(p.slots, port)
		p.active.Add(-1)
	}
	p.mu.Unlock()
}

// evictIdle scans for agents idle past the timeout and shuts them down.
// In-flight requests either finish before the scan observes the agent or
// find the slot empty and recreate.
func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var victims []*agent.Agent
	for port, s := range p.slots {
		select {
		case <-s.ready:
		default:
			continue // still creating
		}
		if s.agent == nil {
			continue
		}
		if s.agent.LastAccess().Before(cutoff) {
			delete(p.slots, port)
			p.active.Add(-1)
			victims = append(victims, s.agent)
		}
	}
	p.mu.Unlock()

	for _, a := range victims {
		a.Stop()
		p.evicted.Add(1)
		p.logger.Info("pool: agent evicted idle", "port", a.Port())
	}
}

// ShrinkLRU evicts up to n agents, least recently accessed first. The app
// calls this under memory pressure. Returns the number evicted.
func (p *Pool) ShrinkLRU(n int) int {
	if n <= 0 {
		return 0
	}

	type candidate struct {
		port int
		a    *agent.Agent
	}
	p.mu.Lock()
	candidates := make([]candidate, 0, len(p.slots))
	for port, s := range p.slots {
		select {
		case <-s.ready:
		default:
			continue
		}
		if s.agent != nil {
			candidates = append(candidates, candidate{port: port, a: s.agent})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].a.LastAccess().Before(candidates[j].a.LastAccess())
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	victims := make([]*agent.Agent, 0, n)
	for _, c := range candidates[:n] {
		delete(p.slots, c.port)
		p.active.Add(-1)
		victims = append(victims, c.a)
	}
	p.mu.Unlock()

	for _, a := range victims {
		a.Stop()
		p.evicted.Add(1)
	}
	if len(victims) > 0 {
		p.logger.Info("pool: LRU shrink", "evicted", len(victims))
	}
	return len(victims)
}

// Ports snapshots the live ports (for the control API).
func (p *Pool) Ports() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.slots))
	for port := range p.slots {
		out = append(out, port)
	}
	return out
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() models.PoolStats {
	return models.PoolStats{
		ActiveCount:   p.active.Load(),
		CreatedTotal:  p.created.Load(),
		EvictedTotal:  p.evicted.Load(),
		PeakCount:     p.peak.Load(),
		MaxDevices:    int64(p.cfg.MaxDevices),
		CapacityDrops: p.capDrop.Load(),
	}
}

// Close stops the scanner and shuts every agent down. Pending requests on
// those agents drop.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	slots := make([]*slot, 0, len(p.slots))
	for _, s := range p.slots {
		slots = append(slots, s)
	}
	p.slots = make(map[int]*slot)
	p.active.Store(0)
	p.mu.Unlock()

	close(p.stopCh)
	if started {
		<-p.doneCh
	}

	for _, s := range slots {
		select {
		case <-s.ready:
			if s.agent != nil {
				s.agent.Stop()
			}
		default:
		}
	}
	p.logger.Info("pool: closed", "agents_stopped", len(slots))
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
