// Package control exposes the operational surface of the simulator: fault
// installation and clearing, reboots, per-device info, and aggregate stats.
// The Controller is the in-process API; Server speaks the same operations as
// newline-delimited JSON over a unix socket for external tooling.
package control

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/pool"
)

// IngressStats is the slice of the ingress consumed here, split out so tests
// can stub it.
type IngressStats interface {
	Stats() models.IngressStats
}

// Controller executes control operations against the device pool.
type Controller struct {
	pool    *pool.Pool
	ingress IngressStats
	logger  *slog.Logger
}

// New builds a Controller. ingress may be nil (stats then carry pool data
// only).
func New(p *pool.Pool, ingress IngressStats, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Controller{pool: p, ingress: ingress, logger: logger}
}

// InstallFault installs (or replaces) a fault on the agent at port, creating
// the agent if the port is valid but not yet live — faults can be staged
// before the first packet arrives.
func (c *Controller) InstallFault(port int, kind models.FaultKind, cfg models.FaultConfig) error {
	if !kind.Valid() {
		return errors.Errorf("control: unknown fault kind %q", kind)
	}
	a, err := c.pool.GetOrCreate(port)
	if err != nil {
		return errors.Wrapf(err, "control: install_fault port %d", port)
	}
	return a.InstallFault(kind, cfg)
}

// ClearFault removes one fault kind from the agent at port.
func (c *Controller) ClearFault(port int, kind models.FaultKind) error {
	a, ok := c.pool.Peek(port)
	if !ok {
		return errors.Errorf("control: no live agent on port %d", port)
	}
	return a.ClearFault(kind)
}

// ClearAllFaults empties the fault store of the agent at port.
func (c *Controller) ClearAllFaults(port int) error {
	a, ok := c.pool.Peek(port)
	if !ok {
		return errors.Errorf("control: no live agent on port %d", port)
	}
	return a.ClearAllFaults()
}

// Reboot performs an operational reboot of the agent at port.
func (c *Controller) Reboot(port int) error {
	a, err := c.pool.GetOrCreate(port)
	if err != nil {
		return errors.Wrapf(err, "control: reboot port %d", port)
	}
	return a.Reboot()
}

// GetInfo snapshots the agent at port.
func (c *Controller) GetInfo(port int) (models.DeviceInfo, error) {
	a, ok := c.pool.Peek(port)
	if !ok {
		return models.DeviceInfo{}, errors.Errorf("control: no live agent on port %d", port)
	}
	return a.Info()
}

// GetStats snapshots the pool and ingress counters.
func (c *Controller) GetStats() models.ServerStats {
	st := models.ServerStats{Pool: c.pool.Stats()}
	if c.ingress != nil {
		st.Ingress = c.ingress.Stats()
	}
	return st
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
