package control

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/vpbank/snmp_simulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Wire format
// ─────────────────────────────────────────────────────────────────────────────

// Request is one newline-delimited JSON control message.
type Request struct {
	Op     string             `json:"op"`
	Port   int                `json:"port,omitempty"`
	Kind   string             `json:"kind,omitempty"`
	Config models.FaultConfig `json:"config,omitempty"`
}

// Response mirrors a Request outcome. Exactly one of Info/Stats is populated
// for the query operations.
type Response struct {
	OK    bool                `json:"ok"`
	Error string              `json:"error,omitempty"`
	Info  *models.DeviceInfo  `json:"info,omitempty"`
	Stats *models.ServerStats `json:"stats,omitempty"`
}

// Operation names.
const (
	OpInstallFault   = "install_fault"
	OpClearFault     = "clear_fault"
	OpClearAllFaults = "clear_all_faults"
	OpReboot         = "reboot"
	OpGetInfo        = "get_info"
	OpGetStats       = "get_stats"
)

// ─────────────────────────────────────────────────────────────────────────────
// Server
// ─────────────────────────────────────────────────────────────────────────────

// Server serves the control protocol on a unix socket. One line in, one line
// out; malformed lines answer with ok=false and the connection stays open.
type Server struct {
	ctrl       *Controller
	socketPath string
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  bool
}

// NewServer builds a Server bound to socketPath on Start.
func NewServer(ctrl *Controller, socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Server{
		ctrl:       ctrl,
		socketPath: socketPath,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and accepts connections until Stop or ctx
// cancellation. A stale socket file from a dead process is removed first.
func (s *Server) Start(ctx context.Context) error {
	_ = os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.running = true
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return // listener closed
			}
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				_ = conn.Close()
				return
			}
			s.conns[conn] = struct{}{}
			s.mu.Unlock()
			go s.serve(conn)
		}
	}()

	s.logger.Info("control: listening", "socket", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	_ = os.Remove(s.socketPath)
	s.logger.Info("control: stopped")
}

// serve handles one connection for its lifetime.
func (s *Server) serve(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = Response{Error: "malformed request: " + err.Error()}
		} else {
			resp = s.dispatch(req)
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

// dispatch maps one request onto the Controller.
func (s *Server) dispatch(req Request) Response {
	fail := func(err error) Response { return Response{Error: err.Error()} }

	switch req.Op {
	case OpInstallFault:
		if err := s.ctrl.InstallFault(req.Port, models.FaultKind(req.Kind), req.Config); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	case OpClearFault:
		if err := s.ctrl.ClearFault(req.Port, models.FaultKind(req.Kind)); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	case OpClearAllFaults:
		if err := s.ctrl.ClearAllFaults(req.Port); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	case OpReboot:
		if err := s.ctrl.Reboot(req.Port); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	case OpGetInfo:
		info, err := s.ctrl.GetInfo(req.Port)
		if err != nil {
			return fail(err)
		}
		return Response{OK: true, Info: &info}
	case OpGetStats:
		stats := s.ctrl.GetStats()
		return Response{OK: true, Stats: &stats}
	default:
		return Response{Error: "unknown op " + req.Op}
	}
}
