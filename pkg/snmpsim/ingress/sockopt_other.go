//go:build !(linux || darwin || freebsd)

package ingress

import "syscall"

// reuseControl is a no-op where SO_REUSEPORT is unavailable; the ingress
// falls back to one kernel queue per port.
func reuseControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
