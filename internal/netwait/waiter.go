// Package netwait provides bounded blocking waits on TCP port state. The
// supervisor uses them to sequence spawn → relay connect (wait until the
// control port accepts) and reclaim → respawn (wait until the prior holder's
// port stops accepting).
package netwait

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrWaitTimeout is returned when a wait exceeds its ceiling. The port never
// reached the desired state; nothing was changed.
var ErrWaitTimeout = errors.New("netwait: ceiling exceeded")

const (
	pollInterval = 200 * time.Millisecond
	dialTimeout  = 1 * time.Second
)

// probeFn allows mocking the TCP probe in tests.
var probeFn = isPortOpen

// isPortOpen reports whether host:port currently accepts TCP connections.
// Any dial failure, including transient unreachability, counts as closed.
func isPortOpen(host string, port int) bool {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitUntilOpen blocks until host:port accepts TCP connections, polling at a
// fixed interval. It returns ErrWaitTimeout (wrapped with the endpoint) if the
// port is still closed when ceiling elapses.
func WaitUntilOpen(host string, port int, ceiling time.Duration) error {
	deadline := time.Now().Add(ceiling)
	for {
		if probeFn(host, port) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("waiting for %s:%d to open: %w", host, port, ErrWaitTimeout)
		}
		time.Sleep(pollInterval)
	}
}

// WaitUntilClosed blocks until host:port stops accepting TCP connections. It
// returns ErrWaitTimeout (wrapped) if the port still accepts when ceiling
// elapses.
func WaitUntilClosed(host string, port int, ceiling time.Duration) error {
	deadline := time.Now().Add(ceiling)
	for {
		if !probeFn(host, port) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("waiting for %s:%d to close: %w", host, port, ErrWaitTimeout)
		}
		time.Sleep(pollInterval)
	}
}
