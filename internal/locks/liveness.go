package locks

import (
	"os"
	"syscall"
)

// Liveness answers whether a pid corresponds to a running process. The check
// is platform-dependent, so allocator and supervisor logic depend on this
// interface rather than on syscalls.
type Liveness interface {
	Alive(pid int) bool
}

// UnixLiveness probes liveness with signal 0, which performs permission and
// existence checks without delivering anything.
type UnixLiveness struct{}

// NewUnixLiveness creates the production liveness probe.
func NewUnixLiveness() *UnixLiveness {
	return &UnixLiveness{}
}

// Alive reports whether pid names a running process. EPERM still means the
// process exists, just under another user.
func (l *UnixLiveness) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
