// Package supervisor owns the external RTC gateway process: spawn, liveness
// monitoring, crash detection and shutdown. Exactly one gateway runs per
// hosting instance; the supervisor also owns the instance's process lock.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"rtcbridge/internal/locks"
	"rtcbridge/internal/netwait"
	"rtcbridge/internal/ports"
	"rtcbridge/internal/relay"
	"rtcbridge/internal/reporting"
	"rtcbridge/pkg/logging"
)

const subsystem = "GatewaySupervisor"

// gatewayHost is where the supervised gateway binds its control endpoints.
const gatewayHost = "127.0.0.1"

// State represents the supervisor's view of the gateway process.
type State string

const (
	StateIdle     State = "Idle"
	StateStarting State = "Starting"
	StateRunning  State = "Running"
	StateStopping State = "Stopping"
	StateStopped  State = "Stopped"
	StateCrashed  State = "Crashed"
)

// SpawnError means the gateway executable could not be started. No lock was
// written and no process is running.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn gateway %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Options fixes the gateway invocation. StunServer and ConfigDir become the
// gateway's fixed command-line flags; LibraryPath, when set, is prepended to
// LD_LIBRARY_PATH in the child environment.
type Options struct {
	Executable  string
	LibraryPath string
	ConfigDir   string
	StunServer  string
}

// Mockable seams for tests.
var (
	execCommand       = exec.Command
	signalProcessFn   = func(pid int, sig syscall.Signal) error { return syscall.Kill(pid, sig) }
	waitUntilOpenFn   = netwait.WaitUntilOpen
	waitUntilClosedFn = netwait.WaitUntilClosed
)

// Wait bounds. Exceeding the startup ceiling is a fatal start failure;
// exceeding the reclaim ceiling is logged and start proceeds.
var (
	startupWaitCeiling = 30 * time.Second
	reclaimWaitCeiling = 10 * time.Second
	spawnSettleDelay   = 200 * time.Millisecond
)

// Supervisor drives the gateway process through its lifecycle. All exported
// methods are safe for concurrent use; the monitor goroutine is the only
// other writer of state.
type Supervisor struct {
	opts     Options
	store    locks.Store
	reporter reporting.Reporter

	// runID distinguishes this supervision run in logs and crash reports
	// when several instances share a machine.
	runID string

	mu                sync.Mutex
	state             State
	shutdownRequested bool
	cmd               *exec.Cmd
	link              *relay.Link
	assignment        ports.Assignment
}

// New creates an idle supervisor. Nothing is spawned until Start.
func New(opts Options, store locks.Store, reporter reporting.Reporter) *Supervisor {
	return &Supervisor{
		opts:     opts,
		store:    store,
		reporter: reporter,
		runID:    uuid.NewString(),
		state:    StateIdle,
	}
}

// GetState returns the current lifecycle state.
func (s *Supervisor) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunID returns the identifier tagged on this run's logs and crash reports.
func (s *Supervisor) RunID() string {
	return s.runID
}

// AttachRelay hands the supervisor the relay link to close during shutdown.
func (s *Supervisor) AttachRelay(link *relay.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link = link
}

// Start reclaims any prior holder of the assignment's base port, spawns the
// gateway bound to it, persists the process lock and blocks until the
// signaling control port accepts connections. A spawn failure returns a
// *SpawnError with no lock written; a readiness timeout kills the fresh
// process, removes its lock and returns the timeout, leaving state Stopped.
func (s *Supervisor) Start(assignment ports.Assignment) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateRunning, StateStopping:
		s.mu.Unlock()
		return fmt.Errorf("gateway already %s", s.state)
	}
	s.state = StateStarting
	s.shutdownRequested = false
	s.assignment = assignment
	s.mu.Unlock()

	logging.Info(subsystem, "Starting gateway run %s on ports %d/%d", s.runID, assignment.BasePort, assignment.ControlPort)

	// An orphaned gateway may still hold the port, e.g. when the previous
	// host process was killed -9. Reclaim before spawning fresh.
	s.reclaimLock(assignment.BasePort)

	cmd := execCommand(s.opts.Executable,
		fmt.Sprintf("--stun-server=%s", s.opts.StunServer),
		"--configs-folder", s.opts.ConfigDir,
	)
	cmd.Env = s.childEnv()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(StateIdle)
		return &SpawnError{Executable: s.opts.Executable, Err: err}
	}
	// StdoutPipe has installed the pipe's write end as cmd.Stdout; aliasing
	// it as Stderr gives one combined output stream.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		s.setState(StateIdle)
		return &SpawnError{Executable: s.opts.Executable, Err: err}
	}

	pid := cmd.Process.Pid
	if err := s.store.Write(assignment.BasePort, pid); err != nil {
		// The process is up but unaccounted for; stop it rather than leak.
		logging.Error(subsystem, err, "Could not persist process lock for pid %d, stopping gateway", pid)
		cmd.Process.Kill()
		cmd.Wait()
		s.setState(StateIdle)
		return fmt.Errorf("persisting process lock for port %d: %w", assignment.BasePort, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go s.monitor(cmd, stdout)

	// Give the gateway a moment to begin binding before polling.
	time.Sleep(spawnSettleDelay)

	if err := waitUntilOpenFn(gatewayHost, assignment.BasePort, startupWaitCeiling); err != nil {
		logging.Error(subsystem, err, "Gateway did not open port %d in time, stopping it", assignment.BasePort)
		s.mu.Lock()
		s.shutdownRequested = true // the coming stream closure is ours
		s.mu.Unlock()
		cmd.Process.Kill()
		if delErr := s.store.Delete(assignment.BasePort); delErr != nil {
			logging.Warn(subsystem, "Could not remove lock after failed start: %v", delErr)
		}
		s.setState(StateStopped)
		return fmt.Errorf("gateway startup on port %d: %w", assignment.BasePort, err)
	}

	s.setState(StateRunning)
	logging.Info(subsystem, "Gateway run %s is up (pid %d)", s.runID, pid)
	return nil
}

// Shutdown stops the gateway and releases its lock. Idempotent: safe to call
// repeatedly or before any Start; only the first effective call signals the
// process.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.shutdownRequested {
		s.mu.Unlock()
		return
	}
	// The flag must be set before the child is signaled so the monitor
	// classifies the resulting stream closure as Stopped, not Crashed.
	s.shutdownRequested = true
	link := s.link
	s.link = nil
	basePort := s.assignment.BasePort
	started := s.cmd != nil
	if started {
		s.state = StateStopping
	}
	s.mu.Unlock()

	if link != nil {
		link.Close()
	}

	if basePort != 0 {
		s.reclaimLock(basePort)
	}

	if started {
		s.setState(StateStopped)
	}
	logging.Info(subsystem, "Gateway run %s shut down", s.runID)
}

// childEnv builds the gateway environment, prepending the configured library
// path to LD_LIBRARY_PATH when one is supplied.
func (s *Supervisor) childEnv() []string {
	env := os.Environ()
	if s.opts.LibraryPath == "" {
		return env
	}
	ldPath := s.opts.LibraryPath
	if existing := os.Getenv("LD_LIBRARY_PATH"); existing != "" {
		ldPath = ldPath + ":" + existing
	}
	return append(env, "LD_LIBRARY_PATH="+ldPath)
}

// reclaimLock evicts whatever holds the lock at basePort: best-effort signal
// to the recorded pid, bounded wait for the port to stop accepting, then lock
// removal. Every failure here is logged and non-fatal; true collision defense
// is the allocator's probing, not this signal.
func (s *Supervisor) reclaimLock(basePort int) {
	if !s.store.Exists(basePort) {
		return
	}

	pid, err := s.store.Read(basePort)
	if err != nil {
		logging.Warn(subsystem, "Unreadable lock at port %d, removing: %v", basePort, err)
	} else {
		logging.Info(subsystem, "Reclaiming port %d from prior gateway pid %d", basePort, pid)
		if err := signalProcessFn(pid, syscall.SIGTERM); err != nil {
			logging.Warn(subsystem, "Could not signal prior gateway pid %d: %v", pid, err)
		} else if err := waitUntilClosedFn(gatewayHost, basePort, reclaimWaitCeiling); err != nil {
			logging.Warn(subsystem, "Port %d still accepting after signaling pid %d: %v", basePort, pid, err)
		}
	}

	if err := s.store.Delete(basePort); err != nil {
		logging.Warn(subsystem, "Could not delete lock at port %d: %v", basePort, err)
	}
}

// monitor is the per-process liveness task. Its only suspension point is the
// next-line read; on end of stream it reaps the exit status and classifies
// the termination by the shutdown flag.
func (s *Supervisor) monitor(cmd *exec.Cmd, output io.Reader) {
	scanner := bufio.NewScanner(output)
	for scanner.Scan() {
		logging.Debug("Gateway", "%s", scanner.Text())
	}

	err := cmd.Wait()

	s.mu.Lock()
	requested := s.shutdownRequested
	basePort := s.assignment.BasePort
	if requested {
		s.state = StateStopped
	} else {
		s.state = StateCrashed
	}
	s.mu.Unlock()

	if requested {
		logging.Info(subsystem, "Gateway exited after shutdown request (%v)", err)
		return
	}

	logging.Warn(subsystem, "Gateway quit unexpectedly: %v", err)
	s.reporter.Capture(reporting.Anomaly{
		Kind:   reporting.KindProcessCrash,
		Source: subsystem,
		Err:    fmt.Errorf("gateway quit unexpectedly: %w", exitCause(err)),
		Context: map[string]string{
			"runID":    s.runID,
			"basePort": fmt.Sprintf("%d", basePort),
		},
	})
	// No automatic restart: recovery policy belongs to the owner, which must
	// call Start again explicitly.
}

// exitCause normalizes a nil Wait result (clean exit code 0, still unexpected
// here) into a reportable error.
func exitCause(err error) error {
	if err == nil {
		return fmt.Errorf("exit status 0")
	}
	return err
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
