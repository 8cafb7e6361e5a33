package supervisor

import (
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcbridge/internal/locks"
	"rtcbridge/internal/netwait"
	"rtcbridge/internal/ports"
	"rtcbridge/internal/reporting"
)

// fakeReporter records captured anomalies for assertions.
type fakeReporter struct {
	mu        sync.Mutex
	anomalies []reporting.Anomaly
}

func (r *fakeReporter) Capture(anomaly reporting.Anomaly) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies = append(r.anomalies, anomaly)
}

func (r *fakeReporter) captured() []reporting.Anomaly {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reporting.Anomaly(nil), r.anomalies...)
}

type signalCall struct {
	pid int
	sig syscall.Signal
}

// seams stubs out the supervisor's process and port seams so tests never
// signal real pids or wait on real ports. The spawned "gateway" is a shell
// script.
type seams struct {
	mu      sync.Mutex
	signals []signalCall
}

func (s *seams) signalCalls() []signalCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signalCall(nil), s.signals...)
}

func stubSeams(t *testing.T, script string) *seams {
	t.Helper()
	st := &seams{}

	origExec := execCommand
	origSignal := signalProcessFn
	origOpen := waitUntilOpenFn
	origClosed := waitUntilClosedFn
	origSettle := spawnSettleDelay
	t.Cleanup(func() {
		execCommand = origExec
		signalProcessFn = origSignal
		waitUntilOpenFn = origOpen
		waitUntilClosedFn = origClosed
		spawnSettleDelay = origSettle
	})

	execCommand = func(name string, args ...string) *exec.Cmd {
		return exec.Command("sh", "-c", script)
	}
	signalProcessFn = func(pid int, sig syscall.Signal) error {
		st.mu.Lock()
		st.signals = append(st.signals, signalCall{pid: pid, sig: sig})
		st.mu.Unlock()
		return nil
	}
	waitUntilOpenFn = func(host string, port int, ceiling time.Duration) error { return nil }
	waitUntilClosedFn = func(host string, port int, ceiling time.Duration) error { return nil }
	spawnSettleDelay = 0

	return st
}

func testOptions() Options {
	return Options{
		Executable: "/opt/gateway/bin/gateway",
		ConfigDir:  "/opt/gateway/etc",
		StunServer: "stun.example.org:19302",
	}
}

func testAssignment() ports.Assignment {
	return ports.Assignment{BasePort: 17730, ControlPort: 17731}
}

// waitForState polls until the supervisor reaches want or the deadline hits.
func waitForState(t *testing.T, sup *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sup.GetState() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("supervisor state is %s, wanted %s", sup.GetState(), want)
}

func TestShutdownBeforeStart(t *testing.T) {
	st := stubSeams(t, "sleep 1")
	store := locks.NewMemoryStore()
	sup := New(testOptions(), store, &fakeReporter{})

	sup.Shutdown()

	assert.Equal(t, StateIdle, sup.GetState())
	assert.False(t, store.Exists(17730), "no lock may be created")
	assert.Empty(t, st.signalCalls(), "nothing to signal before any start")
}

func TestShutdownTwiceSignalsOnce(t *testing.T) {
	st := stubSeams(t, "sleep 1")
	store := locks.NewMemoryStore()
	sup := New(testOptions(), store, &fakeReporter{})

	require.NoError(t, sup.Start(testAssignment()))
	sup.Shutdown()
	signalsAfterFirst := len(st.signalCalls())

	sup.Shutdown()
	assert.Equal(t, signalsAfterFirst, len(st.signalCalls()), "second shutdown must not signal again")
}

func TestStartSpawnErrorWritesNoLock(t *testing.T) {
	stubSeams(t, "true")
	execCommand = func(name string, args ...string) *exec.Cmd {
		return exec.Command("/nonexistent/gateway/binary")
	}

	store := locks.NewMemoryStore()
	sup := New(testOptions(), store, &fakeReporter{})

	err := sup.Start(testAssignment())
	require.Error(t, err)

	var spawnErr *SpawnError
	assert.True(t, errors.As(err, &spawnErr), "error must be a *SpawnError")
	assert.False(t, store.Exists(17730), "failed spawn must not leave a lock")
	assert.Equal(t, StateIdle, sup.GetState())
}

func TestStartWritesLockAndRuns(t *testing.T) {
	stubSeams(t, "sleep 2")
	store := locks.NewMemoryStore()
	sup := New(testOptions(), store, &fakeReporter{})

	require.NoError(t, sup.Start(testAssignment()))
	defer sup.Shutdown()

	assert.Equal(t, StateRunning, sup.GetState())
	require.True(t, store.Exists(17730))
	pid, err := store.Read(17730)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
}

func TestStartReclaimsPriorHolder(t *testing.T) {
	st := stubSeams(t, "sleep 2")
	store := locks.NewMemoryStore()
	require.NoError(t, store.Write(17730, 4242)) // orphaned prior holder

	sup := New(testOptions(), store, &fakeReporter{})
	require.NoError(t, sup.Start(testAssignment()))
	defer sup.Shutdown()

	calls := st.signalCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, 4242, calls[0].pid)
	assert.Equal(t, syscall.SIGTERM, calls[0].sig)

	// The stale lock was replaced by the fresh child's.
	pid, err := store.Read(17730)
	require.NoError(t, err)
	assert.NotEqual(t, 4242, pid)
}

func TestMonitorClassifiesShutdownAsStopped(t *testing.T) {
	stubSeams(t, "sleep 0.3")
	store := locks.NewMemoryStore()
	reporter := &fakeReporter{}
	sup := New(testOptions(), store, reporter)

	require.NoError(t, sup.Start(testAssignment()))
	sup.Shutdown()

	// Let the monitor observe the child's end of stream as well.
	time.Sleep(700 * time.Millisecond)

	assert.Equal(t, StateStopped, sup.GetState())
	assert.False(t, store.Exists(17730), "shutdown must remove the lock")
	assert.Empty(t, reporter.captured(), "a requested stop is not a crash")
}

func TestMonitorClassifiesUnexpectedExitAsCrashed(t *testing.T) {
	stubSeams(t, "echo booting; sleep 0.2; exit 3")
	store := locks.NewMemoryStore()
	reporter := &fakeReporter{}
	sup := New(testOptions(), store, reporter)

	require.NoError(t, sup.Start(testAssignment()))

	waitForState(t, sup, StateCrashed)

	anomalies := reporter.captured()
	require.Len(t, anomalies, 1)
	assert.Equal(t, reporting.KindProcessCrash, anomalies[0].Kind)
	assert.Equal(t, sup.RunID(), anomalies[0].Context["runID"])
}

func TestCrashedRequiresExplicitRestart(t *testing.T) {
	stubSeams(t, "sleep 0.2; exit 3")
	store := locks.NewMemoryStore()
	sup := New(testOptions(), store, &fakeReporter{})

	require.NoError(t, sup.Start(testAssignment()))
	waitForState(t, sup, StateCrashed)

	// No automatic restart happened; an explicit Start recovers.
	require.NoError(t, sup.Start(testAssignment()))
	sup.Shutdown()
}

func TestStartReadinessTimeoutIsFatal(t *testing.T) {
	stubSeams(t, "sleep 2")
	waitUntilOpenFn = func(host string, port int, ceiling time.Duration) error {
		return netwait.ErrWaitTimeout
	}

	store := locks.NewMemoryStore()
	sup := New(testOptions(), store, &fakeReporter{})

	err := sup.Start(testAssignment())
	require.Error(t, err)
	assert.ErrorIs(t, err, netwait.ErrWaitTimeout)
	assert.False(t, store.Exists(17730), "failed start must not leave a dangling lock")
	waitForState(t, sup, StateStopped)
}
