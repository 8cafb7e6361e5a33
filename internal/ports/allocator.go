// Package ports maps an instance identity to the block of TCP ports its
// gateway will bind. Allocation is deterministic for a fixed identity and
// filesystem state; collisions between identities hashing to the same slot
// are resolved against the lock store.
package ports

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"rtcbridge/internal/instance"
	"rtcbridge/internal/locks"
	"rtcbridge/pkg/logging"
)

const subsystem = "PortAllocator"

// Assignment is the immutable port block computed once during process
// initialization. The gateway binds the signaling control endpoint at
// BasePort and the administrative endpoint at ControlPort; media and data
// ports within the gap are the gateway's own business.
type Assignment struct {
	BasePort    int
	ControlPort int
}

// Params fixes the allocation geometry. All instances on a machine must share
// the same values or their lock files stop lining up.
type Params struct {
	Floor  int
	Gap    int
	Slots  int
	Probes int
}

// Allocator resolves identities to port assignments against a lock store.
type Allocator struct {
	params   Params
	store    locks.Store
	liveness locks.Liveness
}

// NewAllocator creates an allocator over the given lock store and liveness
// probe.
func NewAllocator(params Params, store locks.Store, liveness locks.Liveness) *Allocator {
	return &Allocator{params: params, store: store, liveness: liveness}
}

// Slot returns the bucket an identity hashes into. A wide prefix of the
// sha256 digest is reduced modulo the slot count; the empty identity maps to
// slot 0.
func (a *Allocator) Slot(id instance.Identity) int {
	if id == "" {
		return 0
	}
	digest := sha256.Sum256([]byte(id))
	// 16 hex chars = 64 bits of the digest, enough to avoid modulo bias at
	// 10 slots.
	prefix := hex.EncodeToString(digest[:])[:16]
	val, err := strconv.ParseUint(prefix, 16, 64)
	if err != nil {
		// Unreachable for hex input; fall back to the first slot.
		return 0
	}
	return int(val % uint64(a.params.Slots))
}

// Allocate resolves id to its port assignment. Stale locks encountered along
// the probe sequence are reclaimed as a side effect. When every probed
// candidate is held by a live process the first candidate is returned anyway;
// that degraded mode knowingly accepts a collision rather than failing the
// instance outright.
func (a *Allocator) Allocate(id instance.Identity) Assignment {
	base := a.params.Floor + a.Slot(id)*a.params.Gap

	for k := 0; k <= a.params.Probes; k++ {
		candidate := base + k*a.params.Gap
		if a.claimable(candidate) {
			return Assignment{BasePort: candidate, ControlPort: candidate + 1}
		}
		logging.Debug(subsystem, "Port %d held by a live process, probing next candidate", candidate)
	}

	logging.Warn(subsystem, "All %d candidates from port %d are held by live processes; falling back to %d", a.params.Probes+1, base, base)
	return Assignment{BasePort: base, ControlPort: base + 1}
}

// claimable reports whether the candidate port is free or its lock is stale.
// Stale and corrupt locks are deleted here, not merely ignored, so the
// supervisor's subsequent lock write starts from a clean slate.
func (a *Allocator) claimable(port int) bool {
	if !a.store.Exists(port) {
		return true
	}

	pid, err := a.store.Read(port)
	if err != nil {
		// Unreadable or non-integer content is a corrupt lock, never a
		// live collision.
		logging.Warn(subsystem, "Reclaiming corrupt lock at port %d: %v", port, err)
		if delErr := a.store.Delete(port); delErr != nil {
			logging.Warn(subsystem, "Could not delete corrupt lock at port %d: %v", port, delErr)
		}
		return true
	}

	if a.liveness.Alive(pid) {
		return false
	}

	logging.Info(subsystem, "Reclaiming stale lock at port %d (pid %d no longer running)", port, pid)
	if err := a.store.Delete(port); err != nil {
		logging.Warn(subsystem, "Could not delete stale lock at port %d: %v", port, err)
	}
	return true
}
