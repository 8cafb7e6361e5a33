package locks

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by the allocator's own
// unit tests to exercise the staleness and collision logic without touching
// the filesystem.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[int]entry
}

type entry struct {
	pid     int
	corrupt bool
}

// NewMemoryStore creates an empty in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[int]entry)}
}

// SetCorrupt records an unreadable lock at port, simulating a file whose
// content is not a decimal pid.
func (s *MemoryStore) SetCorrupt(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[port] = entry{corrupt: true}
}

func (s *MemoryStore) Exists(port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[port]
	return ok
}

func (s *MemoryStore) Read(port int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.locks[port]
	if !ok {
		return 0, fmt.Errorf("no lock for port %d", port)
	}
	if e.corrupt {
		return 0, fmt.Errorf("lock for port %d holds non-integer pid", port)
	}
	return e.pid, nil
}

func (s *MemoryStore) Write(port int, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[port] = entry{pid: pid}
	return nil
}

func (s *MemoryStore) Delete(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, port)
	return nil
}
