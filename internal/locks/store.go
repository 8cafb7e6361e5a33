// Package locks persists the binding between an allocated base port and the
// pid believed to hold it. The lock file is the only cross-process shared
// state in the system; staleness is resolved by a process-liveness query, not
// by mutual exclusion.
package locks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store is the lock-store abstraction: a table keyed by base port, valued by
// pid. The filesystem implementation is used in production; tests run the
// allocator against an in-memory fake.
type Store interface {
	// Exists reports whether a lock is recorded for the port.
	Exists(port int) bool

	// Read returns the pid recorded for the port. A lock whose content is
	// unreadable or not a decimal integer returns an error; callers treat
	// that as a stale lock.
	Read(port int) (int, error)

	// Write records pid as the holder of port, replacing any prior record.
	Write(port int, pid int) error

	// Delete removes the record for port. Deleting an absent record is not
	// an error.
	Delete(port int) error
}

// FileStore records locks as files named rtcbridge-gateway-<port>.pid in a
// fixed directory, each containing the decimal pid as its entire content.
type FileStore struct {
	dir string
}

// NewFileStore creates a Store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the lock file path for a base port. The name is deterministic
// so independent processes agree on it without coordination.
func (s *FileStore) Path(port int) string {
	return filepath.Join(s.dir, fmt.Sprintf("rtcbridge-gateway-%d.pid", port))
}

func (s *FileStore) Exists(port int) bool {
	_, err := os.Stat(s.Path(port))
	return err == nil
}

func (s *FileStore) Read(port int) (int, error) {
	data, err := os.ReadFile(s.Path(port))
	if err != nil {
		return 0, fmt.Errorf("reading lock for port %d: %w", port, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lock for port %d holds non-integer pid %q: %w", port, strings.TrimSpace(string(data)), err)
	}
	return pid, nil
}

func (s *FileStore) Write(port int, pid int) error {
	if err := os.WriteFile(s.Path(port), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("writing lock for port %d: %w", port, err)
	}
	return nil
}

func (s *FileStore) Delete(port int) error {
	err := os.Remove(s.Path(port))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock for port %d: %w", port, err)
	}
	return nil
}
