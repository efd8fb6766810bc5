// Package lockfile provides the advisory lock that keeps a scheduled
// backup and a manual reconfiguration pass from interleaving on one host.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultPath is the lock shared by the reconciliation pass and backup runs.
const DefaultPath = "/var/lib/pgward/pgward.lock"

// ErrLocked is returned when another pgward invocation holds the lock.
var ErrLocked = errors.New("another pgward operation is in progress")

// Lock is a held flock(2) lock.
type Lock struct {
	f *os.File
}

// Acquire takes the lock without blocking. The lock is released by Release
// or automatically when the process exits.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
		}
		return nil, fmt.Errorf("flock: %w", err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. The lock file itself is left in place; only the
// flock matters.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return l.f.Close()
}
