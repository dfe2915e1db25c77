package migrate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is the project-scoped mutual exclusion token guarding apply. It is
// two-layered: a flock-held guard file makes acquisition atomic across
// processes, and a sentinel file marks ownership for the duration of the
// run. The sentinel survives a crash, so a stale lock is never silently
// auto-expired; the operator must clear it explicitly.
type Lock struct {
	guard    *flock.Flock
	sentinel string
}

func lockPaths(root string) (guard, sentinel string) {
	dir := filepath.Join(root, ".cairn")
	return filepath.Join(dir, "lock.guard"), filepath.Join(dir, "lock")
}

// AcquireLock takes the project lock without blocking. Contention, whether
// from a live holder or a crashed run's sentinel, fails immediately with
// a LockContentionError.
func AcquireLock(root string) (*Lock, error) {
	guardPath, sentinelPath := lockPaths(root)
	if err := os.MkdirAll(filepath.Dir(guardPath), 0o755); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	guard := flock.New(guardPath)
	locked, err := guard.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, &LockContentionError{Path: sentinelPath}
	}

	// Sentinel creation is atomic under the guard. An existing sentinel
	// with no live guard holder means a previous run crashed mid-apply.
	f, err := os.OpenFile(sentinelPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		_ = guard.Unlock()
		if os.IsExist(err) {
			return nil, &LockContentionError{Path: sentinelPath}
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	fmt.Fprintf(f, "pid %d\n", os.Getpid())
	f.Close()

	return &Lock{guard: guard, sentinel: sentinelPath}, nil
}

// Release removes the sentinel and drops the guard. Safe on every exit
// path; the first error encountered is returned but both layers are
// always attempted.
func (l *Lock) Release() error {
	rmErr := os.Remove(l.sentinel)
	unlockErr := l.guard.Unlock()
	if rmErr != nil {
		return rmErr
	}
	return unlockErr
}

// ClearStaleLock removes a leftover sentinel after a crashed run. It
// refuses while a live process holds the guard.
func ClearStaleLock(root string) error {
	guardPath, sentinelPath := lockPaths(root)

	guard := flock.New(guardPath)
	locked, err := guard.TryLock()
	if err != nil {
		return fmt.Errorf("clear lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("clear lock: a live migration still holds %s", guardPath)
	}
	defer guard.Unlock()

	if err := os.Remove(sentinelPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear lock: %w", err)
	}
	return nil
}
