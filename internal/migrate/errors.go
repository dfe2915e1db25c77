package migrate

import (
	"errors"
	"fmt"
)

// CollisionError blocks application of a collision-flagged plan. Distinct
// old identities mapping to one new identity would silently merge entries;
// the executor never resolves this by picking a side.
type CollisionError struct {
	Action     string
	Collisions []Collision
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("plan for action %q maps %d groups of distinct entries to shared new identifiers; review the plan or apply with force",
		e.Action, len(e.Collisions))
}

// IsCollision reports whether err is (or wraps) a CollisionError.
func IsCollision(err error) bool {
	var ce *CollisionError
	return errors.As(err, &ce)
}

// LockContentionError means another apply holds the project lock. The
// executor never blocks or retries; the operator must rerun later, or
// clear a stale lock explicitly if the holder crashed.
type LockContentionError struct {
	Path string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("another migration holds the project lock %s (clear a stale lock with unlock)", e.Path)
}

// IsLockContention reports whether err is (or wraps) a LockContentionError.
func IsLockContention(err error) bool {
	var le *LockContentionError
	return errors.As(err, &le)
}
