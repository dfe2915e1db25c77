package params

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEntry is the domain prefix for entry identity hashing. The version
// suffix allows a future algorithm change without colliding with old ids.
const DomainEntry = "cairn/entry/v1"

// IdentityError reports a state point that cannot be canonicalized, for
// example one containing NaN. It is fatal for that entry only.
type IdentityError struct {
	Action string
	Err    error
}

func (e *IdentityError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("cannot compute identity for action %q: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("cannot compute identity: %v", e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// EntryID computes the content-addressed identifier for a canonical state
// point: hex SHA-256 over domain || 0x00 || canonical JSON. The null
// separator prevents domain/payload boundary ambiguity. Stable across
// process restarts and key insertion order.
func EntryID(statePoint Object) (string, error) {
	canonical, err := MarshalCanonical(statePoint)
	if err != nil {
		return "", &IdentityError{Err: err}
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// MustEntryID is like EntryID but panics on error. Use only in tests or
// when the state point is known to be canonicalizable.
func MustEntryID(statePoint Object) string {
	id, err := EntryID(statePoint)
	if err != nil {
		panic(err)
	}
	return id
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
