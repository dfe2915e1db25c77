// Package workspace persists pipeline entries keyed by their
// content-addressed identifiers.
//
// The Store interface is the single ownership boundary for entry state:
// callers never cache entries across calls, and every accessor re-reads
// the backing medium. Dir is the production implementation (one directory
// per entry under <root>/workspace); Mem backs tests.
package workspace
