// Package resolve follows dependency pointers between entries: single
// parent lookups for action scripts and the migration executor, and
// whole-chain flattening for parameter collection.
package resolve
