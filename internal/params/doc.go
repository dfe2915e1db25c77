// Package params defines the tagged value model for state points and their
// content-addressed identity.
//
// A state point is an Object: a mapping from parameter keys to scalar or
// nested values. Entry identity is computed by canonicalizing the state
// point (sorted keys, NFC strings, normalized numerics) and hashing the
// result with SHA-256 under a domain prefix. Equal canonical state points
// always yield equal identifiers regardless of key insertion order or
// numeric spelling; values that cannot be canonicalized (NaN, unsupported
// types) fail validation instead of silently degrading.
package params
