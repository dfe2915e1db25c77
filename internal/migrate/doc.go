// Package migrate plans and applies schema migrations over persisted
// entries.
//
// Planning is pure computation: a caller-supplied transform is applied to
// every entry of one action and the resulting old-to-new identity mapping
// is written as an immutable plan artifact, with collisions detected and
// flagged rather than resolved. Applying a plan runs under the project
// lock and is resumable: the executor rewrites the target entries, then
// cascades pointer rewrites through downstream actions, persisting a
// per-entry progress ledger after every step. Because each rewrite is
// individually idempotent, an apply interrupted at any point and resumed
// reaches the same final store state as an uninterrupted one.
package migrate
