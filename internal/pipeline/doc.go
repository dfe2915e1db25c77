// Package pipeline models the pipeline specification: the action set, its
// dependency graph, and the experiment rows to materialize.
//
// A spec is validated on construction: action names must be unique, every
// dependency must reference a declared action, and the induced graph must
// be acyclic. The topological order is deterministic, with ties broken by
// declaration order, so materialization visits actions identically across
// runs.
package pipeline
