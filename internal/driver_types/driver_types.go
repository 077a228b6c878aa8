// Package driver_types holds the small shared shapes used by both
// package complete (the completion engine, which must recognize a batching
// interpreter without importing package driver) and package driver (which
// defines the Mapping contract in those terms). Splitting them out here
// avoids a complete<->driver import cycle.
package driver_types

import (
	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// RootQueryTriple is one (query, rootTpe, env) entry of a batched call.
type RootQueryTriple struct {
	Query    *query.Query
	RootType *schema.Type
	Env      cursor.Env
}

// BatchInterpreter is implemented by an Interpreter that can coalesce a
// batch of root-query triples into fewer backend round-trips, instead of
// the default one-call-per-triple traversal.
type BatchInterpreter interface {
	RunRootValues(triples []RootQueryTriple) ([]result.Problem, []*protojson.Node)
}
