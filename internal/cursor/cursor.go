// Package cursor defines the Cursor contract: an opaque, immutable navigator
// over a backend's data, typed at its current GraphQL type (spec.md §3). The
// interpreter only ever calls these methods; it never inspects a cursor's
// concrete implementation.
package cursor

import (
	"encoding/json"

	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// Env is the append-only environment of predicate-visible bindings pushed by
// Query.Environment nodes.
type Env map[string]any

// WithValues returns a new Env with the given bindings layered on top of e.
// Env is append-only: this never mutates e.
func (e Env) WithValues(kv map[string]any) Env {
	out := make(Env, len(e)+len(kv))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}

// Collector lets asList report how it is being consumed (e.g. "need at most
// one", "need all") so backends that stream may short-circuit; the in-memory
// reference cursor ignores it.
type Collector struct {
	Unique bool
}

// Cursor is the capability set a backend must expose for the interpreter to
// evaluate a query against it.
type Cursor interface {
	// Tpe is the GraphQL type the cursor currently points at.
	Tpe() *schema.Type

	IsLeaf() bool
	IsNullable() bool
	IsList() bool

	AsLeaf() result.Result[json.RawMessage]
	// AsNullable returns an Optional: Present with the inner Cursor when a
	// value is there, Present false when the cursor denotes GraphQL null.
	AsNullable() result.Result[Optional]
	AsList(c Collector) result.Result[Iterator]

	Field(name string, alias *string) result.Result[Cursor]

	NarrowsTo(ref string) bool
	Narrow(ref string) result.Result[Cursor]

	ListPath(path []string) result.Result[[]Cursor]
	FlatListPath(path []string) result.Result[[]Cursor]

	WithEnv(env Env) Cursor
	FullEnv() Env

	// Preunique asserts the cursor may be collapsed by Unique; returning an
	// error here surfaces as a cardinality problem before list evaluation
	// even starts (e.g. the backend already knows there's no match).
	Preunique() result.Result[Cursor]
}

// Optional is the result of AsNullable: either Present wraps the inner
// cursor, or the cursor denotes GraphQL null.
type Optional struct {
	Present bool
	Cursor  Cursor
}

// Iterator yields the elements of a list cursor in backend iteration order.
type Iterator interface {
	Next() (Cursor, bool)
}

// SliceIterator adapts a []Cursor to Iterator.
type SliceIterator struct {
	items []Cursor
	pos   int
}

func NewSliceIterator(items []Cursor) *SliceIterator { return &SliceIterator{items: items} }

func (it *SliceIterator) Next() (Cursor, bool) {
	if it.pos >= len(it.items) {
		return nil, false
	}
	c := it.items[it.pos]
	it.pos++
	return c, true
}

// Drain exhausts an Iterator into a slice, preserving order.
func Drain(it Iterator) []Cursor {
	var out []Cursor
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}
