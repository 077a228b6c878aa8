// Package memmap is a reference backend: a Mapping, Interpreter and Cursor
// implementation over plain Go values (maps/slices/scalars). It is used by
// the unit tests and demo scenarios; production backends plug in their own
// Cursor the same way (spec.md §8's scenarios S1 and S4-S6 run against it).
//
// Its Cursor is grounded on the teacher's executor.Runtime contract
// (ResolveSync/ResolveType/SerializeLeafValue) translated from a push-based
// resolver callback shape into the spec's pull-based capability set
// (field/asList/asLeaf/narrowsTo).
package memmap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// Resolver narrows an abstract value to its concrete object type name, and
// resolves one named field of an object value to its raw Go representation.
// A store implements this the way the teacher's Runtime implements
// ResolveSync/ResolveType.
type Resolver interface {
	// TypeNameOf returns the concrete object type name for an abstract
	// (interface/union) value.
	TypeNameOf(value any) string
	// FieldValue resolves fieldName on an object value.
	FieldValue(value any, fieldName string) (any, error)
}

// Mapping is a memmap-backed driver.Mapping: RootValue is the table of
// root-field name -> value (or slice of values, for list root fields).
type Mapping struct {
	Schema    *schema.Schema
	Resolver  Resolver
	RootValue map[string]any
}

func New(sch *schema.Schema, resolver Resolver, rootValue map[string]any) *Mapping {
	return &Mapping{Schema: sch, Resolver: resolver, RootValue: rootValue}
}

func (m *Mapping) RunRootValue(q *query.Query, rootTpe *schema.Type, env cursor.Env) result.Result[any] {
	r := driver.RunRootValue0(q, rootTpe, env, context.Background(), m)
	v, ok := r.Value()
	if !ok {
		return result.Failure[any](r.Problems()...)
	}
	return result.Both[any](v, r.Problems()...)
}

func (m *Mapping) RunRootValues(triples []driver.RootQueryTriple) ([]result.Problem, []*protojson.Node) {
	return driver.RunRootValuesDefault(m, triples)
}

func (m *Mapping) RootCursor(ctx context.Context, fieldName string, alias *string, child *query.Query, env cursor.Env) result.Result[driver.RootCursorResult] {
	v, ok := m.RootValue[fieldName]
	if !ok {
		return result.Failuref[driver.RootCursorResult]("memmap: no root value for field %q", fieldName)
	}
	fieldTpe := m.Schema.RootType(m.Schema.QueryType).Field(fieldName)
	if fieldTpe == nil {
		return result.Failuref[driver.RootCursorResult]("memmap: unknown root field %q", fieldName)
	}
	c := &valueCursor{schema: m.Schema, resolver: m.Resolver, tpe: fieldTpe.Type, value: v, env: env}
	return result.Success(driver.RootCursorResult{Child: child, Cursor: c})
}

// valueCursor is the Cursor implementation: a Go value paired with the
// schema.Type it is being viewed as.
type valueCursor struct {
	schema   *schema.Schema
	resolver Resolver
	tpe      *schema.Type
	value    any
	env      cursor.Env
}

func (c *valueCursor) Tpe() *schema.Type { return c.schema.Resolve(c.tpe) }

func (c *valueCursor) dealiased() *schema.Type { return c.Tpe().Dealias() }

func (c *valueCursor) IsLeaf() bool     { return c.dealiased().IsLeaf() }
func (c *valueCursor) IsNullable() bool { return c.dealiased().Kind == schema.KindNullable }
func (c *valueCursor) IsList() bool     { return c.dealiased().Kind == schema.KindList }

func (c *valueCursor) AsLeaf() result.Result[json.RawMessage] {
	raw, err := json.Marshal(c.value)
	if err != nil {
		return result.Failuref[json.RawMessage]("memmap: leaf serialization failed: %v", err)
	}
	return result.Success(json.RawMessage(raw))
}

func (c *valueCursor) AsNullable() result.Result[cursor.Optional] {
	d := c.dealiased()
	if d.Kind != schema.KindNullable {
		return result.Failuref[cursor.Optional]("memmap: asNullable on non-nullable type %s", d.Name)
	}
	if c.value == nil {
		return result.Success(cursor.Optional{Present: false})
	}
	inner := &valueCursor{schema: c.schema, resolver: c.resolver, tpe: d.Of, value: c.value, env: c.env}
	return result.Success(cursor.Optional{Present: true, Cursor: inner})
}

func (c *valueCursor) AsList(cursor.Collector) result.Result[cursor.Iterator] {
	d := c.dealiased()
	if d.Kind != schema.KindList {
		return result.Failuref[cursor.Iterator]("memmap: asList on non-list type %s", d.Name)
	}
	items, ok := toSlice(c.value)
	if !ok {
		return result.Failuref[cursor.Iterator]("memmap: expected a slice for list field, got %T", c.value)
	}
	elemTpe := d.Of
	cursors := make([]cursor.Cursor, 0, len(items))
	for _, it := range items {
		cursors = append(cursors, &valueCursor{schema: c.schema, resolver: c.resolver, tpe: elemTpe, value: it, env: c.env})
	}
	return result.Success[cursor.Iterator](cursor.NewSliceIterator(cursors))
}

func (c *valueCursor) Field(name string, alias *string) result.Result[cursor.Cursor] {
	d := c.dealiased()
	f := d.Field(name)
	if f == nil {
		return result.Failuref[cursor.Cursor]("memmap: unknown field %q on type %s", name, d.Name)
	}
	v, err := c.resolver.FieldValue(c.value, name)
	if err != nil {
		return result.Failuref[cursor.Cursor]("memmap: resolving field %q: %v", name, err)
	}
	return result.Success[cursor.Cursor](&valueCursor{schema: c.schema, resolver: c.resolver, tpe: f.Type, value: v, env: c.env})
}

func (c *valueCursor) NarrowsTo(ref string) bool {
	d := c.dealiased()
	if d.Kind == schema.KindObject {
		return d.Name == ref
	}
	return c.resolver.TypeNameOf(c.value) == ref
}

func (c *valueCursor) Narrow(ref string) result.Result[cursor.Cursor] {
	if !c.NarrowsTo(ref) {
		return result.Failuref[cursor.Cursor]("memmap: cannot narrow to %q", ref)
	}
	concrete, ok := c.schema.Types[ref]
	if !ok {
		return result.Failuref[cursor.Cursor]("memmap: unknown type %q", ref)
	}
	return result.Success[cursor.Cursor](&valueCursor{schema: c.schema, resolver: c.resolver, tpe: concrete, value: c.value, env: c.env})
}

func (c *valueCursor) ListPath(path []string) result.Result[[]cursor.Cursor] {
	out, err := c.walkPath(path, false)
	if err != nil {
		return result.Failuref[[]cursor.Cursor]("%v", err)
	}
	return result.Success(out)
}

func (c *valueCursor) FlatListPath(path []string) result.Result[[]cursor.Cursor] {
	out, err := c.walkPath(path, true)
	if err != nil {
		return result.Failuref[[]cursor.Cursor]("%v", err)
	}
	return result.Success(out)
}

// walkPath navigates a dotted field path, flattening through list-typed
// intermediate segments when flatten is true; otherwise a list segment is an
// error unless it is the terminal element.
func (c *valueCursor) walkPath(path []string, flatten bool) ([]cursor.Cursor, error) {
	cursors := []cursor.Cursor{c}
	for _, seg := range path {
		var next []cursor.Cursor
		for _, cur := range cursors {
			vc := cur.(*valueCursor)
			nested := vc
			if vc.IsNullable() {
				opt := vc.AsNullable()
				ov, ok := opt.Value()
				if !ok {
					return nil, fmt.Errorf("memmap: path navigation failed resolving optional")
				}
				if !ov.Present {
					continue
				}
				nested = ov.Cursor.(*valueCursor)
			}
			fr := nested.Field(seg, nil)
			fc, ok := fr.Value()
			if !ok {
				return nil, fmt.Errorf("memmap: path navigation failed at %q", seg)
			}
			fvc := fc.(*valueCursor)
			if fvc.IsList() && flatten {
				listR := fvc.AsList(cursor.Collector{})
				it, ok := listR.Value()
				if !ok {
					return nil, fmt.Errorf("memmap: path navigation failed listing %q", seg)
				}
				next = append(next, cursor.Drain(it)...)
			} else {
				next = append(next, fvc)
			}
		}
		cursors = next
	}
	return cursors, nil
}

func (c *valueCursor) WithEnv(env cursor.Env) cursor.Cursor {
	nc := *c
	nc.env = c.env.WithValues(env)
	return &nc
}

func (c *valueCursor) FullEnv() cursor.Env { return c.env }

func (c *valueCursor) Preunique() result.Result[cursor.Cursor] {
	return result.Success[cursor.Cursor](c)
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

