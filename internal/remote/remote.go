package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver"
	"github.com/hanpama/compositegraph/internal/driver_types"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// Caller is the subset of grpctp.Transport the bridge needs: one generic RPC
// call keyed by a method descriptor. grpctp.Transport satisfies this
// directly; tests substitute a fake.
type Caller interface {
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}

// Transport is the gRPC client half of the bridge: a connection-pooled
// caller (grounded on grpctp.Transport) bound to the one Evaluate method
// this package defines.
type Transport struct {
	caller Caller
	method protoreflect.MethodDescriptor
}

// NewTransport builds a Transport around an already-configured grpctp
// client. Construct the grpctp.Transport the same way any other grpctp
// caller in this codebase is built (options.go), then wrap it here.
func NewTransport(caller Caller) (*Transport, error) {
	method, err := buildEvaluateMethod()
	if err != nil {
		return nil, err
	}
	return &Transport{caller: caller, method: method}, nil
}

// evalRequest is the top-level Struct-shaped payload sent to the remote
// service: an ordered batch of selections plus the environment bindings
// they should be evaluated under.
type evalRequest struct {
	Env        map[string]any   `json:"env,omitempty"`
	Selections []*wireSelection `json:"selections"`
}

type evalResponse struct {
	Results []wireResult `json:"results"`
}

// evaluate sends one batch of selections and returns one wireResult per
// selection, in order.
func (t *Transport) evaluate(ctx context.Context, env cursor.Env, selections []*wireSelection) ([]wireResult, error) {
	req := evalRequest{Env: map[string]any(env), Selections: selections}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding request: %w", err)
	}
	var reqMap map[string]any
	if err := json.Unmarshal(reqJSON, &reqMap); err != nil {
		return nil, fmt.Errorf("remote: decoding request to struct shape: %w", err)
	}
	reqStruct, err := structpb.NewStruct(reqMap)
	if err != nil {
		return nil, fmt.Errorf("remote: building request struct: %w", err)
	}

	respMsg, err := t.caller.Call(ctx, t.method, reqStruct.ProtoReflect())
	if err != nil {
		return nil, fmt.Errorf("remote: Evaluate call failed: %w", err)
	}

	respBytes, err := proto.Marshal(respMsg.Interface())
	if err != nil {
		return nil, fmt.Errorf("remote: marshaling response: %w", err)
	}
	var respStruct structpb.Struct
	if err := proto.Unmarshal(respBytes, &respStruct); err != nil {
		return nil, fmt.Errorf("remote: decoding response struct: %w", err)
	}

	respAsJSON, err := json.Marshal(respStruct.AsMap())
	if err != nil {
		return nil, fmt.Errorf("remote: re-encoding response: %w", err)
	}
	var resp evalResponse
	if err := json.Unmarshal(respAsJSON, &resp); err != nil {
		return nil, fmt.Errorf("remote: decoding response shape: %w", err)
	}
	if len(resp.Results) != len(selections) {
		return nil, fmt.Errorf("remote: expected %d results, got %d", len(selections), len(resp.Results))
	}
	return resp.Results, nil
}

// Mapping is a driver.Mapping/query.Interpreter backed by an out-of-process
// service reached over Transport, the network-bridged counterpart to
// memmap.Mapping. It implements driver_types.BatchInterpreter directly
// (rather than falling back to driver.RunRootValuesDefault) so the
// completion engine's bucket dispatch becomes a single batched RPC instead
// of one round trip per placeholder.
type Mapping struct {
	Schema    *schema.Schema
	Transport *Transport
}

func New(sch *schema.Schema, transport *Transport) *Mapping {
	return &Mapping{Schema: sch, Transport: transport}
}

var _ query.Interpreter = (*Mapping)(nil)
var _ driver_types.BatchInterpreter = (*Mapping)(nil)

func (m *Mapping) RunRootValue(q *query.Query, rootTpe *schema.Type, env cursor.Env) result.Result[any] {
	problems, nodes := m.RunRootValues([]driver_types.RootQueryTriple{{Query: q, RootType: rootTpe, Env: env}})
	if len(nodes) == 0 {
		return result.Failure[any](problems...)
	}
	return result.Both[any](nodes[0], problems...)
}

func (m *Mapping) RunRootValues(triples []driver_types.RootQueryTriple) ([]result.Problem, []*protojson.Node) {
	if len(triples) == 0 {
		return nil, nil
	}
	ctx := context.Background()
	selections := make([]*wireSelection, len(triples))
	env := triples[0].Env
	for i, t := range triples {
		w, _, err := toWireSelection(t.Query, t.Env)
		if err != nil {
			return []result.Problem{{Message: err.Error()}}, allNull(len(triples))
		}
		selections[i] = w
	}

	results, err := m.Transport.evaluate(ctx, env, selections)
	if err != nil {
		return []result.Problem{{Message: err.Error()}}, allNull(len(triples))
	}

	var problems []result.Problem
	nodes := make([]*protojson.Node, len(triples))
	for i, r := range results {
		problems = append(problems, fromWireProblems(r.Problems)...)
		raw, err := json.Marshal(r.Data)
		if err != nil {
			problems = append(problems, result.Problem{Message: fmt.Sprintf("remote: re-encoding result data: %v", err)})
			nodes[i] = protojson.Null()
			continue
		}
		nodes[i] = protojson.Concrete(raw)
	}
	return problems, nodes
}

func allNull(n int) []*protojson.Node {
	out := make([]*protojson.Node, n)
	for i := range out {
		out[i] = protojson.Null()
	}
	return out
}

// RootCursor fetches the entire requested subtree for fieldName in one RPC
// (the bridge has no finer-grained lazy field API) and hands back a Cursor
// over the decoded JSON value, against which child is then evaluated
// locally. child is first encoded by toWireSelection, so a child containing
// Unique, FilterOrderByOffsetLimit, Narrow, Component or Defer makes
// RootCursor fail. This trades chattiness for simplicity: one round trip
// per root-delegated field rather than one per nested field.
func (m *Mapping) RootCursor(ctx context.Context, fieldName string, alias *string, child *query.Query, env cursor.Env) result.Result[driver.RootCursorResult] {
	fieldTpe := m.Schema.RootType(m.Schema.QueryType).Field(fieldName)
	if fieldTpe == nil {
		return result.Failuref[driver.RootCursorResult]("remote: unknown root field %q", fieldName)
	}
	sel := query.Select(fieldName, nil, child)
	w, _, err := toWireSelection(sel, env)
	if err != nil {
		return result.Failuref[driver.RootCursorResult]("remote: %v", err)
	}
	results, err := m.Transport.evaluate(ctx, env, []*wireSelection{w})
	if err != nil {
		return result.Failuref[driver.RootCursorResult]("remote: %v", err)
	}
	problems := fromWireProblems(results[0].Problems)
	c := &jsonValueCursor{schema: m.Schema, tpe: fieldTpe.Type, value: results[0].Data, env: env}
	return result.Both(driver.RootCursorResult{Child: child, Cursor: c}, problems...)
}

// jsonValueCursor is a Cursor over a value already decoded from JSON
// (map[string]any / []any / scalar / nil), grounded on memmap.valueCursor
// but narrowing abstract types via a "__typename" key instead of a
// Resolver, the convention the wire format's remote side is expected to
// follow for interface/union values (mirroring GraphQL federation's
// _entities __typename discriminator).
type jsonValueCursor struct {
	schema *schema.Schema
	tpe    *schema.Type
	value  any
	env    cursor.Env
}

func (c *jsonValueCursor) Tpe() *schema.Type      { return c.schema.Resolve(c.tpe) }
func (c *jsonValueCursor) dealiased() *schema.Type { return c.Tpe().Dealias() }

func (c *jsonValueCursor) IsLeaf() bool     { return c.dealiased().IsLeaf() }
func (c *jsonValueCursor) IsNullable() bool { return c.dealiased().Kind == schema.KindNullable }
func (c *jsonValueCursor) IsList() bool     { return c.dealiased().Kind == schema.KindList }

func (c *jsonValueCursor) AsLeaf() result.Result[json.RawMessage] {
	raw, err := json.Marshal(c.value)
	if err != nil {
		return result.Failuref[json.RawMessage]("remote: leaf serialization failed: %v", err)
	}
	return result.Success(json.RawMessage(raw))
}

func (c *jsonValueCursor) AsNullable() result.Result[cursor.Optional] {
	d := c.dealiased()
	if d.Kind != schema.KindNullable {
		return result.Failuref[cursor.Optional]("remote: asNullable on non-nullable type %s", d.Name)
	}
	if c.value == nil {
		return result.Success(cursor.Optional{Present: false})
	}
	inner := &jsonValueCursor{schema: c.schema, tpe: d.Of, value: c.value, env: c.env}
	return result.Success(cursor.Optional{Present: true, Cursor: inner})
}

func (c *jsonValueCursor) AsList(cursor.Collector) result.Result[cursor.Iterator] {
	d := c.dealiased()
	if d.Kind != schema.KindList {
		return result.Failuref[cursor.Iterator]("remote: asList on non-list type %s", d.Name)
	}
	items, ok := c.value.([]any)
	if !ok {
		if c.value == nil {
			return result.Success[cursor.Iterator](cursor.NewSliceIterator(nil))
		}
		return result.Failuref[cursor.Iterator]("remote: expected a list for %s, got %T", d.Name, c.value)
	}
	elemTpe := d.Of
	cursors := make([]cursor.Cursor, 0, len(items))
	for _, it := range items {
		cursors = append(cursors, &jsonValueCursor{schema: c.schema, tpe: elemTpe, value: it, env: c.env})
	}
	return result.Success[cursor.Iterator](cursor.NewSliceIterator(cursors))
}

func (c *jsonValueCursor) Field(name string, alias *string) result.Result[cursor.Cursor] {
	d := c.dealiased()
	f := d.Field(name)
	if f == nil {
		return result.Failuref[cursor.Cursor]("remote: unknown field %q on type %s", name, d.Name)
	}
	obj, ok := c.value.(map[string]any)
	if !ok {
		return result.Failuref[cursor.Cursor]("remote: expected an object for field %q, got %T", name, c.value)
	}
	key := name
	if alias != nil && *alias != "" {
		key = *alias
	}
	v, present := obj[key]
	if !present {
		v = obj[name]
	}
	return result.Success[cursor.Cursor](&jsonValueCursor{schema: c.schema, tpe: f.Type, value: v, env: c.env})
}

func (c *jsonValueCursor) NarrowsTo(ref string) bool {
	d := c.dealiased()
	if d.Kind == schema.KindObject {
		return d.Name == ref
	}
	obj, ok := c.value.(map[string]any)
	if !ok {
		return false
	}
	tn, _ := obj["__typename"].(string)
	return tn == ref
}

func (c *jsonValueCursor) Narrow(ref string) result.Result[cursor.Cursor] {
	if !c.NarrowsTo(ref) {
		return result.Failuref[cursor.Cursor]("remote: cannot narrow to %q", ref)
	}
	concrete, ok := c.schema.Types[ref]
	if !ok {
		return result.Failuref[cursor.Cursor]("remote: unknown type %q", ref)
	}
	return result.Success[cursor.Cursor](&jsonValueCursor{schema: c.schema, tpe: concrete, value: c.value, env: c.env})
}

func (c *jsonValueCursor) ListPath(path []string) result.Result[[]cursor.Cursor] {
	out, err := c.walkPath(path, false)
	if err != nil {
		return result.Failuref[[]cursor.Cursor]("%v", err)
	}
	return result.Success(out)
}

func (c *jsonValueCursor) FlatListPath(path []string) result.Result[[]cursor.Cursor] {
	out, err := c.walkPath(path, true)
	if err != nil {
		return result.Failuref[[]cursor.Cursor]("%v", err)
	}
	return result.Success(out)
}

func (c *jsonValueCursor) walkPath(path []string, flatten bool) ([]cursor.Cursor, error) {
	cursors := []cursor.Cursor{c}
	for _, seg := range path {
		var next []cursor.Cursor
		for _, cur := range cursors {
			vc := cur.(*jsonValueCursor)
			nested := vc
			if vc.IsNullable() {
				opt := vc.AsNullable()
				ov, ok := opt.Value()
				if !ok {
					return nil, fmt.Errorf("remote: path navigation failed resolving optional")
				}
				if !ov.Present {
					continue
				}
				nested = ov.Cursor.(*jsonValueCursor)
			}
			fr := nested.Field(seg, nil)
			fc, ok := fr.Value()
			if !ok {
				return nil, fmt.Errorf("remote: path navigation failed at %q", seg)
			}
			fvc := fc.(*jsonValueCursor)
			if fvc.IsList() && flatten {
				listR := fvc.AsList(cursor.Collector{})
				it, ok := listR.Value()
				if !ok {
					return nil, fmt.Errorf("remote: path navigation failed listing %q", seg)
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

func (c *jsonValueCursor) WithEnv(env cursor.Env) cursor.Cursor {
	nc := *c
	nc.env = c.env.WithValues(env)
	return &nc
}

func (c *jsonValueCursor) FullEnv() cursor.Env { return c.env }

func (c *jsonValueCursor) Preunique() result.Result[cursor.Cursor] {
	return result.Success[cursor.Cursor](c)
}
