// Package driver implements the multi-root entrypoint (spec.md §4.D):
// runRoot splits a top-level query into its root fields, dispatches
// introspection fields to the schema's built-in interpreter and the rest to
// the owning Mapping, then drives the merged ProtoJson tree through the
// completion engine to a single Json document.
package driver

import (
	"context"

	"github.com/hanpama/compositegraph/internal/complete"
	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver_types"
	"github.com/hanpama/compositegraph/internal/interp"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// RootQueryTriple is one (query, rootTpe, env) entry of a batched call.
type RootQueryTriple = driver_types.RootQueryTriple

// Mapping is the external collaborator that owns a GraphQL root field (or a
// subtree delegated to it via Component/Defer). It supplies both the
// completion-facing Interpreter and the root-cursor entrypoint that
// runRootValue0 uses to enter a backend for the first time.
type Mapping interface {
	query.Interpreter

	// RootCursor resolves a single root field into a (possibly rewritten)
	// child query and the Cursor the backend positions it at.
	RootCursor(ctx context.Context, fieldName string, alias *string, child *query.Query, env cursor.Env) result.Result[RootCursorResult]

	// RunRootValues is the batched entrypoint the completion engine invokes
	// once placeholders have been bucketed by owning interpreter. The
	// default implementation (RunRootValuesDefault) simply traverses calling
	// RunRootValue; a Mapping may override this to coalesce.
	RunRootValues(triples []RootQueryTriple) ([]result.Problem, []*protojson.Node)
}

// RootCursorResult pairs the rewritten child query with the cursor it
// resolved to.
type RootCursorResult struct {
	Child  *query.Query
	Cursor cursor.Cursor
}

// RunRootValuesDefault is the Mapping.RunRootValues default a backend can
// embed: it simply calls RunRootValue on each triple, in order.
func RunRootValuesDefault(m query.Interpreter, triples []RootQueryTriple) ([]result.Problem, []*protojson.Node) {
	var problems []result.Problem
	nodes := make([]*protojson.Node, len(triples))
	for i, t := range triples {
		r := m.RunRootValue(t.Query, t.RootType, t.Env)
		v, ok := r.Value()
		problems = append(problems, r.Problems()...)
		if !ok {
			nodes[i] = protojson.Null()
			continue
		}
		node, _ := v.(*protojson.Node)
		if node == nil {
			node = protojson.Null()
		}
		nodes[i] = node
	}
	return problems, nodes
}

// RunRootValue0 handles the three shapes that reach a root query after
// elaboration (spec.md §4.D): Environment, a root field select, and a
// Component delegation.
func RunRootValue0(q *query.Query, rootTpe *schema.Type, env cursor.Env, ctx context.Context, m Mapping) result.Result[*protojson.Node] {
	switch q.Kind {
	case query.KindEnvironment:
		return RunRootValue0(q.Child, rootTpe, env.WithValues(q.Env), ctx, m)

	case query.KindPossiblyRenamedSelect:
		sel := q.Inner
		if sel.Kind != query.KindSelect {
			return result.Failuref[*protojson.Node]("bad root query: expected Select under PossiblyRenamedSelect")
		}
		fieldTpe := rootTpe.Field(sel.FieldName)
		if fieldTpe == nil {
			return result.Failuref[*protojson.Node]("unknown root field %q", sel.FieldName)
		}
		resultName := q.ResultName
		rc := m.RootCursor(ctx, sel.FieldName, &resultName, sel.Child, env)
		rcv, ok := rc.Value()
		if !ok {
			return result.Failure[*protojson.Node](rc.Problems()...)
		}
		wrapped := query.Wrap(resultName, rcv.Child)
		return result.Combine(interp.RunValue(wrapped, fieldTpe.Type, rcv.Cursor), rc.Problems()...)

	case query.KindWrap:
		if q.Child.Kind != query.KindComponent {
			return result.Failuref[*protojson.Node]("bad root query")
		}
		comp := q.Child
		v := comp.OtherInterpreter.RunRootValue(comp.Child, rootTpe, env)
		node, ok := v.Value()
		if !ok {
			return result.Failure[*protojson.Node](v.Problems()...)
		}
		n, _ := node.(*protojson.Node)
		return result.Both(n, v.Problems()...)

	default:
		return result.Failuref[*protojson.Node]("bad root query")
	}
}

// RunRoot is the top-level entrypoint: it splits q into root fields,
// dispatches introspection fields to introspectionInterp and the rest to
// resolve, merges the resulting ProtoJson trees, and drives them through the
// completion engine to a single Json document.
func RunRoot(
	ctx context.Context,
	q *query.Query,
	rootTpe *schema.Type,
	env cursor.Env,
	resolve func(triples []RootQueryTriple) ([]result.Problem, []*protojson.Node),
	introspectionInterp query.Interpreter,
) (problems []result.Problem, body []byte) {
	// A panic anywhere below (a buggy Mapping, a malformed query that slips
	// past elaboration) is recovered here rather than crashing the server;
	// this is harness robustness, not spec-mandated behavior.
	defer func() {
		if r := recover(); r != nil {
			problems = append(problems, result.Problem{Message: "internal error"})
			body = complete.MkResponse(nil, problems)
		}
	}()

	var rootQueries []*query.Query
	if q.Kind == query.KindGroup {
		rootQueries = q.Items
	} else {
		rootQueries = []*query.Query{q}
	}

	type slot struct {
		isIntrospection bool
		node            *protojson.Node
	}
	slots := make([]slot, len(rootQueries))

	var introspectionTriples []int
	var plainTriples []int
	for i, rq := range rootQueries {
		if rq.Kind == query.KindIntrospect {
			introspectionTriples = append(introspectionTriples, i)
		} else {
			plainTriples = append(plainTriples, i)
		}
	}

	for _, i := range introspectionTriples {
		r := introspectionInterp.RunRootValue(rootQueries[i], rootTpe, env)
		v, ok := r.Value()
		problems = append(problems, r.Problems()...)
		node := protojson.Null()
		if ok {
			if n, ok2 := v.(*protojson.Node); ok2 {
				node = n
			}
		}
		slots[i] = slot{isIntrospection: true, node: node}
	}

	if len(plainTriples) > 0 {
		triples := make([]RootQueryTriple, len(plainTriples))
		for j, i := range plainTriples {
			triples[j] = RootQueryTriple{Query: rootQueries[i], RootType: rootTpe, Env: env}
		}
		batchProblems, nodes := resolve(triples)
		problems = append(problems, batchProblems...)
		for j, i := range plainTriples {
			slots[i] = slot{node: nodes[j]}
		}
	}

	merged := make([]*protojson.Node, len(rootQueries))
	for i, s := range slots {
		merged[i] = s.node
	}

	// merged is already in original root-query order; merging it as is keeps
	// top-level fields in query order and gives last-write precedence for any
	// duplicate result names across root queries, mirroring mergeObjects'
	// append-order-wins semantics.
	mergedObj := protojson.MergeObjects(merged)

	concrete, completeProblems := complete.Complete(ctx, mergedObj)
	problems = append(problems, completeProblems...)

	return problems, mkResponse(concrete, problems)
}

// mkResponse implements spec.md §4.E / §6's response envelope.
func mkResponse(data []byte, problems []result.Problem) []byte {
	return complete.MkResponse(data, problems)
}
