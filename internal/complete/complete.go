// Package complete implements the completion engine (spec.md §4.E):
// gather every Staged placeholder reachable in a batch of ProtoJson trees,
// bucket them by owning interpreter, invoke each interpreter's batched
// evaluator concurrently, recurse until nothing remains deferred, then
// scatter concrete Json back into the original trees by placeholder
// identity. The concurrent per-bucket dispatch is grounded on
// movio-bramble's QueryExecution.execute goroutine+WaitGroup batching.
package complete

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hanpama/compositegraph/internal/driver_types"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/telemetry"
)

// gather walks pj collecting every Staged placeholder reachable through
// Object fields, Array elements, and Select inners. Traversal order is
// unspecified by the spec; we walk depth-first.
func gather(pj *protojson.Node, out *[]*protojson.Node) {
	switch pj.Kind {
	case protojson.KindStaged:
		*out = append(*out, pj)
	case protojson.KindObject:
		for _, f := range pj.Fields {
			gather(f.Value, out)
		}
	case protojson.KindArray:
		for _, e := range pj.Elems {
			gather(e, out)
		}
	case protojson.KindSelect:
		gather(pj.Inner, out)
	}
}

// CompleteAll resolves every Staged node reachable from pjs and returns the
// fully concrete Json for each input position, plus the accumulated problem
// chain.
func CompleteAll(ctx context.Context, pjs []*protojson.Node) ([]json.RawMessage, []result.Problem) {
	var placeholders []*protojson.Node
	for _, pj := range pjs {
		gather(pj, &placeholders)
	}

	stageStart := time.Now()
	telemetry.Publish(ctx, telemetry.CompletionStageStart{PlaceholderCount: len(placeholders)})
	defer func() {
		telemetry.Publish(ctx, telemetry.CompletionStageFinish{PlaceholderCount: len(placeholders), Duration: time.Since(stageStart)})
	}()

	if len(placeholders) == 0 {
		substitution := map[*protojson.Node]json.RawMessage{}
		out := make([]json.RawMessage, len(pjs))
		for i, pj := range pjs {
			out[i] = scatter(pj, substitution)
		}
		return out, nil
	}

	// Bucket: group by owning interpreter (reference identity), preserving
	// first-seen bucket order for determinism.
	buckets := map[query.Interpreter][]*protojson.Node{}
	var order []query.Interpreter
	for _, ph := range placeholders {
		if _, seen := buckets[ph.Interpreter]; !seen {
			order = append(order, ph.Interpreter)
		}
		buckets[ph.Interpreter] = append(buckets[ph.Interpreter], ph)
	}

	type bucketOut struct {
		problems []result.Problem
		nodes    []*protojson.Node
	}
	outs := make([]bucketOut, len(order))

	var wg sync.WaitGroup
	for i, ip := range order {
		i, ip := i, ip
		phs := buckets[ip]
		wg.Add(1)
		go func() {
			defer wg.Done()
			batchStart := time.Now()
			telemetry.Publish(ctx, telemetry.InterpreterBatchStart{Interpreter: interpreterName(ip), BatchSize: len(phs)})
			problems, nodes := runBatchRecovered(ip, phs)
			telemetry.Publish(ctx, telemetry.InterpreterBatchFinish{
				Interpreter: interpreterName(ip),
				BatchSize:   len(phs),
				ErrorCount:  len(problems),
				Duration:    time.Since(batchStart),
			})
			outs[i] = bucketOut{problems: problems, nodes: nodes}
		}()
	}
	wg.Wait()

	// Flatten in the same (bucket, within-bucket) order used above so the
	// returned nodes line up positionally with phOrder.
	var phOrder []*protojson.Node
	var nextRound []*protojson.Node
	var problems []result.Problem
	for i, ip := range order {
		phs := buckets[ip]
		problems = append(problems, outs[i].problems...)
		for j, ph := range phs {
			var node *protojson.Node
			if j < len(outs[i].nodes) {
				node = outs[i].nodes[j]
			}
			if node == nil {
				node = protojson.Null()
			}
			phOrder = append(phOrder, ph)
			nextRound = append(nextRound, node)
		}
	}

	resolvedJSON, recurseProblems := CompleteAll(ctx, nextRound)
	problems = append(problems, recurseProblems...)

	substitution := make(map[*protojson.Node]json.RawMessage, len(phOrder))
	for i, ph := range phOrder {
		substitution[ph] = resolvedJSON[i]
	}

	out := make([]json.RawMessage, len(pjs))
	for i, pj := range pjs {
		out[i] = scatter(pj, substitution)
	}
	return out, problems
}

// interpreterName gives an owning interpreter a stable label for telemetry
// without requiring Interpreter implementations to carry a Name method.
func interpreterName(ip query.Interpreter) string {
	return fmt.Sprintf("%T", ip)
}

// runBatchRecovered wraps runBatch so a panic in one interpreter's batch
// (e.g. a backend bug) becomes a single "internal error" Problem for that
// bucket, with every placeholder in it resolved to null, instead of crashing
// the whole request; other buckets' goroutines are unaffected.
func runBatchRecovered(ip query.Interpreter, phs []*protojson.Node) (problems []result.Problem, nodes []*protojson.Node) {
	defer func() {
		if r := recover(); r != nil {
			problems = []result.Problem{{Message: "internal error"}}
			nodes = make([]*protojson.Node, len(phs))
			for i := range nodes {
				nodes[i] = protojson.Null()
			}
		}
	}()
	return runBatch(ip, phs)
}

func runBatch(ip query.Interpreter, phs []*protojson.Node) ([]result.Problem, []*protojson.Node) {
	if b, ok := ip.(driver_types.BatchInterpreter); ok {
		items := make([]driver_types.RootQueryTriple, len(phs))
		for i, ph := range phs {
			items[i] = driver_types.RootQueryTriple{Query: ph.Query, RootType: ph.RootType, Env: ph.Env}
		}
		return b.RunRootValues(items)
	}
	var problems []result.Problem
	nodes := make([]*protojson.Node, len(phs))
	for i, ph := range phs {
		r := ip.RunRootValue(ph.Query, ph.RootType, ph.Env)
		v, ok := r.Value()
		problems = append(problems, r.Problems()...)
		if !ok {
			nodes[i] = protojson.Null()
			continue
		}
		n, _ := v.(*protojson.Node)
		if n == nil {
			n = protojson.Null()
		}
		nodes[i] = n
	}
	return problems, nodes
}

// scatter substitutes resolved placeholders back into pj using identity
// lookups in substitution, applying the single-field-object inlining rule
// for Staged-at-object-root fields (spec.md §4.E step 6).
func scatter(pj *protojson.Node, substitution map[*protojson.Node]json.RawMessage) json.RawMessage {
	switch pj.Kind {
	case protojson.KindConcrete:
		return pj.JSON

	case protojson.KindStaged:
		raw, ok := substitution[pj]
		if !ok {
			return json.RawMessage("null")
		}
		return raw

	case protojson.KindObject:
		buf := make([]byte, 0, 64)
		buf = append(buf, '{')
		for i, f := range pj.Fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			key, _ := json.Marshal(f.Name)
			buf = append(buf, key...)
			buf = append(buf, ':')
			value := scatter(f.Value, substitution)
			if protojson.IsDeferred(f.Value) {
				if inlined, ok := inlineSingleField(value); ok {
					value = inlined
				}
			}
			buf = append(buf, value...)
		}
		buf = append(buf, '}')
		return buf

	case protojson.KindArray:
		buf := make([]byte, 0, 64)
		buf = append(buf, '[')
		for i, e := range pj.Elems {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, scatter(e, substitution)...)
		}
		buf = append(buf, ']')
		return buf

	case protojson.KindSelect:
		inner := scatter(pj.Inner, substitution)
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(inner, &obj); err != nil {
			return json.RawMessage("null")
		}
		v, ok := obj[pj.FieldName]
		if !ok {
			return json.RawMessage("null")
		}
		return v

	default:
		return json.RawMessage("null")
	}
}

// inlineSingleField reports whether raw is a single-field JSON object and,
// if so, returns that field's value unwrapped.
func inlineSingleField(raw json.RawMessage) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		return nil, false
	}
	for _, v := range obj {
		return v, true
	}
	return nil, false
}

// Complete resolves a single ProtoJson to concrete Json, short-circuiting if
// it is already Concrete.
func Complete(ctx context.Context, pj *protojson.Node) ([]byte, []result.Problem) {
	if pj.Kind == protojson.KindConcrete {
		return pj.JSON, nil
	}
	out, problems := CompleteAll(ctx, []*protojson.Node{pj})
	if len(out) == 0 {
		return json.RawMessage("null"), problems
	}
	return out[0], problems
}

type errorJSON struct {
	Message   string          `json:"message"`
	Locations []locationJSON  `json:"locations,omitempty"`
	Path      []string        `json:"path,omitempty"`
}

type locationJSON struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// MkResponse builds the {"data":...,"errors":[...]} envelope (spec.md §4.E
// / §6), bit-exact down to errors appearing before data and the synthetic
// "Invalid query" error when both are empty.
func MkResponse(data []byte, problems []result.Problem) []byte {
	hasData := len(data) > 0 && string(data) != "null"
	if !hasData && len(problems) == 0 {
		problems = []result.Problem{{Message: "Invalid query"}}
	}

	type envelope struct {
		Errors []errorJSON     `json:"errors,omitempty"`
		Data   json.RawMessage `json:"data,omitempty"`
	}
	env := envelope{}
	if len(problems) > 0 {
		errs := make([]errorJSON, len(problems))
		for i, p := range problems {
			locs := make([]locationJSON, len(p.Locations))
			for j, l := range p.Locations {
				locs[j] = locationJSON{Line: l.Line, Column: l.Column}
			}
			errs[i] = errorJSON{Message: p.Message, Locations: locs, Path: p.Path}
		}
		env.Errors = errs
	}
	if hasData {
		env.Data = data
	}

	out, err := json.Marshal(env)
	if err != nil {
		return []byte(`{"errors":[{"message":"internal serialization error"}]}`)
	}
	return out
}
