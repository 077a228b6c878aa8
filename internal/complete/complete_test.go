package complete

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver_types"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// fakeInterp resolves every Staged placeholder it owns via resolve,
// exercising CompleteAll's non-batched dispatch path.
type fakeInterp struct {
	resolve func() *protojson.Node
}

func (f *fakeInterp) RunRootValue(*query.Query, *schema.Type, cursor.Env) result.Result[any] {
	return result.Success[any](f.resolve())
}

// batchInterp implements driver_types.BatchInterpreter so CompleteAll
// dispatches every placeholder it owns in a single call.
type batchInterp struct {
	calls [][]driver_types.RootQueryTriple
}

func (b *batchInterp) RunRootValue(*query.Query, *schema.Type, cursor.Env) result.Result[any] {
	panic("batchInterp: RunRootValue should not be called when RunRootValues is available")
}

func (b *batchInterp) RunRootValues(triples []driver_types.RootQueryTriple) ([]result.Problem, []*protojson.Node) {
	b.calls = append(b.calls, triples)
	nodes := make([]*protojson.Node, len(triples))
	for i := range triples {
		nodes[i] = protojson.Concrete(json.RawMessage(`"ok"`))
	}
	return nil, nodes
}

func TestCompleteAll_NoStagedIsIdentity(t *testing.T) {
	concrete := protojson.Concrete(json.RawMessage(`{"a":1}`))
	out, problems := CompleteAll(context.Background(), []*protojson.Node{concrete})
	require.Empty(t, problems)
	require.JSONEq(t, `{"a":1}`, string(out[0]))
}

func TestCompleteAll_ResolvesStagedAndStitchesUnderParent(t *testing.T) {
	// Like a real interpreter, the fake answers with a single-field object
	// keyed by the result name, which scatter unwraps into the parent field.
	country := &fakeInterp{resolve: func() *protojson.Node {
		return protojson.Concrete(json.RawMessage(`{"country":{"name":"Afghanistan"}}`))
	}}
	staged := protojson.Staged(country, query.EmptyQuery, nil, cursor.Env{})
	obj := protojson.FromFields([]protojson.Field{
		{Name: "name", Value: protojson.Concrete(json.RawMessage(`"Qandahar"`))},
		{Name: "country", Value: staged},
	})

	out, problems := CompleteAll(context.Background(), []*protojson.Node{obj})
	require.Empty(t, problems)
	require.JSONEq(t, `{"name":"Qandahar","country":{"name":"Afghanistan"}}`, string(out[0]))
}

func TestCompleteAll_NoStagedNodeSurvivesCompletion(t *testing.T) {
	// A Staged node whose own resolution is itself Staged (owned by a
	// second interpreter) forces a second completion round; law 3 requires
	// that no Staged placeholder remains in the final output either way.
	leaf := &fakeInterp{resolve: func() *protojson.Node {
		return protojson.Concrete(json.RawMessage(`{"country":{"name":"Afghanistan"}}`))
	}}
	root := &fakeInterp{resolve: func() *protojson.Node {
		return protojson.Staged(leaf, query.EmptyQuery, nil, cursor.Env{})
	}}

	staged := protojson.Staged(root, query.EmptyQuery, nil, cursor.Env{})
	obj := protojson.FromFields([]protojson.Field{
		{Name: "country", Value: staged},
	})

	out, problems := CompleteAll(context.Background(), []*protojson.Node{obj})
	require.Empty(t, problems)
	require.JSONEq(t, `{"country":{"name":"Afghanistan"}}`, string(out[0]))
	require.NotContains(t, string(out[0]), "Staged")
}

func TestCompleteAll_BatchesPlaceholdersOwnedByTheSameInterpreter(t *testing.T) {
	bi := &batchInterp{}
	obj := protojson.FromFields([]protojson.Field{
		{Name: "a", Value: protojson.Staged(bi, query.EmptyQuery, nil, cursor.Env{})},
		{Name: "b", Value: protojson.Staged(bi, query.EmptyQuery, nil, cursor.Env{})},
	})

	out, problems := CompleteAll(context.Background(), []*protojson.Node{obj})
	require.Empty(t, problems)
	require.Len(t, bi.calls, 1, "both placeholders share an owning interpreter and must dispatch in one batch")
	require.Len(t, bi.calls[0], 2)
	require.JSONEq(t, `{"a":"ok","b":"ok"}`, string(out[0]))
}

func TestMkResponse_SynthesizesInvalidQueryErrorWhenEmpty(t *testing.T) {
	out := MkResponse(nil, nil)
	require.JSONEq(t, `{"errors":[{"message":"Invalid query"}]}`, string(out))
}

func TestMkResponse_ErrorsAndDataBothPresent(t *testing.T) {
	out := MkResponse([]byte(`{"a":1}`), []result.Problem{{Message: "boom"}})
	require.JSONEq(t, `{"errors":[{"message":"boom"}],"data":{"a":1}}`, string(out))
}

func TestMkResponse_DataOnlyOmitsErrorsKey(t *testing.T) {
	out := MkResponse([]byte(`{"a":1}`), nil)
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &env))
	_, hasErrors := env["errors"]
	require.False(t, hasErrors)
	require.JSONEq(t, `{"a":1}`, string(env["data"]))
}
