package remote

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver_types"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/schema"
)

// fakeCaller decodes the request Struct back into an evalRequest, hands it
// to respond, and encodes whatever evalResponse respond returns as the
// reply Struct — exercising the same Struct<->JSON round trip a real gRPC
// server would see on the wire, without a network.
type fakeCaller struct {
	calls   int
	respond func(req evalRequest) evalResponse
}

func (f *fakeCaller) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	f.calls++
	raw, err := proto.Marshal(request.Interface())
	if err != nil {
		return nil, err
	}
	var reqStruct structpb.Struct
	if err := proto.Unmarshal(raw, &reqStruct); err != nil {
		return nil, err
	}
	reqJSON, err := json.Marshal(reqStruct.AsMap())
	if err != nil {
		return nil, err
	}
	var req evalRequest
	if err := json.Unmarshal(reqJSON, &req); err != nil {
		return nil, err
	}

	resp := f.respond(req)
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var respMap map[string]any
	if err := json.Unmarshal(respJSON, &respMap); err != nil {
		return nil, err
	}
	respStruct, err := structpb.NewStruct(respMap)
	if err != nil {
		return nil, err
	}
	return respStruct.ProtoReflect(), nil
}

func testSchema() *schema.Schema {
	queryType := schema.Object("Query", nil, &schema.Field{Name: "widget", Type: schema.Named("Widget")})
	widgetType := schema.Object("Widget", nil,
		&schema.Field{Name: "id", Type: schema.Scalar("ID")},
		&schema.Field{Name: "name", Type: schema.Scalar("String")},
	)
	return schema.New("Query", "", "", queryType, widgetType)
}

func TestToWireSelection_SimpleSelect(t *testing.T) {
	q := query.PossiblyRenamedSelect(
		query.Select("widget", map[string]any{"id": "w1"}, query.Select("name", nil, nil)),
		"widget",
	)
	w, _, err := toWireSelection(q, cursor.Env{})
	require.NoError(t, err)
	require.Equal(t, "widget", w.Field)
	require.Equal(t, "widget", w.Alias)
	require.Equal(t, "w1", w.Args["id"])
	require.Len(t, w.Children, 1)
	require.Equal(t, "name", w.Children[0].Field)
}

func TestToWireSelection_RejectsUnsupportedKinds(t *testing.T) {
	_, _, err := toWireSelection(query.Unique(query.Select("x", nil, nil)), cursor.Env{})
	require.Error(t, err)
}

func TestMapping_RunRootValues_BatchesIntoOneCall(t *testing.T) {
	sch := testSchema()
	fc := &fakeCaller{
		respond: func(req evalRequest) evalResponse {
			out := make([]wireResult, len(req.Selections))
			for i, sel := range req.Selections {
				out[i] = wireResult{Data: map[string]any{"id": sel.Args["id"], "name": "Widget " + sel.Args["id"].(string)}}
			}
			return evalResponse{Results: out}
		},
	}
	transport, err := NewTransport(fc)
	require.NoError(t, err)
	m := New(sch, transport)

	triples := make([]driver_types.RootQueryTriple, 3)
	for i, id := range []string{"a", "b", "c"} {
		triples[i] = driver_types.RootQueryTriple{
			Query: query.PossiblyRenamedSelect(
				query.Select("widget", map[string]any{"id": id}, query.Select("name", nil, nil)),
				"widget",
			),
			RootType: sch.RootType(sch.QueryType),
			Env:      cursor.Env{},
		}
	}

	problems, nodes := m.RunRootValues(triples)
	require.Empty(t, problems)
	require.Len(t, nodes, 3)
	require.Equal(t, 1, fc.calls, "all three triples should collapse into a single Evaluate call")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(nodes[1].JSON, &decoded))
	require.Equal(t, "Widget b", decoded["name"])
}

func TestMapping_RunRootValue_Single(t *testing.T) {
	sch := testSchema()
	fc := &fakeCaller{
		respond: func(req evalRequest) evalResponse {
			return evalResponse{Results: []wireResult{{Data: map[string]any{"id": "w1", "name": "Widget One"}}}}
		},
	}
	transport, err := NewTransport(fc)
	require.NoError(t, err)
	m := New(sch, transport)

	q := query.PossiblyRenamedSelect(
		query.Select("widget", map[string]any{"id": "w1"}, query.Select("name", nil, nil)),
		"widget",
	)
	r := m.RunRootValue(q, sch.RootType(sch.QueryType), cursor.Env{})
	v, ok := r.Value()
	require.True(t, ok)
	require.Equal(t, 1, fc.calls)
	_ = v
}
