package protojson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromFields_CollapsesWhenAllConcrete(t *testing.T) {
	node := FromFields([]Field{
		{Name: "a", Value: Concrete(json.RawMessage(`1`))},
		{Name: "b", Value: Concrete(json.RawMessage(`"two"`))},
	})
	require.Equal(t, KindConcrete, node.Kind)
	require.JSONEq(t, `{"a":1,"b":"two"}`, string(node.JSON))
}

func TestFromFields_StaysPartialWhenAnyFieldDeferred(t *testing.T) {
	staged := Staged(nil, nil, nil, nil)
	node := FromFields([]Field{
		{Name: "a", Value: Concrete(json.RawMessage(`1`))},
		{Name: "b", Value: staged},
	})
	require.Equal(t, KindObject, node.Kind)
	require.False(t, IsDeferred(node), "an object with a deferred field is not itself deferred")
	require.True(t, IsDeferred(node.Fields[1].Value))
}

func TestFromValues_CollapsesWhenAllConcrete(t *testing.T) {
	node := FromValues([]*Node{
		Concrete(json.RawMessage(`1`)),
		Concrete(json.RawMessage(`2`)),
	})
	require.Equal(t, KindConcrete, node.Kind)
	require.JSONEq(t, `[1,2]`, string(node.JSON))
}

func TestFromValues_StaysPartialWhenAnyElemDeferred(t *testing.T) {
	node := FromValues([]*Node{
		Concrete(json.RawMessage(`1`)),
		Staged(nil, nil, nil, nil),
	})
	require.Equal(t, KindArray, node.Kind)
}

func TestSelect_CollapsesOnConcreteInner(t *testing.T) {
	inner := Concrete(json.RawMessage(`{"name":"Qandahar","population":400000}`))
	node := Select(inner, "name")
	require.Equal(t, KindConcrete, node.Kind)
	require.JSONEq(t, `"Qandahar"`, string(node.JSON))
}

func TestSelect_MissingFieldIsNull(t *testing.T) {
	inner := Concrete(json.RawMessage(`{"name":"Qandahar"}`))
	node := Select(inner, "population")
	require.Equal(t, KindConcrete, node.Kind)
	require.JSONEq(t, `null`, string(node.JSON))
}

func TestSelect_StaysPartialWhenInnerDeferred(t *testing.T) {
	node := Select(Staged(nil, nil, nil, nil), "name")
	require.Equal(t, KindSelect, node.Kind)
}

func TestMergeObjects_FlattensAndPreservesOrder(t *testing.T) {
	node := MergeObjects([]*Node{
		Concrete(json.RawMessage(`{"a":1}`)),
		Concrete(json.RawMessage(`{"b":2}`)),
	})
	require.Equal(t, KindConcrete, node.Kind)
	require.JSONEq(t, `{"a":1,"b":2}`, string(node.JSON))
}

func TestMergeObjects_EmptyIsNull(t *testing.T) {
	node := MergeObjects(nil)
	require.JSONEq(t, `null`, string(node.JSON))
}

func TestMergeObjects_SingleIsUnchanged(t *testing.T) {
	node := MergeObjects([]*Node{Concrete(json.RawMessage(`{"x":1}`))})
	require.JSONEq(t, `{"x":1}`, string(node.JSON))
}

func TestMergeObjects_LaterDuplicateWins(t *testing.T) {
	// MergeObjects only flattens fields; duplicate-key precedence among
	// JSON object literals is encoding/json's own last-key-wins behavior
	// once the flattened field list round-trips through FromFields.
	node := MergeObjects([]*Node{
		Concrete(json.RawMessage(`{"a":1}`)),
		Concrete(json.RawMessage(`{"a":2}`)),
	})
	require.JSONEq(t, `{"a":2}`, string(node.JSON))
}

func TestIsDeferred(t *testing.T) {
	require.True(t, IsDeferred(Staged(nil, nil, nil, nil)))
	require.False(t, IsDeferred(Concrete(json.RawMessage(`1`))))
	require.False(t, IsDeferred(Null()))
}
