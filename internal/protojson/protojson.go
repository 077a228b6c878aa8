// Package protojson implements the partial-result tree produced by the
// per-stage evaluator (spec.md §3, §4.B). ProtoJson is modeled as an
// explicit tagged variant — not an opaque parent with an unchecked downcast
// (design note §9) — so isDeferred is a tag check and the collapse rule is
// enforced by the smart constructors rather than by the reader.
package protojson

import (
	"bytes"
	"encoding/json"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/schema"
)

// Kind discriminates the ProtoJson sum type.
type Kind int

const (
	KindConcrete Kind = iota
	KindStaged
	KindObject
	KindArray
	KindSelect
)

// Field is one (name, value) pair of a partial object; order is insertion
// order, which for a query evaluation is query/selection order (spec.md §4.E
// ordering guarantee).
type Field struct {
	Name  string
	Value *Node
}

// Node is a ProtoJson value. Exactly one of the Kind-selected fields is
// populated for a given Node, enforced by only ever constructing Node values
// through the package's smart constructors.
type Node struct {
	Kind Kind

	// Concrete
	JSON json.RawMessage

	// Staged — deferred subtree owned by Interpreter, to be evaluated by it
	// from Query, RootType and Env in a later completion stage.
	Interpreter query.Interpreter
	Query       *query.Query
	RootType    *schema.Type
	Env         cursor.Env

	// Object
	Fields []Field

	// Array
	Elems []*Node

	// Select — project FieldName out of Inner once Inner materializes.
	Inner     *Node
	FieldName string
}

var null = json.RawMessage("null")

// Concrete wraps a fully-materialized JSON value.
func Concrete(raw json.RawMessage) *Node {
	if raw == nil {
		raw = null
	}
	return &Node{Kind: KindConcrete, JSON: raw}
}

// Null is the concrete JSON null value.
func Null() *Node { return Concrete(null) }

// Staged builds a deferred subtree handle owned by interp. Two Staged nodes
// built from identical arguments are still distinct Go pointers: the
// completion engine's gather/scatter passes depend on that reference
// identity (spec.md §3's identity invariant), not on structural equality.
func Staged(interp query.Interpreter, q *query.Query, rootTpe *schema.Type, env cursor.Env) *Node {
	return &Node{Kind: KindStaged, Interpreter: interp, Query: q, RootType: rootTpe, Env: env}
}

// FromFields builds a partial object from fields, collapsing to Concrete if
// every field's value is already Concrete (the collapse invariant,
// spec.md §4.B).
func FromFields(fields []Field) *Node {
	concreteFields := make([]string, 0, len(fields))
	allConcrete := true
	for _, f := range fields {
		if f.Value.Kind != KindConcrete {
			allConcrete = false
			break
		}
	}
	if allConcrete {
		buf := make([]byte, 0, 64)
		buf = append(buf, '{')
		for i, f := range fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			key, _ := json.Marshal(f.Name)
			buf = append(buf, key...)
			buf = append(buf, ':')
			buf = append(buf, f.Value.JSON...)
			concreteFields = append(concreteFields, f.Name)
		}
		buf = append(buf, '}')
		return Concrete(buf)
	}
	return &Node{Kind: KindObject, Fields: fields}
}

// FromValues builds a partial array from elems, collapsing to Concrete if
// every element is already Concrete.
func FromValues(elems []*Node) *Node {
	allConcrete := true
	for _, e := range elems {
		if e.Kind != KindConcrete {
			allConcrete = false
			break
		}
	}
	if allConcrete {
		buf := make([]byte, 0, 64)
		buf = append(buf, '[')
		for i, e := range elems {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, e.JSON...)
		}
		buf = append(buf, ']')
		return Concrete(buf)
	}
	return &Node{Kind: KindArray, Elems: elems}
}

// Select projects fieldName out of inner once inner materializes, collapsing
// immediately if inner is already Concrete.
func Select(inner *Node, fieldName string) *Node {
	if inner.Kind == KindConcrete {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(inner.JSON, &obj); err != nil {
			return Null()
		}
		v, ok := obj[fieldName]
		if !ok {
			return Null()
		}
		return Concrete(v)
	}
	return &Node{Kind: KindSelect, Inner: inner, FieldName: fieldName}
}

// IsDeferred reports whether pj is a Staged node. It is not recursive: a
// PObject containing a Staged field is not itself deferred.
func IsDeferred(pj *Node) bool { return pj.Kind == KindStaged }

// MergeObjects flattens a list of object-shaped ProtoJsons into a single
// object preserving insertion order; non-object entries are skipped; empty
// input yields Null (spec.md §4.B).
func MergeObjects(nodes []*Node) *Node {
	var fields []Field
	for _, n := range nodes {
		switch n.Kind {
		case KindObject:
			fields = append(fields, n.Fields...)
		case KindConcrete:
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(n.JSON, &obj); err != nil {
				continue
			}
			for _, k := range orderedKeys(n.JSON) {
				fields = append(fields, Field{Name: k, Value: Concrete(obj[k])})
			}
		}
	}
	if len(fields) == 0 {
		return Null()
	}
	return FromFields(fields)
}

// orderedKeys extracts object key order from raw JSON using the decoder's
// token stream, since encoding/json's map decoding loses insertion order.
func orderedKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			break
		}
		key, _ := keyTok.(string)
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			break
		}
	}
	return keys
}
