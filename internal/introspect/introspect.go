// Package introspect is the built-in introspection Mapping: it answers
// __schema and __type(name) root fields by reflecting over a schema.Schema,
// independent of any backend. It is grounded on the teacher's
// internal/introspection package for the overall __Type/__Field traversal
// shape, and on movio-bramble's resolveType/resolveField/resolveEnumValue
// family in execution.go for the field-by-field dispatch idiom.
package introspect

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver_types"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// Interpreter answers introspection root fields directly, without ever
// staging a subtree: the schema is already fully in memory, so there is
// nothing to defer.
type Interpreter struct {
	Schema *schema.Schema
}

func New(sch *schema.Schema) *Interpreter { return &Interpreter{Schema: sch} }

func (ip *Interpreter) RunRootValue(q *query.Query, rootTpe *schema.Type, env cursor.Env) result.Result[any] {
	node, err := ip.evalRoot(q)
	if err != nil {
		return result.Failuref[any]("introspect: %v", err)
	}
	return result.Success[any](node)
}

func (ip *Interpreter) RunRootValues(triples []driver_types.RootQueryTriple) ([]result.Problem, []*protojson.Node) {
	var problems []result.Problem
	nodes := make([]*protojson.Node, len(triples))
	for i, t := range triples {
		n, err := ip.evalRoot(t.Query)
		if err != nil {
			problems = append(problems, result.Problem{Message: err.Error()})
			n = protojson.Null()
		}
		nodes[i] = n
	}
	return problems, nodes
}

// evalRoot unwraps the Environment/PossiblyRenamedSelect/Select shell
// elaborators use for a `__schema` or `__type` root field and builds the
// concrete introspection JSON for it.
func (ip *Interpreter) evalRoot(q *query.Query) (*protojson.Node, error) {
	for q.Kind == query.KindEnvironment {
		q = q.Child
	}
	if q.Kind == query.KindIntrospect {
		q = q.Child
	}
	if q.Kind != query.KindPossiblyRenamedSelect {
		return nil, errf("expected a root select, got kind %d", q.Kind)
	}
	resultName := q.ResultName
	sel := q.Inner
	if sel.Kind != query.KindSelect {
		return nil, errf("expected Select under PossiblyRenamedSelect")
	}

	switch sel.FieldName {
	case "__schema":
		raw, err := json.Marshal(ip.schemaJSON())
		if err != nil {
			return nil, err
		}
		return protojson.FromFields([]protojson.Field{{Name: resultName, Value: protojson.Concrete(raw)}}), nil
	case "__type":
		name, _ := sel.Args["name"].(string)
		t, ok := ip.Schema.Types[name]
		if !ok {
			return protojson.FromFields([]protojson.Field{{Name: resultName, Value: protojson.Null()}}), nil
		}
		raw, err := json.Marshal(ip.typeJSON(t))
		if err != nil {
			return nil, err
		}
		return protojson.FromFields([]protojson.Field{{Name: resultName, Value: protojson.Concrete(raw)}}), nil
	default:
		return nil, errf("unknown introspection root field %q", sel.FieldName)
	}
}

type schemaShape struct {
	QueryType        *typeRefShape `json:"queryType"`
	MutationType     *typeRefShape `json:"mutationType,omitempty"`
	SubscriptionType *typeRefShape `json:"subscriptionType,omitempty"`
	Types            []typeShape   `json:"types"`
}

type typeRefShape struct {
	Name string `json:"name"`
}

type typeShape struct {
	Kind          string        `json:"kind"`
	Name          string        `json:"name"`
	Fields        []fieldShape  `json:"fields,omitempty"`
	EnumValues    []string      `json:"enumValues,omitempty"`
	PossibleTypes []typeRefShape `json:"possibleTypes,omitempty"`
}

type fieldShape struct {
	Name string     `json:"name"`
	Type typeRefJSON `json:"type"`
}

// typeRefJSON renders the nullable/list wrapper structure of a field's type
// using this schema's own non-null-by-default convention, so introspection
// output is consistent with how the rest of the engine models nullability.
type typeRefJSON struct {
	Kind   string       `json:"kind"`
	Name   string       `json:"name,omitempty"`
	OfType *typeRefJSON `json:"ofType,omitempty"`
}

func (ip *Interpreter) schemaJSON() schemaShape {
	out := schemaShape{}
	if ip.Schema.QueryType != "" {
		out.QueryType = &typeRefShape{Name: ip.Schema.QueryType}
	}
	if ip.Schema.MutationType != "" {
		out.MutationType = &typeRefShape{Name: ip.Schema.MutationType}
	}
	if ip.Schema.SubscriptionType != "" {
		out.SubscriptionType = &typeRefShape{Name: ip.Schema.SubscriptionType}
	}
	names := make([]string, 0, len(ip.Schema.Types))
	for n := range ip.Schema.Types {
		names = append(names, n)
	}
	sortStrings(names)
	for _, n := range names {
		out.Types = append(out.Types, ip.typeJSON(ip.Schema.Types[n]))
	}
	return out
}

func (ip *Interpreter) typeJSON(t *schema.Type) typeShape {
	out := typeShape{Name: t.Name}
	switch t.Kind {
	case schema.KindScalar:
		out.Kind = "SCALAR"
	case schema.KindEnum:
		out.Kind = "ENUM"
		out.EnumValues = t.EnumValues
	case schema.KindObject:
		out.Kind = "OBJECT"
		out.Fields = ip.fieldsJSON(t)
	case schema.KindInterface:
		out.Kind = "INTERFACE"
		out.Fields = ip.fieldsJSON(t)
		for _, n := range t.PossibleTypeNames {
			out.PossibleTypes = append(out.PossibleTypes, typeRefShape{Name: n})
		}
	case schema.KindUnion:
		out.Kind = "UNION"
		for _, n := range t.PossibleTypeNames {
			out.PossibleTypes = append(out.PossibleTypes, typeRefShape{Name: n})
		}
	}
	return out
}

func (ip *Interpreter) fieldsJSON(t *schema.Type) []fieldShape {
	out := make([]fieldShape, 0, len(t.FieldOrd))
	for _, name := range t.FieldOrd {
		f := t.Fields[name]
		out = append(out, fieldShape{Name: name, Type: typeRefOf(f.Type)})
	}
	return out
}

func typeRefOf(t *schema.Type) typeRefJSON {
	switch t.Kind {
	case schema.KindNullable:
		inner := typeRefOf(t.Of)
		return typeRefJSON{Kind: "NULLABLE", OfType: &inner}
	case schema.KindList:
		inner := typeRefOf(t.Of)
		return typeRefJSON{Kind: "LIST", OfType: &inner}
	case schema.KindNamed:
		return typeRefJSON{Kind: "NAMED", Name: t.RefName}
	default:
		return typeRefJSON{Kind: "NAMED", Name: t.Name}
	}
}

func sortStrings(s []string) { sort.Strings(s) }

func errf(format string, args ...any) error { return fmt.Errorf(format, args...) }
