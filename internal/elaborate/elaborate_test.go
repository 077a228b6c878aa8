package elaborate

import (
	"testing"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

func testSchema() *schema.Schema {
	widgetType := schema.Object("Widget", nil,
		&schema.Field{Name: "id", Type: schema.Scalar("ID")},
		&schema.Field{Name: "name", Type: schema.Scalar("String")},
	)
	queryType := schema.Object("Query", nil,
		&schema.Field{Name: "widget", Type: schema.Named("Widget"), Args: []string{"id"}},
	)
	return schema.New("Query", "", "", queryType, widgetType)
}

func TestElaborate_SimpleSelect(t *testing.T) {
	sch := testSchema()
	q, err := Elaborate(`{ widget(id: "w1") { id name } }`, sch.RootType(sch.QueryType), sch, nil)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	if q.Kind != query.KindGroup || len(q.Items) != 1 {
		t.Fatalf("expected a single-item group, got %+v", q)
	}
	renamed := q.Items[0]
	if renamed.Kind != query.KindPossiblyRenamedSelect || renamed.ResultName != "widget" {
		t.Fatalf("unexpected root shape: %+v", renamed)
	}
	sel := renamed.Inner
	if sel.FieldName != "widget" || sel.Args["id"] != "w1" {
		t.Fatalf("unexpected select: %+v", sel)
	}
	if len(sel.Child.Items) != 2 {
		t.Fatalf("expected 2 child selections, got %+v", sel.Child)
	}
}

func TestElaborate_UnknownFieldErrors(t *testing.T) {
	sch := testSchema()
	_, err := Elaborate(`{ nope }`, sch.RootType(sch.QueryType), sch, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestElaborate_TypenameIsBuiltin(t *testing.T) {
	sch := testSchema()
	q, err := Elaborate(`{ widget(id: "w1") { __typename id } }`, sch.RootType(sch.QueryType), sch, nil)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	sel := q.Items[0].Inner
	if sel.Child.Items[0].Inner.FieldName != "__typename" {
		t.Fatalf("expected __typename as first child, got %+v", sel.Child.Items[0])
	}
}

func TestElaborate_SchemaIntrospectionIsTaggedForRouting(t *testing.T) {
	sch := testSchema()
	q, err := Elaborate(`{ __schema { queryType { name } } }`, sch.RootType(sch.QueryType), sch, nil)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	if q.Kind != query.KindGroup || len(q.Items) != 1 {
		t.Fatalf("expected a single-item group, got %+v", q)
	}
	if q.Items[0].Kind != query.KindIntrospect {
		t.Fatalf("expected the root item to be tagged for introspection routing, got kind %d", q.Items[0].Kind)
	}
}

type stubInterpreter struct{}

func (stubInterpreter) RunRootValue(q *query.Query, rootTpe *schema.Type, env cursor.Env) result.Result[any] {
	return result.Success[any](nil)
}

func TestElaborate_ComponentDelegation(t *testing.T) {
	sch := testSchema()
	table := ComponentTable{
		"widget": {
			Interpreter: stubInterpreter{},
			Join: func(_ cursor.Cursor, child *query.Query) result.Result[*query.Query] {
				return result.Success(child)
			},
		},
	}

	q, err := Elaborate(`{ widget(id: "w1") { id } }`, sch.RootType(sch.QueryType), sch, table)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	wrap := q.Items[0]
	if wrap.Kind != query.KindWrap || wrap.FieldName != "widget" {
		t.Fatalf("expected a Wrap(widget, ...) root item, got %+v", wrap)
	}
	if wrap.Child.Kind != query.KindComponent {
		t.Fatalf("expected the wrapped child to be a Component delegation, got kind %d", wrap.Child.Kind)
	}
}
