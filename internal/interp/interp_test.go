package interp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/interp"
	"github.com/hanpama/compositegraph/internal/memmap"
	"github.com/hanpama/compositegraph/internal/predicate"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/schema"
)

type city struct {
	ID         int
	Name       string
	Population int
}

type cityResolver struct{}

func (cityResolver) TypeNameOf(any) string { return "City" }

func (cityResolver) FieldValue(value any, fieldName string) (any, error) {
	c := value.(*city)
	switch fieldName {
	case "id":
		return c.ID, nil
	case "name":
		return c.Name, nil
	case "population":
		return c.Population, nil
	}
	return nil, nil
}

// cityFixture builds the schema/mapping pair every test in this file shares:
// a "cities" root field (List(City), non-null) and a "firstCity" root field
// (City, a single direct object, no list/Unique involved) over five cities
// whose populations are [10,50,30,20,40].
func cityFixture(t *testing.T) (*schema.Type, *memmap.Mapping) {
	t.Helper()
	cityType := schema.Object("City", nil,
		&schema.Field{Name: "id", Type: schema.Scalar("Int")},
		&schema.Field{Name: "name", Type: schema.Scalar("String")},
		&schema.Field{Name: "population", Type: schema.Scalar("Int")},
	)
	queryType := schema.Object("Query", nil,
		&schema.Field{Name: "firstCity", Type: cityType},
		&schema.Field{Name: "cities", Type: schema.List(cityType)},
	)
	sch := schema.New("Query", "", "", queryType, cityType)

	cities := []any{
		&city{ID: 1, Name: "Kabul", Population: 10},
		&city{ID: 2, Name: "Qandahar", Population: 50},
		&city{ID: 3, Name: "Herat", Population: 30},
		&city{ID: 4, Name: "Mazar", Population: 20},
		&city{ID: 5, Name: "Jalalabad", Population: 40},
	}
	m := memmap.New(sch, cityResolver{}, map[string]any{
		"firstCity": cities[1],
		"cities":    cities,
	})
	return queryType, m
}

func rootCursor(t *testing.T, m *memmap.Mapping, fieldName string) cursor.Cursor {
	t.Helper()
	rc := m.RootCursor(context.Background(), fieldName, nil, nil, cursor.Env{})
	rcv, ok := rc.Value()
	require.True(t, ok, "RootCursor(%q) failed: %v", fieldName, rc.Problems())
	return rcv.Cursor
}

func selectField(name string) *query.Query {
	return query.PossiblyRenamedSelect(query.Select(name, nil, nil), name)
}

// TestRunValue_PreservesLeafTypes is law 1: a field's evaluated JSON keeps
// the shape dictated by its declared scalar type (a string stays a quoted
// string, an int stays a bare number) rather than collapsing to one
// representation.
func TestRunValue_PreservesLeafTypes(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "firstCity")

	q := query.Group(selectField("id"), selectField("name"), selectField("population"))
	fieldTpe := queryType.Field("firstCity").Type

	r := interp.RunValue(q, fieldTpe, c)
	require.Empty(t, r.Problems())
	node, ok := r.Value()
	require.True(t, ok)
	require.JSONEq(t, `{"id":2,"name":"Qandahar","population":50}`, string(node.JSON))
}

// TestRunValue_ListPreservesSourceOrder is law 4: with no
// FilterOrderByOffsetLimit in play, list evaluation yields elements in the
// cursor's own iteration order.
func TestRunValue_ListPreservesSourceOrder(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "cities")
	fieldTpe := queryType.Field("cities").Type

	r := interp.RunValue(selectField("population"), fieldTpe, c)
	require.Empty(t, r.Problems())
	node, ok := r.Value()
	require.True(t, ok)
	require.JSONEq(t, `[{"population":10},{"population":50},{"population":30},{"population":20},{"population":40}]`, string(node.JSON))
}

type floatWitness struct{}

func (floatWitness) Less(a, b any) bool  { return a.(float64) < b.(float64) }
func (floatWitness) Equal(a, b any) bool { return a.(float64) == b.(float64) }

func populationGreaterThan(n float64) predicate.Predicate {
	return predicate.Gt[any](floatWitness{}, predicate.NewUniquePath("population"), predicate.NewConst[any](n))
}

// TestRunValue_FilterOrderByOffsetLimit is scenario S6: filtering to
// population > 15, ordering by population descending, then an offset of 1
// and a limit of 2 over [10,50,30,20,40] yields [40,30].
func TestRunValue_FilterOrderByOffsetLimit(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "cities")
	fieldTpe := queryType.Field("cities").Type

	offset, limit := 1, 2
	order := &query.OrderSelection{Fields: []query.OrderField{{Path: []string{"population"}, Descending: true}}}
	q := query.FilterOrderByOffsetLimit(populationGreaterThan(15), order, &offset, &limit, selectField("population"))

	r := interp.RunValue(q, fieldTpe, c)
	require.Empty(t, r.Problems())
	node, ok := r.Value()
	require.True(t, ok)
	require.JSONEq(t, `[{"population":40},{"population":30}]`, string(node.JSON))
}

// TestRunValue_UniqueSingleMatch exercises the ordinary Unique collapse: a
// filter matching exactly one element yields that element directly.
func TestRunValue_UniqueSingleMatch(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "cities")
	listTpe := queryType.Field("cities").Type // List(City), non-nullable

	child := query.FilterOrderByOffsetLimit(populationGreaterThan(45), nil, nil, nil, selectField("name"))
	q := query.Unique(child)

	r := interp.RunValue(q, listTpe, c)
	require.Empty(t, r.Problems())
	node, ok := r.Value()
	require.True(t, ok)
	require.JSONEq(t, `{"name":"Qandahar"}`, string(node.JSON))
}

// TestRunValue_UniqueNoMatchNullable is scenario S4: Unique over a nullable
// list position with no match yields Null without error.
func TestRunValue_UniqueNoMatchNullable(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "cities")
	listTpe := queryType.Field("cities").Type
	nullableTpe := schema.Nullable(listTpe)

	child := query.FilterOrderByOffsetLimit(populationGreaterThan(1000), nil, nil, nil, selectField("name"))
	q := query.Unique(child)

	r := interp.RunValue(q, nullableTpe, c)
	require.Empty(t, r.Problems())
	node, ok := r.Value()
	require.True(t, ok)
	require.JSONEq(t, `null`, string(node.JSON))
}

// TestRunValue_UniqueNoMatchNonNullable is the non-nullable counterpart: a
// Unique position that must match exactly one element fails outright when
// nothing does.
func TestRunValue_UniqueNoMatchNonNullable(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "cities")
	listTpe := queryType.Field("cities").Type

	child := query.FilterOrderByOffsetLimit(populationGreaterThan(1000), nil, nil, nil, selectField("name"))
	q := query.Unique(child)

	r := interp.RunValue(q, listTpe, c)
	_, ok := r.Value()
	require.False(t, ok)
	require.Len(t, r.Problems(), 1)
	require.Equal(t, "No match", r.Problems()[0].Message)
}

// TestRunValue_UniqueMultipleMatches is scenario S5: two or more matches
// collapses to an error ("Multiple matches") with no usable data.
func TestRunValue_UniqueMultipleMatches(t *testing.T) {
	queryType, m := cityFixture(t)
	c := rootCursor(t, m, "cities")
	listTpe := queryType.Field("cities").Type

	child := query.FilterOrderByOffsetLimit(populationGreaterThan(15), nil, nil, nil, selectField("name"))
	q := query.Unique(child)

	r := interp.RunValue(q, listTpe, c)
	_, ok := r.Value()
	require.False(t, ok)
	require.Len(t, r.Problems(), 1)
	require.Equal(t, "Multiple matches", r.Problems()[0].Message)
}
