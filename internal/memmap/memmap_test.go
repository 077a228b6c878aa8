package memmap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver"
	"github.com/hanpama/compositegraph/internal/elaborate"
	"github.com/hanpama/compositegraph/internal/introspect"
	"github.com/hanpama/compositegraph/internal/memmap"
	"github.com/hanpama/compositegraph/internal/schema"
)

type country struct {
	Name string
}

type countryResolver struct{}

func (countryResolver) TypeNameOf(any) string { return "Country" }

func (countryResolver) FieldValue(value any, fieldName string) (any, error) {
	c := value.(*country)
	if fieldName == "name" {
		return c.Name, nil
	}
	return nil, nil
}

// TestRunRoot_SimpleFieldRead is scenario S1: a plain root-field read with no
// delegation or deferral, driven end to end through elaborate.Elaborate and
// driver.RunRoot against the memmap reference backend.
func TestRunRoot_SimpleFieldRead(t *testing.T) {
	countryType := schema.Object("Country", nil, &schema.Field{Name: "name", Type: schema.Scalar("String")})
	queryType := schema.Object("Query", nil, &schema.Field{Name: "country", Type: countryType})
	sch := schema.New("Query", "", "", queryType, countryType)

	m := memmap.New(sch, countryResolver{}, map[string]any{
		"country": &country{Name: "Afghanistan"},
	})

	q, err := elaborate.Elaborate(`{ country { name } }`, queryType, sch, elaborate.ComponentTable{})
	require.NoError(t, err)

	problems, body := driver.RunRoot(context.Background(), q, queryType, cursor.Env{}, m.RunRootValues, introspect.New(sch))
	require.Empty(t, problems)
	require.JSONEq(t, `{"data":{"country":{"name":"Afghanistan"}}}`, string(body))
}
