// Package elaborate is a deliberately minimal, non-validating lowering from
// GraphQL request text to query.Query (spec.md §1/§6: the real elaborator is
// an external collaborator). It exists only to drive demos and integration
// tests from GraphQL text instead of hand-built Query trees.
//
// It parses with gqlparser (the teacher's own parser dependency, wrapped the
// way internal/language wraps ast.* types) and does not implement fragment
// spreading, directives, or full validation — those belong to the real
// elaborator.
package elaborate

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/schema"
)

// ComponentTable maps a root field name to the Interpreter it should be
// delegated to via query.Component, and the join function that rewrites the
// child selection into that interpreter's query shape. A field absent from
// the table is elaborated as a plain Select against the local schema.
type ComponentTable map[string]ComponentEntry

type ComponentEntry struct {
	Interpreter query.Interpreter
	Join        query.JoinFunc
}

// Elaborate parses src as a GraphQL operation (the first one found, like the
// teacher's own getOperation) and lowers its selection set into a query.Query
// Group, resolving root fields against rootTpe and components.
func Elaborate(src string, rootTpe *schema.Type, sch *schema.Schema, components ComponentTable) (*query.Query, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: src, Name: "request"})
	if err != nil {
		return nil, fmt.Errorf("elaborate: parse error: %w", err)
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("elaborate: no operation found")
	}
	op := doc.Operations[0]

	items, err := lowerSelectionSet(op.SelectionSet, rootTpe, sch, components, true)
	if err != nil {
		return nil, err
	}
	return query.Group(items...), nil
}

func lowerSelectionSet(set ast.SelectionSet, tpe *schema.Type, sch *schema.Schema, components ComponentTable, isRoot bool) ([]*query.Query, error) {
	var out []*query.Query
	for _, sel := range set {
		f, ok := sel.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("elaborate: only plain field selections are supported (no fragment spreading)")
		}
		resultName := f.Alias
		if resultName == "" {
			resultName = f.Name
		}

		if f.Name == "__typename" {
			child := query.Select(f.Name, nil, nil)
			out = append(out, query.PossiblyRenamedSelect(child, resultName))
			continue
		}

		if isRoot && (f.Name == "__schema" || f.Name == "__type") {
			args := make(map[string]any, len(f.Arguments))
			for _, a := range f.Arguments {
				v, err := literalValue(a.Value)
				if err != nil {
					return nil, err
				}
				args[a.Name] = v
			}
			selectNode := query.Select(f.Name, args, nil)
			renamed := query.PossiblyRenamedSelect(selectNode, resultName)
			out = append(out, query.Introspect(sch, renamed))
			continue
		}

		dealiased := tpe.Dealias()
		if sch != nil {
			dealiased = sch.Resolve(dealiased)
		}
		fieldDef := dealiased.Field(f.Name)
		if fieldDef == nil {
			return nil, fmt.Errorf("elaborate: unknown field %q on type %s", f.Name, dealiased.Name)
		}

		args := make(map[string]any, len(f.Arguments))
		for _, a := range f.Arguments {
			v, err := literalValue(a.Value)
			if err != nil {
				return nil, err
			}
			args[a.Name] = v
		}

		if isRoot && components != nil {
			if entry, ok := components[f.Name]; ok {
				childItems, err := lowerSelectionSet(f.SelectionSet, fieldDef.Type, sch, components, false)
				if err != nil {
					return nil, err
				}
				grouped := groupOrSingle(childItems)
				selectNode := query.Select(f.Name, args, grouped)
				renamed := query.PossiblyRenamedSelect(selectNode, resultName)
				comp := query.Component(entry.Interpreter, entry.Join, renamed)
				out = append(out, query.Wrap(resultName, comp))
				continue
			}
		}

		var child *query.Query
		if len(f.SelectionSet) > 0 {
			childItems, err := lowerSelectionSet(f.SelectionSet, fieldDef.Type, sch, components, false)
			if err != nil {
				return nil, err
			}
			child = groupOrSingle(childItems)
		}
		selectNode := query.Select(f.Name, args, child)
		out = append(out, query.PossiblyRenamedSelect(selectNode, resultName))
	}
	return out, nil
}

func groupOrSingle(items []*query.Query) *query.Query {
	if len(items) == 1 {
		return items[0]
	}
	return query.Group(items...)
}

func literalValue(v *ast.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case ast.IntValue, ast.FloatValue:
		return v.Raw, nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, nil
	case ast.BooleanValue:
		return v.Raw == "true", nil
	case ast.NullValue:
		return nil, nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			lv, err := literalValue(c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, lv)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			lv, err := literalValue(c.Value)
			if err != nil {
				return nil, err
			}
			out[c.Name] = lv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("elaborate: variables are not supported by this shim")
	}
}
