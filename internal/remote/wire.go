package remote

import (
	"fmt"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
)

// wireSelection is the JSON-shaped (and therefore google.protobuf.Struct
// shaped) mirror of the subset of query.Query that can cross a process
// boundary: plain field selections, renames, grouping and counting.
// Component/Defer (they name a local Interpreter value), Unique/Narrow
// (type-system decisions the local schema already made) and
// FilterOrderByOffsetLimit (its Pred is an arbitrary Term tree) do not have
// a wire form here — see DESIGN.md for why that pushdown is out of scope
// for this bridge. A Query built entirely from the plain-field constructors
// (the common shape a Join function produces for a delegated subtree)
// always converts cleanly.
type wireSelection struct {
	Field      string           `json:"field,omitempty"`
	Alias      string           `json:"alias,omitempty"`
	Args       map[string]any   `json:"args,omitempty"`
	Children   []*wireSelection `json:"children,omitempty"`
	IsCount    bool             `json:"isCount,omitempty"`
	IsEmpty    bool             `json:"isEmpty,omitempty"`
	IsGroup    bool             `json:"isGroup,omitempty"`
	GroupItems []*wireSelection `json:"groupItems,omitempty"`
}

func toWireSelection(q *query.Query, env cursor.Env) (*wireSelection, cursor.Env, error) {
	switch q.Kind {
	case query.KindEnvironment:
		return toWireSelection(q.Child, env.WithValues(q.Env))

	case query.KindEmpty:
		return &wireSelection{IsEmpty: true}, env, nil

	case query.KindGroup:
		items := make([]*wireSelection, 0, len(q.Items))
		for _, it := range q.Items {
			w, _, err := toWireSelection(it, env)
			if err != nil {
				return nil, env, err
			}
			items = append(items, w)
		}
		return &wireSelection{IsGroup: true, GroupItems: items}, env, nil

	case query.KindPossiblyRenamedSelect:
		w, _, err := toWireSelection(q.Inner, env)
		if err != nil {
			return nil, env, err
		}
		w.Alias = q.ResultName
		return w, env, nil

	case query.KindRename:
		w, _, err := toWireSelection(q.Inner, env)
		if err != nil {
			return nil, env, err
		}
		w.Alias = q.ResultName
		return w, env, nil

	case query.KindWrap:
		w, _, err := toWireSelection(q.Child, env)
		if err != nil {
			return nil, env, err
		}
		w.Field = q.FieldName
		return w, env, nil

	case query.KindCount:
		w := &wireSelection{IsCount: true, Alias: q.ResultName}
		if q.Child != nil {
			inner, _, err := toWireSelection(q.Child, env)
			if err != nil {
				return nil, env, err
			}
			w.Children = []*wireSelection{inner}
		}
		return w, env, nil

	case query.KindSelect:
		w := &wireSelection{Field: q.FieldName, Args: q.Args}
		if q.Child != nil {
			child, _, err := toWireSelection(q.Child, env)
			if err != nil {
				return nil, env, err
			}
			if child.IsGroup {
				w.Children = child.GroupItems
			} else {
				w.Children = []*wireSelection{child}
			}
		}
		return w, env, nil

	default:
		return nil, env, fmt.Errorf("remote: query kind %d has no wire form (unique/narrow/filter/component/defer pushdown is not supported by this bridge)", q.Kind)
	}
}

// wireResult is one resolved selection's JSON data plus any problems raised
// while the remote side evaluated it.
type wireResult struct {
	Data     any           `json:"data"`
	Problems []wireProblem `json:"problems,omitempty"`
}

type wireProblem struct {
	Message   string   `json:"message"`
	Path      []string `json:"path,omitempty"`
	Locations []wireLoc `json:"locations,omitempty"`
}

type wireLoc struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func toWireProblems(ps []result.Problem) []wireProblem {
	out := make([]wireProblem, 0, len(ps))
	for _, p := range ps {
		wp := wireProblem{Message: p.Message, Path: p.Path}
		for _, l := range p.Locations {
			wp.Locations = append(wp.Locations, wireLoc{Line: l.Line, Column: l.Column})
		}
		out = append(out, wp)
	}
	return out
}

func fromWireProblems(ps []wireProblem) []result.Problem {
	out := make([]result.Problem, 0, len(ps))
	for _, p := range ps {
		rp := result.Problem{Message: p.Message, Path: p.Path}
		for _, l := range p.Locations {
			rp.Locations = append(rp.Locations, result.Location{Line: l.Line, Column: l.Column})
		}
		out = append(out, rp)
	}
	return out
}
