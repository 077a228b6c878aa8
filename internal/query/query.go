// Package query models the pre-elaborated query algebra the interpreter
// walks against a Cursor. Queries arrive already validated, aliased, and
// annotated with result-name information (spec.md §3) — the parser and
// type-system elaborator that produce them are external collaborators.
package query

import (
	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/predicate"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// Query is the closed query algebra (spec.md §3). It is modeled as an
// explicit tagged variant rather than a class hierarchy with unchecked
// downcasts (design note §9): exactly one of the Kind-selected fields below
// is populated for any given Query value.
type Query struct {
	Kind Kind

	// Select
	FieldName string
	Args      map[string]any
	Child     *Query

	// PossiblyRenamedSelect / Rename / Wrap
	ResultName string
	Inner      *Query

	// Group
	Items []*Query

	// Narrow
	ConcreteType string

	// Introspect
	IntrospectionSchema *schema.Schema

	// Environment
	Env cursor.Env

	// Count — ResultName is the emitted field name; Child is the inner
	// Select(countName, _, _) whose cardinality is measured.

	// FilterOrderByOffsetLimit
	Pred   predicate.Predicate
	Order  *OrderSelection
	Offset *int
	Limit  *int

	// Component
	OtherInterpreter Interpreter
	Join             JoinFunc

	// Defer
	DeferJoin JoinFunc
	RootType  *schema.Type
}

// Kind discriminates the Query sum type.
type Kind int

const (
	KindSelect Kind = iota
	KindPossiblyRenamedSelect
	KindRename
	KindWrap
	KindGroup
	KindUnique
	KindNarrow
	KindIntrospect
	KindEnvironment
	KindCount
	KindFilterOrderByOffsetLimit
	KindComponent
	KindDefer
	KindEmpty
)

// OrderSelection describes the ordering applied by FilterOrderByOffsetLimit;
// Fields are evaluated left to right, each breaking ties left by the
// preceding one.
type OrderSelection struct {
	Fields []OrderField
}

type OrderField struct {
	Path       []string
	Descending bool
}

// Interpreter and JoinFunc are declared here (rather than in package driver)
// to avoid an import cycle: Query.Component/Defer must be able to name the
// owning interpreter and its join function, and driver depends on query.
type Interpreter interface {
	RunRootValue(q *Query, rootTpe *schema.Type, env cursor.Env) result.Result[any]
}

// JoinFunc rewrites (or splits) a child query once a parent cursor is known.
// It may return a Group of parallel continuations, each with an identifiable
// root name (design note §9's open question on join-continuation shape).
type JoinFunc func(c cursor.Cursor, child *Query) result.Result[*Query]

// --- constructors ---

func Select(fieldName string, args map[string]any, child *Query) *Query {
	return &Query{Kind: KindSelect, FieldName: fieldName, Args: args, Child: child}
}

func PossiblyRenamedSelect(inner *Query, resultName string) *Query {
	return &Query{Kind: KindPossiblyRenamedSelect, Inner: inner, ResultName: resultName}
}

func Rename(resultName string, inner *Query) *Query {
	return &Query{Kind: KindRename, ResultName: resultName, Inner: inner}
}

func Wrap(fieldName string, child *Query) *Query {
	return &Query{Kind: KindWrap, FieldName: fieldName, Child: child}
}

func Group(items ...*Query) *Query {
	return &Query{Kind: KindGroup, Items: items}
}

func Unique(child *Query) *Query {
	return &Query{Kind: KindUnique, Child: child}
}

func Narrow(concreteType string, child *Query) *Query {
	return &Query{Kind: KindNarrow, ConcreteType: concreteType, Child: child}
}

func Introspect(sch *schema.Schema, child *Query) *Query {
	return &Query{Kind: KindIntrospect, IntrospectionSchema: sch, Child: child}
}

func Environment(env cursor.Env, child *Query) *Query {
	return &Query{Kind: KindEnvironment, Env: env, Child: child}
}

func Count(resultName string, child *Query) *Query {
	return &Query{Kind: KindCount, ResultName: resultName, Child: child}
}

func FilterOrderByOffsetLimit(pred predicate.Predicate, order *OrderSelection, offset, limit *int, child *Query) *Query {
	return &Query{Kind: KindFilterOrderByOffsetLimit, Pred: pred, Order: order, Offset: offset, Limit: limit, Child: child}
}

func Component(other Interpreter, join JoinFunc, child *Query) *Query {
	return &Query{Kind: KindComponent, OtherInterpreter: other, Join: join, Child: child}
}

func Defer(join JoinFunc, child *Query, rootTpe *schema.Type) *Query {
	return &Query{Kind: KindDefer, DeferJoin: join, Child: child, RootType: rootTpe}
}

var EmptyQuery = &Query{Kind: KindEmpty}
