// Package predicate implements the reified term/predicate algebra used as
// filter expressions during list evaluation (spec.md §4.A). Terms are not
// opaque closures: they are an inspectable, closed algebraic value so that
// backends can lower them to a query language fragment (e.g. SQL WHERE)
// instead of only evaluating them in memory (design note §9).
package predicate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/result"
)

// Term evaluates, against a Cursor, to a typed value. T is the Go
// representation of the term's result type (bool, string, float64, []any...).
type Term[T any] interface {
	// Eval computes the term's value against c.
	Eval(c cursor.Cursor) result.Result[T]
	// Children returns this term's immediate subterms for generic traversal.
	Children() []AnyTerm
}

// AnyTerm erases Term's type parameter so heterogeneous subterms (a Const[int]
// under an And of Predicates, say) can share one Children() slice.
type AnyTerm interface {
	Children() []AnyTerm
}

// Predicate is exactly Term[bool].
type Predicate = Term[bool]

// --- generic traversal helpers ---

// Fold performs a depth-first, pre-order reduction over t and its subterms.
func Fold[A any](t AnyTerm, acc A, f func(A, AnyTerm) A) A {
	acc = f(acc, t)
	for _, c := range t.Children() {
		acc = Fold(c, acc, f)
	}
	return acc
}

// Exists reports whether t or any subterm satisfies pred.
func Exists(t AnyTerm, pred func(AnyTerm) bool) bool {
	if pred(t) {
		return true
	}
	for _, c := range t.Children() {
		if Exists(c, pred) {
			return true
		}
	}
	return false
}

// Forall reports whether t and every subterm satisfy pred.
func Forall(t AnyTerm, pred func(AnyTerm) bool) bool {
	if !pred(t) {
		return false
	}
	for _, c := range t.Children() {
		if !Forall(c, pred) {
			return false
		}
	}
	return true
}

// --- Const ---

type Const[T any] struct{ Value T }

func NewConst[T any](v T) Const[T] { return Const[T]{Value: v} }

func (c Const[T]) Eval(cursor.Cursor) result.Result[T] { return result.Success(c.Value) }
func (c Const[T]) Children() []AnyTerm                 { return nil }

// --- path accessors ---

// UniquePath evaluates to the single scalar reached by cursor.ListPath(path);
// it is an error if zero or more than one leaf is reached.
type UniquePath struct {
	Path []string
}

func NewUniquePath(path ...string) UniquePath { return UniquePath{Path: path} }

func (p UniquePath) Eval(c cursor.Cursor) result.Result[any] {
	r := c.ListPath(p.Path)
	cursors, ok := r.Value()
	if !ok {
		return result.Failure[any](r.Problems()...)
	}
	if len(cursors) != 1 {
		problems := append(append([]result.Problem{}, r.Problems()...),
			result.Problem{Message: fmt.Sprintf("expected exactly one element for path %s, got %d", strings.Join(p.Path, "."), len(cursors))})
		return result.Failure[any](problems...)
	}
	leaf := cursors[0].AsLeaf()
	raw, ok := leaf.Value()
	problems := append(append([]result.Problem{}, r.Problems()...), leaf.Problems()...)
	if !ok {
		return result.Failure[any](problems...)
	}
	v, err := decodeJSON(raw)
	if err != nil {
		problems = append(problems, result.Problem{Message: err.Error()})
		return result.Failure[any](problems...)
	}
	return result.Both(v, problems...)
}

func (p UniquePath) Children() []AnyTerm { return nil }

// ListPath evaluates to the list of scalars at cursor.FlatListPath(path).
type ListPath struct {
	Path []string
}

func NewListPath(path ...string) ListPath { return ListPath{Path: path} }

func (p ListPath) Eval(c cursor.Cursor) result.Result[[]any] {
	r := c.FlatListPath(p.Path)
	cursors, ok := r.Value()
	if !ok {
		return result.Failure[[]any](r.Problems()...)
	}
	out := make([]any, 0, len(cursors))
	problems := append([]result.Problem{}, r.Problems()...)
	for _, cc := range cursors {
		leaf := cc.AsLeaf()
		raw, ok := leaf.Value()
		problems = append(problems, leaf.Problems()...)
		if !ok {
			continue
		}
		v, err := decodeJSON(raw)
		if err != nil {
			problems = append(problems, result.Problem{Message: err.Error()})
			continue
		}
		out = append(out, v)
	}
	return result.Both(out, problems...)
}

func (p ListPath) Children() []AnyTerm { return nil }

// --- boolean connectives ---

type trueT struct{}
type falseT struct{}

// True and False are the boolean constants.
var True Predicate = trueT{}
var False Predicate = falseT{}

func (trueT) Eval(cursor.Cursor) result.Result[bool]  { return result.Success(true) }
func (trueT) Children() []AnyTerm                     { return nil }
func (falseT) Eval(cursor.Cursor) result.Result[bool] { return result.Success(false) }
func (falseT) Children() []AnyTerm                    { return nil }

type andT struct{ x, y Predicate }
type orT struct{ x, y Predicate }
type notT struct{ x Predicate }

func And(x, y Predicate) Predicate { return andT{x, y} }
func Or(x, y Predicate) Predicate  { return orT{x, y} }
func Not(x Predicate) Predicate    { return notT{x} }

func (a andT) Eval(c cursor.Cursor) result.Result[bool] {
	xr := a.x.Eval(c)
	xv, xok := xr.Value()
	if xok && !xv {
		return result.Both(false, xr.Problems()...)
	}
	yr := a.y.Eval(c)
	yv, yok := yr.Value()
	problems := append(append([]result.Problem{}, xr.Problems()...), yr.Problems()...)
	if !xok || !yok {
		return result.Failure[bool](problems...)
	}
	return result.Both(xv && yv, problems...)
}
func (a andT) Children() []AnyTerm { return []AnyTerm{a.x, a.y} }

func (o orT) Eval(c cursor.Cursor) result.Result[bool] {
	xr := o.x.Eval(c)
	xv, xok := xr.Value()
	if xok && xv {
		return result.Both(true, xr.Problems()...)
	}
	yr := o.y.Eval(c)
	yv, yok := yr.Value()
	problems := append(append([]result.Problem{}, xr.Problems()...), yr.Problems()...)
	if !xok || !yok {
		return result.Failure[bool](problems...)
	}
	return result.Both(xv || yv, problems...)
}
func (o orT) Children() []AnyTerm { return []AnyTerm{o.x, o.y} }

func (n notT) Eval(c cursor.Cursor) result.Result[bool] {
	return result.Map(n.x.Eval(c), func(b bool) bool { return !b })
}
func (n notT) Children() []AnyTerm { return []AnyTerm{n.x} }

// AndList is the smart combinator: absorbing/identity simplification at
// construction time per spec.md §4.A (AndList(nil)==True, False absorbs).
func AndList(terms []Predicate) Predicate {
	var out []Predicate
	for _, t := range terms {
		if t == False {
			return False
		}
		if t == True {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return True
	}
	acc := out[0]
	for _, t := range out[1:] {
		acc = And(acc, t)
	}
	return acc
}

// OrList is the smart combinator dual to AndList.
func OrList(terms []Predicate) Predicate {
	var out []Predicate
	for _, t := range terms {
		if t == True {
			return True
		}
		if t == False {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return False
	}
	acc := out[0]
	for _, t := range out[1:] {
		acc = Or(acc, t)
	}
	return acc
}

// --- comparisons ---

// Ordered is the witness a comparison term carries for its operand type,
// standing in for a typeclass dictionary (Go has no native Ord).
type Ordered[T any] interface {
	Less(a, b T) bool
	Equal(a, b T) bool
}

// Eql is the equality term; exported (rather than an unexported struct) so
// FromEqls can accept a slice of already-built equalities to optimize.
type Eql[T any] struct {
	Witness Ordered[T]
	X, Y    Term[T]
}

func NewEql[T any](witness Ordered[T], x, y Term[T]) Eql[T] { return Eql[T]{witness, x, y} }

func (e Eql[T]) Eval(c cursor.Cursor) result.Result[bool] {
	return evalBinary(c, e.X, e.Y, func(a, b T) bool { return e.Witness.Equal(a, b) })
}
func (e Eql[T]) Children() []AnyTerm { return []AnyTerm{e.X, e.Y} }

type neqlT[T any] struct {
	witness Ordered[T]
	x, y    Term[T]
}

func NEql[T any](witness Ordered[T], x, y Term[T]) Predicate { return neqlT[T]{witness, x, y} }
func (n neqlT[T]) Eval(c cursor.Cursor) result.Result[bool] {
	return evalBinary(c, n.x, n.y, func(a, b T) bool { return !n.witness.Equal(a, b) })
}
func (n neqlT[T]) Children() []AnyTerm { return []AnyTerm{n.x, n.y} }

type ltT[T any] struct {
	witness Ordered[T]
	x, y    Term[T]
	orEqual bool
}

func Lt[T any](witness Ordered[T], x, y Term[T]) Predicate { return ltT[T]{witness, x, y, false} }
func LtEql[T any](witness Ordered[T], x, y Term[T]) Predicate {
	return ltT[T]{witness, x, y, true}
}
func (l ltT[T]) Eval(c cursor.Cursor) result.Result[bool] {
	return evalBinary(c, l.x, l.y, func(a, b T) bool {
		if l.orEqual && l.witness.Equal(a, b) {
			return true
		}
		return l.witness.Less(a, b)
	})
}
func (l ltT[T]) Children() []AnyTerm { return []AnyTerm{l.x, l.y} }

type gtT[T any] struct {
	witness Ordered[T]
	x, y    Term[T]
	orEqual bool
}

func Gt[T any](witness Ordered[T], x, y Term[T]) Predicate { return gtT[T]{witness, x, y, false} }
func GtEql[T any](witness Ordered[T], x, y Term[T]) Predicate {
	return gtT[T]{witness, x, y, true}
}
func (g gtT[T]) Eval(c cursor.Cursor) result.Result[bool] {
	return evalBinary(c, g.x, g.y, func(a, b T) bool {
		if g.orEqual && g.witness.Equal(a, b) {
			return true
		}
		return g.witness.Less(b, a)
	})
}
func (g gtT[T]) Children() []AnyTerm { return []AnyTerm{g.x, g.y} }

// Contains reports whether elem is a member of list's evaluated slice.
type containsT[T any] struct {
	witness Ordered[T]
	list    Term[[]T]
	elem    Term[T]
}

func Contains[T any](witness Ordered[T], list Term[[]T], elem Term[T]) Predicate {
	return containsT[T]{witness, list, elem}
}
func (cn containsT[T]) Eval(c cursor.Cursor) result.Result[bool] {
	lr := cn.list.Eval(c)
	er := cn.elem.Eval(c)
	lv, lok := lr.Value()
	ev, eok := er.Value()
	problems := append(append([]result.Problem{}, lr.Problems()...), er.Problems()...)
	if !lok || !eok {
		return result.Failure[bool](problems...)
	}
	found := false
	for _, v := range lv {
		if cn.witness.Equal(v, ev) {
			found = true
			break
		}
	}
	return result.Both(found, problems...)
}
func (cn containsT[T]) Children() []AnyTerm { return []AnyTerm{cn.list, cn.elem} }

// In reports whether term's value equals one of values.
type inT[T any] struct {
	witness Ordered[T]
	term    Term[T]
	values  []Term[T]
}

func In[T any](witness Ordered[T], term Term[T], values []Term[T]) Predicate {
	return inT[T]{witness, term, values}
}
func (in inT[T]) Eval(c cursor.Cursor) result.Result[bool] {
	tr := in.term.Eval(c)
	tv, ok := tr.Value()
	problems := append([]result.Problem{}, tr.Problems()...)
	if !ok {
		return result.Failure[bool](problems...)
	}
	for _, valTerm := range in.values {
		vr := valTerm.Eval(c)
		problems = append(problems, vr.Problems()...)
		vv, ok := vr.Value()
		if ok && in.witness.Equal(tv, vv) {
			return result.Both(true, problems...)
		}
	}
	return result.Both(false, problems...)
}
func (in inT[T]) Children() []AnyTerm {
	out := make([]AnyTerm, 0, len(in.values)+1)
	out = append(out, in.term)
	for _, v := range in.values {
		out = append(out, v)
	}
	return out
}

// FromEqls recognizes a list of equalities path = c1, path = c2, … sharing
// the same left-hand term and rewrites it to a single In (spec.md §4.A
// optimizer contract). Returns (nil, false) if the terms don't share a left
// term or any right-hand side isn't a Const.
func FromEqls[T any](witness Ordered[T], eqls []Eql[T]) (Predicate, bool) {
	if len(eqls) == 0 {
		return nil, false
	}
	first := eqls[0].X
	values := make([]Term[T], 0, len(eqls))
	for _, e := range eqls {
		if !sameTerm(e.X, first) {
			return nil, false
		}
		if _, ok := e.Y.(Const[T]); !ok {
			return nil, false
		}
		values = append(values, e.Y)
	}
	return In(witness, first, values), true
}

func sameTerm[T any](a, b Term[T]) bool {
	// Structural comparison suffices for the path-accessor terms this
	// optimizer targets (UniquePath/ListPath/Const); reference identity would
	// be too strict since callers often rebuild an equivalent term per clause.
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

// --- IsNull ---

// AnyOptionalTerm is any term whose Eval reports a presence flag; used to
// decouple IsNull from the specific optional representation the backend
// chooses.
type AnyOptionalTerm interface {
	AnyTerm
	EvalPresent(c cursor.Cursor) result.Result[bool]
}

type isNullT struct {
	inner  AnyOptionalTerm
	isNull bool
}

func IsNull(term AnyOptionalTerm, isNull bool) Predicate { return isNullT{term, isNull} }

func (n isNullT) Eval(c cursor.Cursor) result.Result[bool] {
	return result.Map(n.inner.EvalPresent(c), func(present bool) bool {
		return present == !n.isNull
	})
}
func (n isNullT) Children() []AnyTerm { return []AnyTerm{n.inner} }

// --- string operations ---

type matchesT struct {
	term  Term[string]
	regex *regexp.Regexp
}

func Matches(term Term[string], pattern string) Predicate {
	return matchesT{term: term, regex: regexp.MustCompile(pattern)}
}
func (m matchesT) Eval(c cursor.Cursor) result.Result[bool] {
	return result.Map(m.term.Eval(c), func(s string) bool { return m.regex.MatchString(s) })
}
func (m matchesT) Children() []AnyTerm { return []AnyTerm{m.term} }

type startsWithT struct {
	term   Term[string]
	prefix string
}

func StartsWith(term Term[string], prefix string) Predicate { return startsWithT{term, prefix} }
func (s startsWithT) Eval(c cursor.Cursor) result.Result[bool] {
	return result.Map(s.term.Eval(c), func(v string) bool { return strings.HasPrefix(v, s.prefix) })
}
func (s startsWithT) Children() []AnyTerm { return []AnyTerm{s.term} }

type toUpperT struct{ term Term[string] }
type toLowerT struct{ term Term[string] }

func ToUpperCase(term Term[string]) Term[string] { return toUpperT{term} }
func ToLowerCase(term Term[string]) Term[string] { return toLowerT{term} }

func (t toUpperT) Eval(c cursor.Cursor) result.Result[string] {
	return result.Map(t.term.Eval(c), strings.ToUpper)
}
func (t toUpperT) Children() []AnyTerm { return []AnyTerm{t.term} }

func (t toLowerT) Eval(c cursor.Cursor) result.Result[string] {
	return result.Map(t.term.Eval(c), strings.ToLower)
}
func (t toLowerT) Children() []AnyTerm { return []AnyTerm{t.term} }

// --- bitwise over integer terms ---

type andB struct{ x, y Term[int64] }
type orB struct{ x, y Term[int64] }
type xorB struct{ x, y Term[int64] }
type notB struct{ x Term[int64] }

func AndB(x, y Term[int64]) Term[int64] { return andB{x, y} }
func OrB(x, y Term[int64]) Term[int64]  { return orB{x, y} }
func XorB(x, y Term[int64]) Term[int64] { return xorB{x, y} }
func NotB(x Term[int64]) Term[int64]    { return notB{x} }

func (b andB) Eval(c cursor.Cursor) result.Result[int64] {
	return evalBinary(c, b.x, b.y, func(a, b int64) int64 { return a & b })
}
func (b andB) Children() []AnyTerm { return []AnyTerm{b.x, b.y} }

func (b orB) Eval(c cursor.Cursor) result.Result[int64] {
	return evalBinary(c, b.x, b.y, func(a, b int64) int64 { return a | b })
}
func (b orB) Children() []AnyTerm { return []AnyTerm{b.x, b.y} }

func (b xorB) Eval(c cursor.Cursor) result.Result[int64] {
	return evalBinary(c, b.x, b.y, func(a, b int64) int64 { return a ^ b })
}
func (b xorB) Children() []AnyTerm { return []AnyTerm{b.x, b.y} }

func (b notB) Eval(c cursor.Cursor) result.Result[int64] {
	return result.Map(b.x.Eval(c), func(v int64) int64 { return ^v })
}
func (b notB) Children() []AnyTerm { return []AnyTerm{b.x} }

// --- shared helpers ---

func evalBinary[A, B any](c cursor.Cursor, x Term[A], y Term[A], combine func(A, A) B) result.Result[B] {
	xr := x.Eval(c)
	yr := y.Eval(c)
	xv, xok := xr.Value()
	yv, yok := yr.Value()
	problems := append(append([]result.Problem{}, xr.Problems()...), yr.Problems()...)
	if !xok || !yok {
		return result.Failure[B](problems...)
	}
	return result.Both(combine(xv, yv), problems...)
}

func decodeJSON(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
