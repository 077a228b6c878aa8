package predicate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/result"
)

type intWitness struct{}

// nonConstTerm is a Term[int] that isn't a Const, used to exercise
// FromEqls' "right side must be Const" rejection.
type nonConstTerm struct{}

func (nonConstTerm) Eval(cursor.Cursor) result.Result[int] { return result.Success(0) }
func (nonConstTerm) Children() []AnyTerm                  { return nil }

func (intWitness) Less(a, b int) bool  { return a < b }
func (intWitness) Equal(a, b int) bool { return a == b }

func TestAndList_AbsorbsFalseAndDropsTrue(t *testing.T) {
	got := AndList([]Predicate{True, False, True})
	require.Equal(t, False, got)
}

func TestAndList_EmptyIsTrue(t *testing.T) {
	require.Equal(t, True, AndList(nil))
}

func TestOrList_AbsorbsTrueAndDropsFalse(t *testing.T) {
	got := OrList([]Predicate{False, True, False})
	require.Equal(t, True, got)
}

func TestOrList_EmptyIsFalse(t *testing.T) {
	require.Equal(t, False, OrList(nil))
}

func TestFromEqls_RewritesSharedLeftTermToIn(t *testing.T) {
	w := intWitness{}
	x := NewConst(5)

	eqls := []Eql[int]{
		NewEql(w, x, NewConst(1)),
		NewEql(w, x, NewConst(2)),
		NewEql(w, x, NewConst(5)),
	}
	pred, ok := FromEqls(w, eqls)
	require.True(t, ok)

	r := pred.Eval(nil)
	v, present := r.Value()
	require.True(t, present)
	require.True(t, v, "5 should match the Const(5) branch of the rewritten In")
}

func TestFromEqls_NoMatchEvaluatesFalse(t *testing.T) {
	w := intWitness{}
	x := NewConst(7)

	eqls := []Eql[int]{
		NewEql(w, x, NewConst(1)),
		NewEql(w, x, NewConst(2)),
	}
	pred, ok := FromEqls(w, eqls)
	require.True(t, ok)

	v, present := pred.Eval(nil).Value()
	require.True(t, present)
	require.False(t, v)
}

func TestFromEqls_RejectsDifferingLeftTerms(t *testing.T) {
	w := intWitness{}
	eqls := []Eql[int]{
		NewEql(w, NewConst(1), NewConst(9)),
		NewEql(w, NewConst(2), NewConst(9)),
	}
	_, ok := FromEqls(w, eqls)
	require.False(t, ok)
}

func TestFromEqls_RejectsNonConstRightSide(t *testing.T) {
	w := intWitness{}
	x := NewConst(1)
	eqls := []Eql[int]{
		NewEql(w, x, NewConst(9)),
		NewEql(w, x, nonConstTerm{}), // right side isn't a Const
	}
	_, ok := FromEqls(w, eqls)
	require.False(t, ok)
}

func TestFromEqls_EmptyIsRejected(t *testing.T) {
	_, ok := FromEqls[int](intWitness{}, nil)
	require.False(t, ok)
}
