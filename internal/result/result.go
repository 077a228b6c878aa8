// Package result implements the accumulating either used throughout the
// interpreter: an operation can fail outright, succeed outright, or succeed
// with a best-effort value while still recording problems along the way.
package result

import "fmt"

// Problem is a structured, GraphQL-shaped error.
type Problem struct {
	Message   string
	Locations []Location
	Path      []string
}

// Location is a 1-based line/column position in the original query text.
type Location struct {
	Line   int
	Column int
}

func (p Problem) Error() string { return p.Message }

// Result is Ior<[]Problem, A>: it holds problems, a value, or both.
//
// The three shapes:
//   - errors only:  Ok()==false, has no usable Value
//   - value only:   Ok()==true,  Problems is empty
//   - both:         Ok()==true,  Problems is non-empty (best-effort value)
type Result[A any] struct {
	problems []Problem
	value    A
	hasValue bool
}

// Success wraps a value with no problems.
func Success[A any](v A) Result[A] {
	return Result[A]{value: v, hasValue: true}
}

// Failure produces a problems-only result with no usable value.
func Failure[A any](problems ...Problem) Result[A] {
	if len(problems) == 0 {
		panic("result.Failure: at least one problem is required")
	}
	return Result[A]{problems: problems}
}

// Failuref is a convenience constructor for a single-message failure.
func Failuref[A any](format string, args ...any) Result[A] {
	return Failure[A](Problem{Message: fmt.Sprintf(format, args...)})
}

// Both returns a best-effort value together with accumulated problems.
func Both[A any](v A, problems ...Problem) Result[A] {
	if len(problems) == 0 {
		return Success(v)
	}
	return Result[A]{value: v, hasValue: true, problems: problems}
}

// Ok reports whether a usable value is present (value-only or both shape).
func (r Result[A]) Ok() bool { return r.hasValue }

// HasProblems reports whether any problems were accumulated.
func (r Result[A]) HasProblems() bool { return len(r.problems) > 0 }

// Problems returns the accumulated problem chain, possibly empty.
func (r Result[A]) Problems() []Problem { return r.problems }

// Value returns the best-effort value and whether one is present.
func (r Result[A]) Value() (A, bool) { return r.value, r.hasValue }

// ValueOrZero returns the value if present, else the zero value of A.
func (r Result[A]) ValueOrZero() A { return r.value }

// WithPath prefixes every accumulated problem's path with the given segment.
func (r Result[A]) WithPath(segment string) Result[A] {
	if len(r.problems) == 0 {
		return r
	}
	out := make([]Problem, len(r.problems))
	for i, p := range r.problems {
		np := make([]string, 0, len(p.Path)+1)
		np = append(np, segment)
		np = append(np, p.Path...)
		p.Path = np
		out[i] = p
	}
	r.problems = out
	return r
}

// Map transforms the value in place, preserving problems. A problems-only
// result is untouched.
func Map[A, B any](r Result[A], f func(A) B) Result[B] {
	if !r.hasValue {
		return Result[B]{problems: r.problems}
	}
	return Result[B]{value: f(r.value), hasValue: true, problems: r.problems}
}

// FlatMap sequences two Results, accumulating problems from both. If r has no
// value, its problems are returned without invoking f.
func FlatMap[A, B any](r Result[A], f func(A) Result[B]) Result[B] {
	if !r.hasValue {
		return Result[B]{problems: r.problems}
	}
	next := f(r.value)
	if len(r.problems) == 0 {
		return next
	}
	merged := make([]Problem, 0, len(r.problems)+len(next.problems))
	merged = append(merged, r.problems...)
	merged = append(merged, next.problems...)
	return Result[B]{value: next.value, hasValue: next.hasValue, problems: merged}
}

// Combine merges the problems of two results that are otherwise independent,
// keeping a's value as the result's value (used when a later step's errors
// still belong alongside an already-computed best-effort value).
func Combine[A any](a Result[A], extra ...Problem) Result[A] {
	if len(extra) == 0 {
		return a
	}
	merged := make([]Problem, 0, len(a.problems)+len(extra))
	merged = append(merged, a.problems...)
	merged = append(merged, extra...)
	a.problems = merged
	return a
}

// Sequence collects a slice of Results into a Result of slice, accumulating
// problems across all elements. Unlike FlatMap-chaining, a failing element
// does not stop later elements from being evaluated and contributing their
// own problems (matches runList's per-element accumulation semantics at the
// call site, which decides whether a "hard" abort is appropriate).
func Sequence[A any](rs []Result[A]) Result[[]A] {
	out := make([]A, 0, len(rs))
	var problems []Problem
	ok := true
	for _, r := range rs {
		if r.hasValue {
			out = append(out, r.value)
		} else {
			ok = false
		}
		problems = append(problems, r.problems...)
	}
	if !ok && len(out) == 0 {
		return Result[[]A]{problems: problems}
	}
	return Result[[]A]{value: out, hasValue: true, problems: problems}
}
