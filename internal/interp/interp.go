// Package interp implements the per-stage evaluator: runValue, runFields and
// runList (spec.md §4.C). It walks a query.Query node against a cursor and
// an expected schema.Type, producing a protojson.Node.
package interp

import (
	"encoding/json"
	"sort"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/predicate"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
)

// cursorCompatible is the precondition every dispatch rule checks first: the
// cursor must actually be positioned at (a type compatible with) tpe.
func cursorCompatible(tpe *schema.Type, cursorTpe *schema.Type) bool {
	if tpe == nil || cursorTpe == nil {
		return false
	}
	return schema.Sub(cursorTpe, tpe) || schema.NominalEq(cursorTpe, tpe)
}

// RunValue dispatches on (query, tpe.Dealias()) per the 13 rules of spec.md
// §4.C, in order.
func RunValue(q *query.Query, tpe *schema.Type, c cursor.Cursor) result.Result[*protojson.Node] {
	// A name reference (schema.Named, possibly under List/Nullable) has no
	// structure of its own; when the cursor's resolved type names the same
	// type, evaluate against the cursor's type instead.
	if ct := c.Tpe(); tpe != nil && ct != nil {
		ref, cur := tpe, ct
		for (ref.Kind == schema.KindList || ref.Kind == schema.KindNullable) && ref.Of != nil {
			ref = ref.Of
		}
		for (cur.Kind == schema.KindList || cur.Kind == schema.KindNullable) && cur.Of != nil {
			cur = cur.Of
		}
		if ref.Kind == schema.KindNamed && cur.Name == ref.RefName {
			tpe = ct
		}
	}
	dealiased := tpe.Dealias()

	if !cursorCompatible(dealiased, c.Tpe()) {
		return result.Failuref[*protojson.Node]("mismatched query and cursor type: expected %s, cursor is %s", dealiased.Name, c.Tpe().Name)
	}

	// A leaf field with no sub-selection elaborates to a nil child (see
	// elaborate.lowerSelectionSet); normalize it to EmptyQuery so the Kind
	// checks below see a concrete, comparable tag instead of dereferencing nil.
	if q == nil {
		q = query.EmptyQuery
	}

	// 2. Environment(env, child)
	if q.Kind == query.KindEnvironment {
		return RunValue(q.Child, tpe, c.WithEnv(q.Env))
	}

	// 3. Wrap(_, Component(...)) over ListType(T): map element-wise under the
	// list, preserving the Wrap wrapper per element.
	if q.Kind == query.KindWrap && q.Child.Kind == query.KindComponent && dealiased.Kind == schema.KindList {
		return runWrappedComponentOverList(q, dealiased, c)
	}

	// 4. Wrap(_, Defer(...)) with a null cursor -> Concrete(Null).
	if q.Kind == query.KindWrap && q.Child.Kind == query.KindDefer {
		if dealiased.Kind == schema.KindNullable {
			opt := c.AsNullable()
			ov, ok := opt.Value()
			if ok && !ov.Present {
				return result.Both(protojson.Null(), opt.Problems()...)
			}
		}
	}

	// 5. Wrap(fieldName, child) -> single-field object.
	if q.Kind == query.KindWrap {
		inner := RunValue(q.Child, tpe, c)
		iv, ok := inner.Value()
		if !ok {
			return result.Failure[*protojson.Node](inner.Problems()...)
		}
		node := protojson.FromFields([]protojson.Field{{Name: q.FieldName, Value: iv}})
		return result.Both(node, inner.Problems()...)
	}

	// 6. Component(otherMapping, join, PossiblyRenamedSelect(child, resultName))
	if q.Kind == query.KindComponent {
		return runComponent(q, tpe, c)
	}

	// 7. Defer(join, child, rootTpe)
	if q.Kind == query.KindDefer {
		return runDefer(q, c)
	}

	// 8. Unique(child)
	if q.Kind == query.KindUnique {
		pre := c.Preunique()
		pc, ok := pre.Value()
		if !ok {
			return result.Failure[*protojson.Node](pre.Problems()...)
		}
		listR := pc.AsList(cursor.Collector{Unique: true})
		it, ok := listR.Value()
		if !ok {
			return result.Failure[*protojson.Node](append(pre.Problems(), listR.Problems()...)...)
		}
		items := cursor.Drain(it)
		// Unique sits over a ListType(T) cursor: tpe is ListType(T) or
		// NullableType(ListType(T)) depending on whether zero matches is
		// legal. dealiased has already had that outer NullableType stripped,
		// so its Item() gives T; tpe (not dealiased) still carries the
		// nullability dealiased lost.
		return result.Combine(
			runList(q.Child, dealiased.Item(), items, true, tpe.IsNullable()),
			append(pre.Problems(), listR.Problems()...)...,
		)
	}

	// 9. ListType(elemT)
	if dealiased.Kind == schema.KindList {
		listR := c.AsList(cursor.Collector{})
		it, ok := listR.Value()
		if !ok {
			return result.Failure[*protojson.Node](listR.Problems()...)
		}
		items := cursor.Drain(it)
		return result.Combine(runList(q, dealiased.Item(), items, false, false), listR.Problems()...)
	}

	// 10. NullableType(innerT)
	if dealiased.Kind == schema.KindNullable {
		opt := c.AsNullable()
		ov, ok := opt.Value()
		if !ok {
			return result.Failure[*protojson.Node](opt.Problems()...)
		}
		if !ov.Present {
			return result.Both(protojson.Null(), opt.Problems()...)
		}
		return result.Combine(RunValue(q, dealiased.Of, ov.Cursor), opt.Problems()...)
	}

	// 11. ScalarType | EnumType
	if dealiased.IsLeaf() {
		leaf := c.AsLeaf()
		raw, ok := leaf.Value()
		if !ok {
			return result.Failure[*protojson.Node](leaf.Problems()...)
		}
		return result.Both(protojson.Concrete(raw), leaf.Problems()...)
	}

	// 12. ObjectType | InterfaceType | UnionType
	if dealiased.Kind == schema.KindObject || dealiased.Kind == schema.KindInterface || dealiased.Kind == schema.KindUnion {
		fr := runFields(q, dealiased, c)
		fields, ok := fr.Value()
		if !ok {
			return result.Failure[*protojson.Node](fr.Problems()...)
		}
		return result.Both(protojson.FromFields(fields), fr.Problems()...)
	}

	return result.Failuref[*protojson.Node]("stuck at type %s", dealiased.Name)
}

func runWrappedComponentOverList(q *query.Query, listTpe *schema.Type, c cursor.Cursor) result.Result[*protojson.Node] {
	listR := c.AsList(cursor.Collector{})
	it, ok := listR.Value()
	if !ok {
		return result.Failure[*protojson.Node](listR.Problems()...)
	}
	items := cursor.Drain(it)
	elemTpe := listTpe.Item()
	elems := make([]*protojson.Node, 0, len(items))
	var problems []result.Problem
	problems = append(problems, listR.Problems()...)
	for _, item := range items {
		r := RunValue(q, elemTpe, item)
		v, ok := r.Value()
		problems = append(problems, r.Problems()...)
		if !ok {
			return result.Failure[*protojson.Node](problems...)
		}
		elems = append(elems, v)
	}
	return result.Both(protojson.FromValues(elems), problems...)
}

func runComponent(q *query.Query, tpe *schema.Type, c cursor.Cursor) result.Result[*protojson.Node] {
	sel := q.Child
	if sel.Kind != query.KindPossiblyRenamedSelect {
		return result.Failuref[*protojson.Node]("Component child must be a possibly-renamed select")
	}
	joined := q.Join(c, sel.Inner)
	jq, ok := joined.Value()
	if !ok {
		return result.Failure[*protojson.Node](joined.Problems()...)
	}

	if jq.Kind == query.KindGroup {
		elems := make([]*protojson.Node, 0, len(jq.Items))
		for _, cont := range jq.Items {
			rootName := continuationRootName(cont)
			itemTpe := tpe
			if dealiased := tpe.Dealias(); dealiased.Kind == schema.KindList {
				itemTpe = dealiased.Item()
			}
			staged := protojson.Staged(q.OtherInterpreter, cont, itemTpe, c.FullEnv())
			elems = append(elems, protojson.Select(staged, rootName))
		}
		return result.Both(protojson.FromValues(elems), joined.Problems()...)
	}

	renamed := query.Rename(sel.ResultName, jq)
	staged := protojson.Staged(q.OtherInterpreter, renamed, tpe, c.FullEnv())
	return result.Both(staged, joined.Problems()...)
}

func runDefer(q *query.Query, c cursor.Cursor) result.Result[*protojson.Node] {
	if c.IsNullable() {
		opt := c.AsNullable()
		ov, ok := opt.Value()
		if ok && !ov.Present {
			return result.Both(protojson.Null(), opt.Problems()...)
		}
		if !ok {
			return result.Failure[*protojson.Node](opt.Problems()...)
		}
		c = ov.Cursor
	}
	joined := q.DeferJoin(c, q.Child)
	cont, ok := joined.Value()
	if !ok {
		return result.Failure[*protojson.Node](joined.Problems()...)
	}
	return result.Both(protojson.Staged(selfInterpreter{}, cont, q.RootType, c.FullEnv()), joined.Problems()...)
}

// selfInterpreter is a marker used when Defer stages a continuation back to
// the same interpreter that is currently running; the driver substitutes the
// real interpreter instance before the completion engine dispatches it.
type selfInterpreter struct{}

func (selfInterpreter) RunRootValue(q *query.Query, rootTpe *schema.Type, env cursor.Env) result.Result[any] {
	panic("interp: selfInterpreter placeholder must be substituted by the driver before use")
}

func continuationRootName(q *query.Query) string {
	switch q.Kind {
	case query.KindPossiblyRenamedSelect:
		return q.ResultName
	case query.KindSelect:
		return q.FieldName
	case query.KindRename:
		return q.ResultName
	default:
		return ""
	}
}

// runFields implements spec.md §4.C's field-list evaluator.
func runFields(q *query.Query, tpe *schema.Type, c cursor.Cursor) result.Result[[]protojson.Field] {
	switch q.Kind {
	case query.KindNarrow:
		if !c.NarrowsTo(q.ConcreteType) {
			return result.Success[[]protojson.Field](nil)
		}
		narrowed := c.Narrow(q.ConcreteType)
		nc, ok := narrowed.Value()
		if !ok {
			return result.Failure[[]protojson.Field](narrowed.Problems()...)
		}
		return result.Combine(runFields(q.Child, tpe, nc), narrowed.Problems()...)

	case query.KindIntrospect:
		if isTypenameSelect(q.Child) {
			return runTypenameIntrospection(q, tpe, c)
		}
		return runFields(q.Child, tpe, c)

	case query.KindPossiblyRenamedSelect:
		if tpe.Kind == schema.KindNullable {
			opt := c.AsNullable()
			ov, ok := opt.Value()
			if !ok {
				return result.Failure[[]protojson.Field](opt.Problems()...)
			}
			if !ov.Present {
				return result.Both([]protojson.Field{{Name: q.ResultName, Value: protojson.Null()}}, opt.Problems()...)
			}
			return result.Combine(runFields(q, tpe.Of, ov.Cursor), opt.Problems()...)
		}
		sel := q.Inner
		if sel.Kind != query.KindSelect {
			return result.Failuref[[]protojson.Field]("PossiblyRenamedSelect must wrap a Select")
		}
		fieldTpe := fieldType(tpe, sel.FieldName)
		if fieldTpe == nil {
			return result.Failuref[[]protojson.Field]("unknown field %q on type %s", sel.FieldName, tpe.Name)
		}
		resultName := q.ResultName
		fr := c.Field(sel.FieldName, &resultName)
		fc, ok := fr.Value()
		if !ok {
			return result.Failure[[]protojson.Field](fr.Problems()...)
		}
		vr := RunValue(sel.Child, fieldTpe, fc)
		v, ok := vr.Value()
		problems := append(append([]result.Problem{}, fr.Problems()...), vr.Problems()...)
		if !ok {
			return result.Failure[[]protojson.Field](problems...)
		}
		return result.Both([]protojson.Field{{Name: q.ResultName, Value: v}}, problems...)

	case query.KindRename:
		if q.Inner.Kind == query.KindWrap {
			rewritten := query.Wrap(q.ResultName, q.Inner.Child)
			return runFields(rewritten, tpe, c)
		}
		if q.Inner.Kind == query.KindCount {
			rewritten := query.Count(q.ResultName, q.Inner.Child)
			return runFields(rewritten, tpe, c)
		}
		return result.Failuref[[]protojson.Field]("Rename must wrap Wrap or Count")

	case query.KindWrap:
		vr := RunValue(q.Child, tpe, c)
		v, ok := vr.Value()
		if !ok {
			return result.Failure[[]protojson.Field](vr.Problems()...)
		}
		return result.Both([]protojson.Field{{Name: q.FieldName, Value: v}}, vr.Problems()...)

	case query.KindCount:
		return runCount(q, tpe, c)

	case query.KindGroup:
		var all []protojson.Field
		var problems []result.Problem
		for _, sibling := range q.Items {
			r := runFields(sibling, tpe, c)
			v, ok := r.Value()
			problems = append(problems, r.Problems()...)
			if !ok {
				return result.Failure[[]protojson.Field](problems...)
			}
			all = append(all, v...)
		}
		return result.Both(all, problems...)

	case query.KindEnvironment:
		return runFields(q.Child, tpe, c.WithEnv(q.Env))

	default:
		return result.Failuref[[]protojson.Field]("runFields: unexpected query kind %d", q.Kind)
	}
}

func isTypenameSelect(q *query.Query) bool {
	return q.Kind == query.KindPossiblyRenamedSelect &&
		q.Inner != nil && q.Inner.Kind == query.KindSelect && q.Inner.FieldName == "__typename"
}

func runTypenameIntrospection(q *query.Query, tpe *schema.Type, c cursor.Cursor) result.Result[[]protojson.Field] {
	resultName := q.Child.ResultName
	typeName := tpe.Name
	if tpe.Kind == schema.KindInterface || tpe.Kind == schema.KindUnion {
		matched := ""
		for _, name := range tpe.PossibleTypeNames {
			if c.NarrowsTo(name) {
				matched = name
				break
			}
		}
		if matched == "" {
			return result.Failuref[[]protojson.Field]("no possible type of %s narrows the current cursor", tpe.Name)
		}
		typeName = matched
	}
	raw, _ := json.Marshal(typeName)
	return result.Success([]protojson.Field{{Name: resultName, Value: protojson.Concrete(raw)}})
}

func runCount(q *query.Query, tpe *schema.Type, c cursor.Cursor) result.Result[[]protojson.Field] {
	sel := q.Child
	if sel.Kind != query.KindSelect {
		return result.Failuref[[]protojson.Field]("Count child must be a Select")
	}
	fieldTpe := fieldType(tpe, sel.FieldName)
	if fieldTpe == nil {
		return result.Failuref[[]protojson.Field]("unknown field %q on type %s", sel.FieldName, tpe.Name)
	}
	fr := c.Field(sel.FieldName, nil)
	fc, ok := fr.Value()
	if !ok {
		return result.Failure[[]protojson.Field](fr.Problems()...)
	}

	count, problems, ok := countValue(fieldTpe, fc)
	problems = append(fr.Problems(), problems...)
	if !ok {
		return result.Failure[[]protojson.Field](problems...)
	}
	raw, _ := json.Marshal(count)
	return result.Both([]protojson.Field{{Name: q.ResultName, Value: protojson.Concrete(raw)}}, problems...)
}

func countValue(tpe *schema.Type, c cursor.Cursor) (int, []result.Problem, bool) {
	dealiased := tpe.Dealias()
	if dealiased.Kind == schema.KindNullable {
		opt := c.AsNullable()
		ov, ok := opt.Value()
		if !ok {
			return 0, opt.Problems(), false
		}
		if !ov.Present {
			return 0, opt.Problems(), true
		}
		return countValue(dealiased.Of, ov.Cursor)
	}
	if dealiased.Kind == schema.KindList {
		listR := c.AsList(cursor.Collector{})
		it, ok := listR.Value()
		if !ok {
			return 0, listR.Problems(), false
		}
		return len(cursor.Drain(it)), listR.Problems(), true
	}
	return 1, nil, true
}

func fieldType(tpe *schema.Type, name string) *schema.Type {
	f := tpe.Field(name)
	if f == nil {
		return nil
	}
	return f.Type
}

// runList implements spec.md §4.C's list evaluator: optional filter/order/
// offset/limit transform, followed by per-element evaluation and, for the
// Unique case, collapse to a single element or an absence/multiplicity error.
func runList(q *query.Query, elemTpe *schema.Type, cursors []cursor.Cursor, unique bool, nullable bool) result.Result[*protojson.Node] {
	child := q
	var problems []result.Problem

	if q.Kind == query.KindFilterOrderByOffsetLimit {
		child = q.Child
		if q.Pred != nil {
			filtered := make([]cursor.Cursor, 0, len(cursors))
			for _, cur := range cursors {
				keep := q.Pred.Eval(cur)
				kv, ok := keep.Value()
				if !ok {
					return result.Failure[*protojson.Node](keep.Problems()...)
				}
				problems = append(problems, keep.Problems()...)
				if kv {
					filtered = append(filtered, cur)
				}
			}
			cursors = filtered
		}
		if q.Order != nil {
			cursors = sortCursors(cursors, q.Order)
		}
		start, end := 0, len(cursors)
		if q.Offset != nil {
			start = clampIndex(*q.Offset, len(cursors))
		}
		if q.Limit != nil {
			limEnd := start + *q.Limit
			if limEnd < end {
				end = clampIndex(limEnd, len(cursors))
			}
		}
		if start > end {
			start = end
		}
		cursors = cursors[start:end]
	}

	values := make([]*protojson.Node, 0, len(cursors))
	for _, cur := range cursors {
		if !cursorCompatible(elemTpe, cur.Tpe()) {
			return result.Failuref[*protojson.Node]("mismatched query and cursor type in list: expected %s, cursor is %s", elemTpe.Name, cur.Tpe().Name)
		}
		r := RunValue(child, elemTpe, cur)
		v, ok := r.Value()
		problems = append(problems, r.Problems()...)
		if !ok {
			return result.Failure[*protojson.Node](problems...)
		}
		values = append(values, v)
	}

	if !unique {
		return result.Both(protojson.FromValues(values), problems...)
	}

	switch len(values) {
	case 1:
		return result.Both(values[0], problems...)
	case 0:
		if nullable {
			return result.Both(protojson.Null(), problems...)
		}
		return result.Failure[*protojson.Node](append(problems, result.Problem{Message: "No match"})...)
	default:
		return result.Failure[*protojson.Node](append(problems, result.Problem{Message: "Multiple matches"})...)
	}
}

func clampIndex(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

func sortCursors(cursors []cursor.Cursor, order *query.OrderSelection) []cursor.Cursor {
	out := make([]cursor.Cursor, len(cursors))
	copy(out, cursors)
	sort.SliceStable(out, func(i, j int) bool {
		for _, f := range order.Fields {
			cmp := compareAt(out[i], out[j], f.Path)
			if cmp == 0 {
				continue
			}
			if f.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}

// compareAt compares two cursors at a field path using predicate.UniquePath
// as the accessor, so ordering reuses the same path-navigation semantics
// filtering does.
func compareAt(a, b cursor.Cursor, path []string) int {
	av := predicate.NewUniquePath(path...).Eval(a)
	bv := predicate.NewUniquePath(path...).Eval(b)
	avv, aok := av.Value()
	bvv, bok := bv.Value()
	if !aok || !bok {
		return 0
	}
	return compareAny(avv, bvv)
}

func compareAny(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	default:
		return 0
	}
}
