// Package schema models the GraphQL type tree the interpreter evaluates
// against. Types are non-null by default; NullableType is the wrapper that
// opts a position into nullability (the inverse of the GraphQL-reference
// convention, where NonNull wraps) — this matches the algebra runValue
// dispatches on in spec.md §4.C.
package schema

import "fmt"

// Kind discriminates the Type sum type.
type Kind int

const (
	KindScalar Kind = iota
	KindEnum
	KindObject
	KindInterface
	KindUnion
	KindList
	KindNullable
	KindNamed // unresolved reference, see SchemaRef in Schema.Resolve
)

// Type is the closed GraphQL type algebra: ScalarType, EnumType, ObjectType,
// InterfaceType, UnionType, ListType(T), NullableType(T), and NamedType(name)
// (a SchemaRef indirection resolved against the owning Schema's type table,
// per design note §9 — this is what lets City.country and Country.cities
// refer to each other without a cyclic Go value graph).
type Type struct {
	Kind Kind

	// KindScalar / KindEnum / KindObject / KindInterface / KindUnion
	Name string

	// KindObject / KindInterface
	Fields    map[string]*Field
	FieldOrd  []string // declaration order, for introspection and field lookup stability
	Implements []string // interface names this object/interface implements

	// KindInterface / KindUnion
	PossibleTypeNames []string // schema declaration order — narrowing order depends on this

	// KindEnum
	EnumValues []string

	// KindList / KindNullable
	Of *Type

	// KindNamed
	RefName string
}

// Field describes a field of an object or interface type.
type Field struct {
	Name string
	Type *Type
	Args []string
}

// Constructors mirroring spec.md §3's Type tree.

func Scalar(name string) *Type { return &Type{Kind: KindScalar, Name: name} }
func Enum(name string, values ...string) *Type {
	return &Type{Kind: KindEnum, Name: name, EnumValues: values}
}
func List(of *Type) *Type     { return &Type{Kind: KindList, Of: of} }
func Nullable(of *Type) *Type { return &Type{Kind: KindNullable, Of: of} }
func Named(name string) *Type { return &Type{Kind: KindNamed, RefName: name} }

// Object builds an ObjectType. fields is supplied in declaration order.
func Object(name string, implements []string, fields ...*Field) *Type {
	t := &Type{Kind: KindObject, Name: name, Implements: implements, Fields: map[string]*Field{}}
	for _, f := range fields {
		t.Fields[f.Name] = f
		t.FieldOrd = append(t.FieldOrd, f.Name)
	}
	return t
}

// Interface builds an InterfaceType. possibleTypes must be listed in the
// order the schema declares its implementors — §9 requires this order be
// preserved for deterministic __typename narrowing.
func Interface(name string, possibleTypes []string, fields ...*Field) *Type {
	t := &Type{Kind: KindInterface, Name: name, PossibleTypeNames: possibleTypes, Fields: map[string]*Field{}}
	for _, f := range fields {
		t.Fields[f.Name] = f
		t.FieldOrd = append(t.FieldOrd, f.Name)
	}
	return t
}

func Union(name string, possibleTypes ...string) *Type {
	return &Type{Kind: KindUnion, Name: name, PossibleTypeNames: possibleTypes}
}

// --- operations ---

// IsNullable reports whether t is a NullableType wrapper.
func (t *Type) IsNullable() bool { return t != nil && t.Kind == KindNullable }

// IsLeaf reports whether t (after dealiasing) is a scalar or enum.
func (t *Type) IsLeaf() bool {
	d := t.Dealias()
	return d.Kind == KindScalar || d.Kind == KindEnum
}

// NonNull strips a single NullableType wrapper, if present.
func (t *Type) NonNull() *Type {
	if t.IsNullable() {
		return t.Of
	}
	return t
}

// Dealias strips NullableType wrappers only; it does NOT strip ListType, as
// list-ness is semantically load-bearing for dispatch. Named references are
// left as KindNamed — callers that need the concrete type must resolve
// through a Schema first.
func (t *Type) Dealias() *Type {
	for t != nil && t.Kind == KindNullable {
		t = t.Of
	}
	return t
}

// Item returns the element type of a (possibly nullable-wrapped) list type.
func (t *Type) Item() *Type {
	d := t.Dealias()
	if d.Kind != KindList {
		panic(fmt.Sprintf("schema: Item called on non-list type %v", d.Kind))
	}
	return d.Of
}

// Field looks up a field by name on an object/interface type.
func (t *Type) Field(name string) *Field {
	d := t.Dealias()
	if d.Fields == nil {
		return nil
	}
	return d.Fields[name]
}

// NominalEq is nominal equality modulo NullableType aliasing (the spec's
// nominal_=:= operator): two named types are equal iff their dealiased forms
// have the same Kind and Name (or, for lists, structurally equal items).
func NominalEq(a, b *Type) bool {
	a, b = a.Dealias(), b.Dealias()
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindList:
		return NominalEq(a.Of, b.Of)
	case KindNamed:
		return a.RefName == b.RefName
	default:
		return a.Name == b.Name
	}
}

// Sub reports whether a is a subtype of b (the spec's <:< operator):
// nominally equal types, or an object type a whose name is among the
// possible types of an interface/union b, or list covariance over Sub items.
// NullableType wrappers on either side are ignored (via Dealias).
func Sub(a, b *Type) bool {
	if NominalEq(a, b) {
		return true
	}
	a, b = a.Dealias(), b.Dealias()
	if a == nil || b == nil {
		return false
	}
	if a.Kind == KindList && b.Kind == KindList {
		return Sub(a.Of, b.Of)
	}
	if (a.Kind == KindObject) && (b.Kind == KindInterface || b.Kind == KindUnion) {
		for _, n := range b.PossibleTypeNames {
			if n == a.Name {
				return true
			}
		}
	}
	return false
}
