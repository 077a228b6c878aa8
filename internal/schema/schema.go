package schema

import "fmt"

// Schema is the immutable table of named types a request is evaluated
// against, resolving the SchemaRef (KindNamed) indirection used inside Type
// values to break reference cycles (design note §9).
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
}

// New builds a Schema from its root type names and the full type table.
func New(queryType, mutationType, subscriptionType string, types ...*Type) *Schema {
	s := &Schema{
		QueryType:        queryType,
		MutationType:     mutationType,
		SubscriptionType: subscriptionType,
		Types:            make(map[string]*Type, len(types)),
	}
	for _, t := range types {
		s.Types[t.Name] = t
	}
	for _, t := range builtinScalars {
		if _, exists := s.Types[t.Name]; !exists {
			s.Types[t.Name] = t
		}
	}
	return s
}

// Resolve follows a single KindNamed reference to its definition in the
// schema's type table. List/Nullable wrappers are resolved recursively so
// that the returned Type never contains a dangling KindNamed node.
func (s *Schema) Resolve(t *Type) *Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindNamed:
		resolved, ok := s.Types[t.RefName]
		if !ok {
			panic(fmt.Sprintf("schema: unknown named type %q", t.RefName))
		}
		return resolved
	case KindList:
		return &Type{Kind: KindList, Of: s.Resolve(t.Of)}
	case KindNullable:
		return &Type{Kind: KindNullable, Of: s.Resolve(t.Of)}
	default:
		return t
	}
}

// Ref returns a NamedType reference to the given type name, resolved lazily
// against the schema. Use this to build fields of object/interface types that
// would otherwise require a cyclic Go pointer graph.
func Ref(name string) *Type { return Named(name) }

// RootType returns the schema's root type for the given operation root field
// type name ("Query", "Mutation", "Subscription").
func (s *Schema) RootType(name string) *Type { return s.Types[name] }

// ObjectImplementors returns, in schema declaration order, the object types
// among abstractType's PossibleTypeNames. Order matters: §9 requires
// introspection's __typename resolution for interfaces to scan in schema
// order and take the first implementor that narrows.
func (s *Schema) ObjectImplementors(abstractType *Type) []*Type {
	out := make([]*Type, 0, len(abstractType.PossibleTypeNames))
	for _, name := range abstractType.PossibleTypeNames {
		if t, ok := s.Types[name]; ok {
			out = append(out, t)
		}
	}
	return out
}
