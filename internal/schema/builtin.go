package schema

// Built-in scalars, auto-registered by New unless a schema redefines them.
var builtinScalars = []*Type{
	Scalar("String"),
	Scalar("Int"),
	Scalar("Float"),
	Scalar("Boolean"),
	Scalar("ID"),
}
