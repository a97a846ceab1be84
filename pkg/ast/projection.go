package ast

// ProjectionKind discriminates the three supported selector shapes.
type ProjectionKind int

const (
	// ProjectIdentity keeps the full entity: x => x.
	ProjectIdentity ProjectionKind = iota
	// ProjectSingle selects one member: x => x.Name.
	ProjectSingle
	// ProjectMulti selects named members into a projected shape:
	// x => { CustomerName: x.Name, ... }.
	ProjectMulti
)

// ProjectedField binds one projected output name to a root entity field.
type ProjectedField struct {
	// Target is the output member name in the projected shape.
	Target string
	// Source is the logical field on the root entity.
	Source string
}

// Projection describes what a Select clause emits. Identity projections
// leave the SELECT list untouched; single and multi projections narrow it.
type Projection struct {
	Kind   ProjectionKind
	Fields []ProjectedField
}

// Identity projects the whole entity unchanged.
func Identity() Projection {
	return Projection{Kind: ProjectIdentity}
}

// Single projects one field of the root entity.
func Single(field string) Projection {
	return Projection{
		Kind:   ProjectSingle,
		Fields: []ProjectedField{{Target: field, Source: field}},
	}
}

// Multi projects a named set of fields. Use Bind to build the members.
func Multi(fields ...ProjectedField) Projection {
	return Projection{Kind: ProjectMulti, Fields: fields}
}

// Bind names one member of a multi-field projection.
func Bind(target, source string) ProjectedField {
	return ProjectedField{Target: target, Source: source}
}

// Assignment sets one field to the value of an expression, used by
// expression-driven updates.
type Assignment struct {
	Field string
	Value Node
}

// Set builds an assignment. The value may be an Expr, a Node, or a
// constant.
func Set(field string, v any) Assignment {
	return Assignment{Field: field, Value: lift(v)}
}
