package schema

import (
	"ouro/internal/source"
)

// FieldIndex addresses a field by its declaration position.
type FieldIndex uint32

// TypeRef names a type together with the lifetime names it consumes.
type TypeRef struct {
	Name      source.StringID
	Lifetimes []source.StringID
}

// FieldDecl is one ordered field of a candidate struct.
//
// Binds, when set, introduces a new lifetime name bounded by this field;
// the field's type must then carry a StableDeref-or-stronger capability.
type FieldDecl struct {
	Name  source.StringID
	Type  TypeRef
	Binds source.StringID // NoStringID when the field binds nothing
	Span  source.Span
}

// BindsLifetime reports whether the field introduces a lifetime name.
func (f FieldDecl) BindsLifetime() bool {
	return f.Binds != source.NoStringID
}
