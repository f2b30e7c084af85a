package schema

import (
	"ouro/internal/source"
)

// LifetimeDep is one resolved base→dependents relationship.
type LifetimeDep struct {
	Name       source.StringID
	Def        FieldIndex   // field that binds the lifetime
	Dependents []FieldIndex // fields whose types use it
}

// StructSchema is a validated, immutable field layout plus its dependency
// map and precomputed drop sequence. Built once at definition time.
type StructSchema struct {
	Name   source.StringID
	Fields []FieldDecl

	deps     []LifetimeDep
	depIndex map[source.StringID]int

	// fieldDefines[i] is an index into deps, or -1.
	// fieldUses[i] lists dep indices the field's type consumes.
	fieldDefines []int
	fieldUses    [][]int

	// DropSequence finalizes every dependent field before the field
	// defining its lifetime.
	DropSequence []FieldIndex
}

// NumFields returns the number of declared fields.
func (s *StructSchema) NumFields() int {
	return len(s.Fields)
}

// Field returns the declaration at idx.
func (s *StructSchema) Field(idx FieldIndex) *FieldDecl {
	if int(idx) >= len(s.Fields) {
		return nil
	}
	return &s.Fields[idx]
}

// FieldByName resolves a field index by interned name.
func (s *StructSchema) FieldByName(name source.StringID) (FieldIndex, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return FieldIndex(i), true
		}
	}
	return 0, false
}

// Deps returns the dependency map in binding order.
func (s *StructSchema) Deps() []LifetimeDep {
	return s.deps
}

// Dep resolves a lifetime name to its dependency entry.
func (s *StructSchema) Dep(name source.StringID) (LifetimeDep, bool) {
	i, ok := s.depIndex[name]
	if !ok {
		return LifetimeDep{}, false
	}
	return s.deps[i], true
}

// DefinedBy returns the lifetime dependency bound by the field, if any.
func (s *StructSchema) DefinedBy(idx FieldIndex) (LifetimeDep, bool) {
	if int(idx) >= len(s.fieldDefines) || s.fieldDefines[idx] < 0 {
		return LifetimeDep{}, false
	}
	return s.deps[s.fieldDefines[idx]], true
}

// UsedBy returns the lifetime dependencies the field's type consumes.
func (s *StructSchema) UsedBy(idx FieldIndex) []LifetimeDep {
	if int(idx) >= len(s.fieldUses) {
		return nil
	}
	out := make([]LifetimeDep, 0, len(s.fieldUses[idx]))
	for _, di := range s.fieldUses[idx] {
		out = append(out, s.deps[di])
	}
	return out
}

// IsDependent reports whether the field uses at least one lifetime.
func (s *StructSchema) IsDependent(idx FieldIndex) bool {
	return int(idx) < len(s.fieldUses) && len(s.fieldUses[idx]) > 0
}
