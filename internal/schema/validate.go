package schema

import (
	"fmt"

	"ouro/internal/capreg"
	"ouro/internal/diag"
	"ouro/internal/source"
)

// Validate checks an ordered field list against the capability registry and
// the lifetime ordering rules, producing an immutable StructSchema.
//
// Single left-to-right pass: a lifetime use may only reference a name bound
// by a strictly earlier field, which also rules out self-reference, forward
// reference, and cycles. All errors are reported through rep; the second
// return value is false when any error was found.
func Validate(reg *capreg.Registry, name source.StringID, fields []FieldDecl, rep diag.Reporter) (*StructSchema, bool) {
	v := validator{
		reg:      reg,
		rep:      rep,
		bound:    make(map[source.StringID]int, 2),
		depIndex: make(map[source.StringID]int, 2),
	}
	return v.run(name, fields)
}

type validator struct {
	reg      *capreg.Registry
	rep      diag.Reporter
	bound    map[source.StringID]int // lifetime name -> dep slot
	depIndex map[source.StringID]int
	deps     []LifetimeDep
	failed   bool
}

func (v *validator) run(name source.StringID, fields []FieldDecl) (*StructSchema, bool) {
	if len(fields) == 0 {
		v.warn(diag.SchemaEmptyStruct, source.Span{}, "struct %s has no fields", v.name(name))
	}

	defines := make([]int, len(fields))
	uses := make([][]int, len(fields))
	seenNames := make(map[source.StringID]FieldIndex, len(fields))

	for i := range fields {
		f := &fields[i]
		defines[i] = -1

		if prev, dup := seenNames[f.Name]; dup {
			v.failed = true
			diag.ReportError(v.rep, diag.SchemaDuplicateField, f.Span,
				fmt.Sprintf("field %s already declared at position %d", v.name(f.Name), prev)).
				WithNote(fields[prev].Span, "first declared here").
				Emit()
		} else {
			seenNames[f.Name] = FieldIndex(i)
		}

		// Uses are resolved before this field's own binding is recorded:
		// a field may not consume the lifetime it introduces.
		for _, lt := range f.Type.Lifetimes {
			slot, ok := v.bound[lt]
			if !ok {
				v.errorf(diag.SchemaUndefinedLifetime, f.Span,
					"lifetime %s is not bound by any earlier field", v.name(lt))
				continue
			}
			v.deps[slot].Dependents = append(v.deps[slot].Dependents, FieldIndex(i))
			uses[i] = append(uses[i], slot)
		}

		if !f.BindsLifetime() {
			continue
		}
		if slot, dup := v.bound[f.Binds]; dup {
			v.failed = true
			diag.ReportError(v.rep, diag.SchemaDuplicateLifetime, f.Span,
				fmt.Sprintf("lifetime %s is already bound by field %s",
					v.name(f.Binds), v.fieldLabel(fields, v.deps[slot].Def))).
				WithNote(fields[v.deps[slot].Def].Span, "bound here").
				Emit()
			continue
		}
		if v.reg == nil || !v.reg.HasStableDeref(f.Type.Name) {
			v.errorf(diag.SchemaMissingCapability, f.Span,
				"type %s of binding field %s has no stable-deref capability",
				v.name(f.Type.Name), v.name(f.Name))
			continue
		}
		slot := len(v.deps)
		v.deps = append(v.deps, LifetimeDep{Name: f.Binds, Def: FieldIndex(i)})
		v.bound[f.Binds] = slot
		v.depIndex[f.Binds] = slot
	}

	// Non-fatal lint: a bound name nobody references.
	for _, dep := range v.deps {
		if len(dep.Dependents) == 0 {
			v.warn(diag.SchemaUnusedLifetime, fields[dep.Def].Span,
				"lifetime %s is bound but never used", v.name(dep.Name))
		}
	}

	if v.failed {
		return nil, false
	}

	s := &StructSchema{
		Name:         name,
		Fields:       fields,
		deps:         v.deps,
		depIndex:     v.depIndex,
		fieldDefines: defines,
		fieldUses:    uses,
	}
	for slot, dep := range v.deps {
		s.fieldDefines[dep.Def] = slot
	}
	s.DropSequence = buildDropSequence(s)
	return s, true
}

func (v *validator) errorf(code diag.Code, span source.Span, format string, args ...any) {
	v.failed = true
	diag.ReportError(v.rep, code, span, fmt.Sprintf(format, args...)).Emit()
}

func (v *validator) warn(code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportWarning(v.rep, code, span, fmt.Sprintf(format, args...)).Emit()
}

func (v *validator) name(id source.StringID) string {
	if v.reg != nil && v.reg.Interner() != nil {
		if s, ok := v.reg.Interner().Lookup(id); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("#%d", id)
}

func (v *validator) fieldLabel(fields []FieldDecl, idx FieldIndex) string {
	if int(idx) < len(fields) {
		return v.name(fields[idx].Name)
	}
	return fmt.Sprintf("field#%d", idx)
}
