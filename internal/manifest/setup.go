package manifest

import (
	"errors"
	"fmt"

	"ouro/internal/capreg"
	"ouro/internal/diag"
	"ouro/internal/engine"
	"ouro/internal/schema"
	"ouro/internal/source"
)

// StructDecl is a manifest struct converted to engine field declarations.
// All names are interned up front so later validation only reads the
// interner and can run concurrently.
type StructDecl struct {
	Name   string
	NameID source.StringID
	Fields []schema.FieldDecl
	Span   source.Span
}

// ParseKind maps a manifest kind string onto a capability kind.
func ParseKind(s string) (capreg.Kind, bool) {
	switch s {
	case "stable_deref":
		return capreg.StableDeref, true
	case "stable_cloneable_deref":
		return capreg.StableCloneableDeref, true
	}
	return capreg.KindInvalid, false
}

// Setup registers the manifest's capabilities into the engine. This is the
// setup phase; the caller freezes the engine afterwards. Returns false when
// any registration failed.
func (m *Manifest) Setup(e *engine.Engine, fs *source.FileSet, rep diag.Reporter) bool {
	ok := true
	for _, c := range m.Config.Capabilities {
		if c.Type == "" {
			report(rep, diag.ManMissingField, m.SpanOf(fs, "capability"),
				"capability entry is missing 'type'")
			ok = false
			continue
		}
		kind, known := ParseKind(c.Kind)
		if !known {
			report(rep, diag.ManUnknownCapabilityKind, m.SpanOf(fs, c.Type),
				"unknown capability kind %q for type %s", c.Kind, c.Type)
			ok = false
			continue
		}
		if c.Clone {
			if err := e.RegisterClone(c.Type); err != nil {
				report(rep, diag.ManLoadError, m.SpanOf(fs, c.Type), "%v", err)
				ok = false
				continue
			}
		}
		if err := e.RegisterCapability(c.Type, kind); err != nil {
			var regErr *capreg.RegisterError
			code := diag.ManLoadError
			if errors.As(err, &regErr) {
				code = regErr.Code
			}
			report(rep, code, m.SpanOf(fs, c.Type), "%v", err)
			ok = false
		}
	}
	return ok
}

// StructDecls converts manifest structs into validated-ready declarations.
// Malformed entries are reported and skipped; duplicates are rejected.
func (m *Manifest) StructDecls(e *engine.Engine, fs *source.FileSet, rep diag.Reporter) []StructDecl {
	in := e.Interner()
	seen := make(map[string]bool, len(m.Config.Structs))
	out := make([]StructDecl, 0, len(m.Config.Structs))
	for _, st := range m.Config.Structs {
		if st.Name == "" {
			report(rep, diag.ManMissingField, m.SpanOf(fs, "struct"),
				"struct entry is missing 'name'")
			continue
		}
		if seen[st.Name] {
			report(rep, diag.ManDuplicateStruct, m.SpanOf(fs, st.Name),
				"struct %s declared twice", st.Name)
			continue
		}
		seen[st.Name] = true

		fields := make([]schema.FieldDecl, 0, len(st.Fields))
		bad := false
		for _, f := range st.Fields {
			if f.Name == "" || f.Type == "" {
				report(rep, diag.ManMissingField, m.SpanOf(fs, st.Name),
					"struct %s has a field missing 'name' or 'type'", st.Name)
				bad = true
				break
			}
			decl := schema.FieldDecl{
				Name: in.Intern(f.Name),
				Type: schema.TypeRef{Name: in.Intern(f.Type)},
				Span: m.SpanOf(fs, f.Name),
			}
			if f.Binds != "" {
				if !isLifetimeName(f.Binds) {
					report(rep, diag.ManBadLifetimeName, m.SpanOf(fs, f.Binds),
						"lifetime %q must start with a quote", f.Binds)
					bad = true
					break
				}
				decl.Binds = in.Intern(f.Binds)
			}
			for _, u := range f.Uses {
				if !isLifetimeName(u) {
					report(rep, diag.ManBadLifetimeName, m.SpanOf(fs, f.Name),
						"lifetime %q must start with a quote", u)
					bad = true
					break
				}
				decl.Type.Lifetimes = append(decl.Type.Lifetimes, in.Intern(u))
			}
			if bad {
				break
			}
			fields = append(fields, decl)
		}
		if bad {
			continue
		}
		out = append(out, StructDecl{
			Name:   st.Name,
			NameID: in.Intern(st.Name),
			Fields: fields,
			Span:   m.SpanOf(fs, st.Name),
		})
	}
	return out
}

func isLifetimeName(s string) bool {
	return len(s) >= 2 && s[0] == '\''
}

func report(rep diag.Reporter, code diag.Code, span source.Span, format string, args ...any) {
	if rep != nil {
		rep.Report(code, diag.SevError, span, fmt.Sprintf(format, args...), nil)
	}
}
