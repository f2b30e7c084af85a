// Package engine is the host-facing facade of the verification engine:
// capability registration, struct validation, instance construction, and
// the borrow/destructure/finalize discipline on live instances.
//
// The engine is a library consumed by a host compiler or analyzer. It does
// not parse source text and does not render diagnostics; it records
// caller-asserted capabilities, validates field lists against them, and
// enforces the runtime bookkeeping that keeps self-referential borrowing
// sound.
package engine

import (
	"fmt"

	"ouro/internal/borrow"
	"ouro/internal/capreg"
	"ouro/internal/diag"
	"ouro/internal/schema"
	"ouro/internal/source"
)

// Options configures an Engine.
type Options struct {
	// ExclusiveBorrows opts in to exclusive (mutable) borrow acquisition.
	// Off by default; disabled acquires fail with BorrowConfigDisabled
	// rather than a conflict error.
	ExclusiveBorrows bool
}

// Engine owns the interner and capability registry shared by all
// validations and instances.
type Engine struct {
	in   *source.Interner
	reg  *capreg.Registry
	opts Options
}

// New builds an engine with a fresh interner and registry.
func New(opts Options) *Engine {
	in := source.NewInterner()
	return &Engine{
		in:   in,
		reg:  capreg.NewRegistry(in),
		opts: opts,
	}
}

// Interner returns the engine's string interner.
func (e *Engine) Interner() *source.Interner { return e.in }

// Registry returns the engine's capability registry.
func (e *Engine) Registry() *capreg.Registry { return e.reg }

// Options returns the configuration the engine was built with.
func (e *Engine) Options() Options { return e.opts }

// RegisterClone records a duplicate/clone operation for the type.
func (e *Engine) RegisterClone(typeName string) error {
	return e.reg.RegisterClone(e.in.Intern(typeName))
}

// RegisterCapability is the setup-phase assertion that a type offers a
// stable dereference guarantee. One call per type; idempotent.
func (e *Engine) RegisterCapability(typeName string, kind capreg.Kind) error {
	return e.reg.Register(e.in.Intern(typeName), kind)
}

// Freeze ends the setup phase; after Freeze, validation may run
// concurrently from multiple goroutines.
func (e *Engine) Freeze() {
	e.reg.Freeze()
}

// ValidateStruct checks one struct definition discovered by the host.
// Errors and lints go to rep; ok is false when validation failed.
func (e *Engine) ValidateStruct(structName string, fields []schema.FieldDecl, rep diag.Reporter) (*schema.StructSchema, bool) {
	return schema.Validate(e.reg, e.in.Intern(structName), fields, rep)
}

// ConstructionError is reported at a construction site.
type ConstructionError struct {
	Code   diag.Code
	Struct string
	Detail string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s: struct %s: %s", e.Code.ID(), e.Struct, e.Detail)
}

// BorrowError is reported at a specific borrow, destructure, or finalize
// operation site. In a fully static host it becomes a compile-time
// diagnostic; in runtime-checked mode it is a live failure.
type BorrowError struct {
	Code   diag.Code
	Field  string
	Detail string
}

func (e *BorrowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code.ID(), e.Detail)
	}
	return fmt.Sprintf("%s: field %s: %s", e.Code.ID(), e.Field, e.Detail)
}

func (e *Engine) name(id source.StringID) string {
	if s, ok := e.in.Lookup(id); ok && s != "" {
		return s
	}
	return fmt.Sprintf("#%d", id)
}

func (e *Engine) borrowErr(code diag.Code, field source.StringID, format string, args ...any) *BorrowError {
	return &BorrowError{
		Code:   code,
		Field:  e.name(field),
		Detail: fmt.Sprintf(format, args...),
	}
}

// issueError maps a tracker issue onto the error taxonomy.
func (e *Engine) issueError(issue borrow.Issue, field source.StringID) *BorrowError {
	switch issue.Kind {
	case borrow.IssueAlreadyBorrowed:
		return e.borrowErr(diag.BorrowAlreadyBorrowed, field, "borrow is outstanding")
	case borrow.IssueExclusiveHeld:
		return e.borrowErr(diag.BorrowExclusiveHeld, field, "exclusive borrow is held")
	case borrow.IssueConfigDisabled:
		return e.borrowErr(diag.BorrowConfigDisabled, field, "exclusive borrows are disabled")
	}
	return nil
}
