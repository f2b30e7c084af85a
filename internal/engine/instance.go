package engine

import (
	"fmt"

	"ouro/internal/borrow"
	"ouro/internal/diag"
	"ouro/internal/schema"
)

// Value is an opaque field value owned by an instance. The engine does
// bookkeeping, not data representation.
type Value any

// ProvidedBorrow describes a pre-derived borrow moved into the instance
// together with its base field in the same construction. The host is
// responsible for statically proving the derivation; the engine records
// and subsequently enforces it.
type ProvidedBorrow struct {
	Owner  schema.FieldIndex // dependent field receiving the borrow
	Target schema.FieldIndex // base field it derives from
	Kind   borrow.Kind
}

// Instance is the runtime bookkeeping for one constructed struct value.
type Instance struct {
	schema    *schema.StructSchema
	engine    *Engine
	values    []Value
	tracker   *borrow.Tracker
	consumed  []bool
	finalized bool
}

// Construct atomically moves the base values and their pre-derived borrows
// into a new instance.
//
// Every lifetime-binding field's type must still be registered with a
// stable-deref capability (CapabilityNotRegistered otherwise), and every
// provided borrow must connect a dependent field to the base field whose
// lifetime it uses (BorrowOriginMismatch otherwise). Dependent fields not
// covered by a provided borrow get an implicit shared handle.
func (e *Engine) Construct(s *schema.StructSchema, values []Value, provided []ProvidedBorrow) (*Instance, error) {
	if s == nil {
		return nil, &ConstructionError{Code: diag.UnknownCode, Struct: "", Detail: "nil schema"}
	}
	sname := e.name(s.Name)
	if len(values) != s.NumFields() {
		return nil, &ConstructionError{
			Code:   diag.CtorValueArityMismatch,
			Struct: sname,
			Detail: fmt.Sprintf("%d values for %d fields", len(values), s.NumFields()),
		}
	}

	// Re-check capabilities: schemas outlive registries in a long-running
	// host, and construction is the trust boundary for instances.
	for _, dep := range s.Deps() {
		def := s.Field(dep.Def)
		if !e.reg.HasStableDeref(def.Type.Name) {
			return nil, &ConstructionError{
				Code:   diag.CtorCapabilityNotRegistered,
				Struct: sname,
				Detail: fmt.Sprintf("type %s of binding field %s", e.name(def.Type.Name), e.name(def.Name)),
			}
		}
	}

	covered := make(map[schema.FieldIndex]map[schema.FieldIndex]borrow.Kind, len(provided))
	for _, pb := range provided {
		if !e.borrowOriginOK(s, pb) {
			return nil, &ConstructionError{
				Code:   diag.CtorBorrowOriginMismatch,
				Struct: sname,
				Detail: fmt.Sprintf("field %d does not derive from base field %d", pb.Owner, pb.Target),
			}
		}
		m := covered[pb.Owner]
		if m == nil {
			m = make(map[schema.FieldIndex]borrow.Kind, 1)
			covered[pb.Owner] = m
		}
		m[pb.Target] = pb.Kind
	}

	inst := &Instance{
		schema:   s,
		engine:   e,
		values:   values,
		tracker:  borrow.NewTracker(e.opts.ExclusiveBorrows),
		consumed: make([]bool, s.NumFields()),
	}

	// Populate one handle per dependency edge, in declaration order.
	for _, dep := range s.Deps() {
		for _, owner := range dep.Dependents {
			kind := borrow.Shared
			if k, ok := covered[owner][dep.Def]; ok {
				kind = k
			}
			var issue borrow.Issue
			if kind == borrow.Exclusive {
				_, issue = inst.tracker.AcquireExclusive(dep.Def, owner)
			} else {
				_, issue = inst.tracker.AcquireShared(dep.Def, owner)
			}
			if issue.Kind != borrow.IssueNone {
				return nil, e.issueError(issue, s.Field(dep.Def).Name)
			}
		}
	}
	return inst, nil
}

// borrowOriginOK: the target must bind a lifetime and the owner must be one
// of that lifetime's dependents.
func (e *Engine) borrowOriginOK(s *schema.StructSchema, pb ProvidedBorrow) bool {
	dep, ok := s.DefinedBy(pb.Target)
	if !ok {
		return false
	}
	for _, d := range dep.Dependents {
		if d == pb.Owner {
			return true
		}
	}
	return false
}

// Schema returns the instance's validated schema.
func (inst *Instance) Schema() *schema.StructSchema { return inst.schema }

// Value returns a live field value.
func (inst *Instance) Value(idx schema.FieldIndex) (Value, bool) {
	if int(idx) >= len(inst.values) || inst.consumed[idx] {
		return nil, false
	}
	return inst.values[idx], true
}

// Live reports whether the instance still owns the field.
func (inst *Instance) Live(idx schema.FieldIndex) bool {
	return int(idx) < len(inst.consumed) && !inst.consumed[idx] && !inst.finalized
}

// AcquireShared takes a host-held shared borrow on a lifetime-defining
// field.
func (inst *Instance) AcquireShared(idx schema.FieldIndex) (borrow.HandleID, error) {
	if err := inst.checkLive(idx); err != nil {
		return borrow.NoHandleID, err
	}
	id, issue := inst.tracker.AcquireShared(idx, borrow.NoOwner)
	if issue.Kind != borrow.IssueNone {
		return borrow.NoHandleID, inst.engine.issueError(issue, inst.schema.Field(idx).Name)
	}
	return id, nil
}

// AcquireExclusive takes a host-held exclusive borrow on a
// lifetime-defining field. Requires Options.ExclusiveBorrows.
func (inst *Instance) AcquireExclusive(idx schema.FieldIndex) (borrow.HandleID, error) {
	if err := inst.checkLive(idx); err != nil {
		return borrow.NoHandleID, err
	}
	id, issue := inst.tracker.AcquireExclusive(idx, borrow.NoOwner)
	if issue.Kind != borrow.IssueNone {
		return borrow.NoHandleID, inst.engine.issueError(issue, inst.schema.Field(idx).Name)
	}
	return id, nil
}

// Release ends a host-held borrow.
func (inst *Instance) Release(id borrow.HandleID) bool {
	return inst.tracker.Release(id)
}

// FinalizeField releases the borrows a dependent field holds and consumes
// it, without touching the rest of the instance. Used by hosts that drop a
// single dependent early.
func (inst *Instance) FinalizeField(idx schema.FieldIndex) error {
	if err := inst.checkLive(idx); err != nil {
		return err
	}
	// A failed finalize must leave the field's own borrows intact, so the
	// live-borrow check runs before anything is released.
	if dep, ok := inst.schema.DefinedBy(idx); ok && inst.tracker.AnyLive(idx) {
		return inst.engine.borrowErr(diag.BorrowAlreadyBorrowed, inst.schema.Field(idx).Name,
			"cannot finalize while lifetime %s has live borrows", inst.engine.name(dep.Name))
	}
	inst.tracker.ReleaseOwnedBy(idx)
	inst.consumed[idx] = true
	inst.values[idx] = nil
	return nil
}

// Finalize runs the full drop sequence over the fields the instance still
// owns. A live host-held borrow on a defining field at its finalize point
// is an engine-contract violation and panics: handles must never outlive
// the instance.
func (inst *Instance) Finalize() {
	if inst.finalized {
		return
	}
	for _, idx := range inst.schema.DropSequence {
		if inst.consumed[idx] {
			continue
		}
		inst.tracker.ReleaseOwnedBy(idx)
		if inst.tracker.AnyLive(idx) {
			panic(fmt.Errorf("%s: borrow outlives instance on field %s",
				diag.FatalInvariant.ID(), inst.engine.name(inst.schema.Field(idx).Name)))
		}
		inst.consumed[idx] = true
		inst.values[idx] = nil
	}
	inst.finalized = true
}

// Finalized reports whether the full drop sequence has run.
func (inst *Instance) Finalized() bool { return inst.finalized }

func (inst *Instance) checkLive(idx schema.FieldIndex) error {
	if int(idx) >= len(inst.consumed) {
		return inst.engine.borrowErr(diag.UnknownCode, 0, "field index %d out of range", idx)
	}
	if inst.finalized || inst.consumed[idx] {
		return inst.engine.borrowErr(diag.BorrowConsumed, inst.schema.Field(idx).Name, "field was already consumed")
	}
	return nil
}
