package engine

import (
	"fmt"

	"ouro/internal/borrow"
	"ouro/internal/diag"
	"ouro/internal/schema"
)

// Extraction holds fields pulled out of an instance as independently owned
// values. When a base field leaves together with its live dependents, their
// mutual borrow relationship moves with them.
type Extraction struct {
	schema  *schema.StructSchema
	engine  *Engine
	values  map[schema.FieldIndex]Value
	tracker *borrow.Tracker
}

// Destructure extracts the requested fields from a live instance.
//
// A lifetime-defining field may leave only if every outstanding borrow on
// it is held by a dependent field that leaves in the same call; extracting
// the base alone while a dependent stays behind fails with
// BorrowAlreadyBorrowed. A dependent extracted without its base simply
// releases its borrow, the value leaving as independently owned.
//
// On success the instance is marked partially consumed and the remaining
// fields are finalized using the drop sequence restricted to the survivors.
func (inst *Instance) Destructure(requested []schema.FieldIndex) (*Extraction, error) {
	if inst.finalized {
		return nil, inst.engine.borrowErr(diag.BorrowConsumed, 0, "instance was already finalized")
	}
	req := make(map[schema.FieldIndex]bool, len(requested))
	for _, idx := range requested {
		if int(idx) >= inst.schema.NumFields() {
			return nil, inst.engine.borrowErr(diag.UnknownCode, 0, "field index %d out of range", idx)
		}
		if inst.consumed[idx] {
			return nil, inst.engine.borrowErr(diag.BorrowConsumed, inst.schema.Field(idx).Name,
				"field was already consumed")
		}
		req[idx] = true
	}

	// Conflict check before anything moves: requested defining fields must
	// take all their live borrowers along.
	for idx := range req {
		dep, ok := inst.schema.DefinedBy(idx)
		if !ok {
			continue
		}
		for _, h := range inst.tracker.LiveOn(idx) {
			info := inst.tracker.Info(h)
			if info == nil {
				continue
			}
			if info.Owner == borrow.NoOwner || !req[info.Owner] {
				return nil, inst.engine.borrowErr(diag.BorrowAlreadyBorrowed, inst.schema.Field(idx).Name,
					"lifetime %s still has a borrower outside the extraction",
					inst.engine.name(dep.Name))
			}
		}
	}

	// The remainder is finalized below, so a host-held borrow on any field
	// staying behind would outlive its value. Reject up front instead of
	// tripping the finalize invariant mid-move.
	for _, dep := range inst.schema.Deps() {
		if req[dep.Def] || inst.consumed[dep.Def] {
			continue
		}
		for _, h := range inst.tracker.LiveOn(dep.Def) {
			info := inst.tracker.Info(h)
			if info != nil && info.Owner == borrow.NoOwner {
				return nil, inst.engine.borrowErr(diag.BorrowAlreadyBorrowed, inst.schema.Field(dep.Def).Name,
					"host-held borrow blocks finalizing the remainder")
			}
		}
	}

	out := &Extraction{
		schema:  inst.schema,
		engine:  inst.engine,
		values:  make(map[schema.FieldIndex]Value, len(req)),
		tracker: borrow.NewTracker(inst.engine.opts.ExclusiveBorrows),
	}

	// Move values; migrate borrow edges that stay intact inside the
	// extraction, release the rest.
	for idx := range req {
		out.values[idx] = inst.values[idx]
	}
	for _, dep := range inst.schema.Deps() {
		for _, h := range inst.tracker.LiveOn(dep.Def) {
			info := inst.tracker.Info(h)
			if info == nil || info.Owner == borrow.NoOwner || !req[info.Owner] {
				continue
			}
			inst.tracker.Release(h)
			if !req[dep.Def] {
				continue // dependent leaves alone; its borrow just ends
			}
			var issue borrow.Issue
			if info.Kind == borrow.Exclusive {
				_, issue = out.tracker.AcquireExclusive(dep.Def, info.Owner)
			} else {
				_, issue = out.tracker.AcquireShared(dep.Def, info.Owner)
			}
			if issue.Kind != borrow.IssueNone {
				panic(fmt.Errorf("%s: borrow migration conflict on field %s",
					diag.FatalInvariant.ID(), inst.engine.name(inst.schema.Field(dep.Def).Name)))
			}
		}
	}
	for idx := range req {
		inst.consumed[idx] = true
		inst.values[idx] = nil
	}

	// Finalize what remains, in restricted drop order.
	surviving := make(map[schema.FieldIndex]bool, inst.schema.NumFields())
	for i := range inst.schema.Fields {
		if !inst.consumed[i] {
			surviving[schema.FieldIndex(i)] = true
		}
	}
	for _, idx := range inst.schema.RestrictDropSequence(surviving) {
		inst.tracker.ReleaseOwnedBy(idx)
		if inst.tracker.AnyLive(idx) {
			panic(fmt.Errorf("%s: borrow outlives instance on field %s",
				diag.FatalInvariant.ID(), inst.engine.name(inst.schema.Field(idx).Name)))
		}
		inst.consumed[idx] = true
		inst.values[idx] = nil
	}
	inst.finalized = true
	return out, nil
}

// Value returns an extracted field value.
func (x *Extraction) Value(idx schema.FieldIndex) (Value, bool) {
	v, ok := x.values[idx]
	return v, ok
}

// MutationAllowed checks whether the extracted base field can be mutated:
// any live borrow from a co-extracted dependent still blocks it.
func (x *Extraction) MutationAllowed(idx schema.FieldIndex) error {
	if _, ok := x.values[idx]; !ok {
		return x.engine.borrowErr(diag.BorrowConsumed, x.schema.Field(idx).Name, "field is not held by this extraction")
	}
	if x.tracker.AnyLive(idx) {
		return x.engine.borrowErr(diag.BorrowAlreadyBorrowed, x.schema.Field(idx).Name,
			"extracted value is still borrowed")
	}
	return nil
}

// DropField finalizes one extracted field: releases the borrows it holds,
// then gives up its value. Dropping a base that is still borrowed fails.
func (x *Extraction) DropField(idx schema.FieldIndex) error {
	if _, ok := x.values[idx]; !ok {
		return x.engine.borrowErr(diag.BorrowConsumed, x.schema.Field(idx).Name, "field is not held by this extraction")
	}
	x.tracker.ReleaseOwnedBy(idx)
	if x.tracker.AnyLive(idx) {
		return x.engine.borrowErr(diag.BorrowAlreadyBorrowed, x.schema.Field(idx).Name,
			"extracted value is still borrowed")
	}
	delete(x.values, idx)
	return nil
}
