package engine

import (
	"fmt"

	"ouro/internal/capreg"
	"ouro/internal/diag"
)

// CloneInstance duplicates a live instance into a structurally independent
// one. Every lifetime-binding field's type must carry the
// StableCloneableDeref capability, which in turn requires a registered
// clone operation.
//
// Whether a clone shares or duplicates the underlying heap allocation is
// the host's concern; the engine assumes the clone starts from a fresh
// tracker, so the host must re-derive the dependent fields' borrows and
// pass them in as rederived. With an empty rederived list, dependency edges
// fall back to implicit shared handles exactly as in Construct.
func (e *Engine) CloneInstance(inst *Instance, rederived []ProvidedBorrow) (*Instance, error) {
	if inst == nil || inst.finalized {
		return nil, e.borrowErr(diag.BorrowConsumed, 0, "cannot clone a finalized instance")
	}
	s := inst.schema
	for _, dep := range s.Deps() {
		def := s.Field(dep.Def)
		if !e.reg.Query(def.Type.Name).Has(capreg.StableCloneableDeref) {
			return nil, &ConstructionError{
				Code:   diag.CtorCapabilityNotRegistered,
				Struct: e.name(s.Name),
				Detail: fmt.Sprintf("type %s of binding field %s is not cloneable",
					e.name(def.Type.Name), e.name(def.Name)),
			}
		}
	}
	for i := range inst.consumed {
		if inst.consumed[i] {
			return nil, e.borrowErr(diag.BorrowConsumed, s.Fields[i].Name,
				"cannot clone a partially consumed instance")
		}
	}
	values := make([]Value, len(inst.values))
	copy(values, inst.values)
	return e.Construct(s, values, rederived)
}
