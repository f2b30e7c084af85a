// Package borrow tracks live shared/exclusive borrows on the
// lifetime-defining fields of a single struct instance.
package borrow

import (
	"fmt"

	"fortio.org/safecast"

	"ouro/internal/schema"
)

// HandleID identifies an active borrow entry.
type HandleID uint32

// NoHandleID marks the absence of a borrow.
const NoHandleID HandleID = 0

// NoOwner marks a handle acquired directly by the host rather than held by
// a dependent field.
const NoOwner schema.FieldIndex = ^schema.FieldIndex(0)

// Kind differentiates shared vs exclusive borrows.
type Kind uint8

const (
	Shared Kind = iota
	Exclusive
)

func (k Kind) String() string {
	if k == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// IssueKind enumerates reasons a borrow-related action fails.
type IssueKind uint8

const (
	IssueNone IssueKind = iota
	// IssueAlreadyBorrowed: any outstanding borrow blocks the action.
	IssueAlreadyBorrowed
	// IssueExclusiveHeld: an exclusive borrow blocks a shared acquire.
	IssueExclusiveHeld
	// IssueConfigDisabled: exclusive borrows are switched off.
	IssueConfigDisabled
)

// Issue carries information about a conflict.
type Issue struct {
	Kind   IssueKind
	Handle HandleID // the blocking borrow, when one exists
}

// HandleInfo stores metadata about each borrow.
type HandleInfo struct {
	ID     HandleID
	Kind   Kind
	Owner  schema.FieldIndex // dependent field holding the borrow, or NoOwner
	Target schema.FieldIndex // lifetime-defining field borrowed from
}

type fieldState struct {
	shared []HandleID
	excl   HandleID
}

// Tracker keeps per-defining-field borrow state for one instance.
// Never accessed by more than one execution context at once; the instance
// has a single logical owner.
type Tracker struct {
	infos            []HandleInfo
	state            map[schema.FieldIndex]fieldState
	exclusiveEnabled bool
}

// NewTracker builds an empty tracker. Exclusive borrows stay rejected with
// IssueConfigDisabled unless enabled here.
func NewTracker(exclusiveEnabled bool) *Tracker {
	return &Tracker{
		infos:            []HandleInfo{{}},
		state:            make(map[schema.FieldIndex]fieldState),
		exclusiveEnabled: exclusiveEnabled,
	}
}

// ExclusiveEnabled reports the configuration the tracker was built with.
func (t *Tracker) ExclusiveEnabled() bool {
	return t != nil && t.exclusiveEnabled
}

// AcquireShared registers a shared borrow on target held by owner.
func (t *Tracker) AcquireShared(target, owner schema.FieldIndex) (HandleID, Issue) {
	if t == nil {
		return NoHandleID, Issue{}
	}
	state := t.state[target]
	if state.excl != NoHandleID {
		return NoHandleID, Issue{Kind: IssueExclusiveHeld, Handle: state.excl}
	}
	id := t.newHandle(Shared, target, owner)
	state.shared = append(state.shared, id)
	t.state[target] = state
	return id, Issue{}
}

// AcquireExclusive registers an exclusive borrow on target held by owner.
func (t *Tracker) AcquireExclusive(target, owner schema.FieldIndex) (HandleID, Issue) {
	if t == nil {
		return NoHandleID, Issue{}
	}
	if !t.exclusiveEnabled {
		return NoHandleID, Issue{Kind: IssueConfigDisabled}
	}
	state := t.state[target]
	if len(state.shared) > 0 {
		return NoHandleID, Issue{Kind: IssueAlreadyBorrowed, Handle: state.shared[0]}
	}
	if state.excl != NoHandleID {
		return NoHandleID, Issue{Kind: IssueAlreadyBorrowed, Handle: state.excl}
	}
	id := t.newHandle(Exclusive, target, owner)
	state.excl = id
	t.state[target] = state
	return id, Issue{}
}

// Release ends a borrow. Returns false when the handle is unknown or
// already released.
func (t *Tracker) Release(id HandleID) bool {
	info := t.Info(id)
	if info == nil {
		return false
	}
	state, ok := t.state[info.Target]
	if !ok {
		return false
	}
	switch info.Kind {
	case Shared:
		before := len(state.shared)
		state.shared = dropHandleID(state.shared, id)
		if len(state.shared) == before {
			return false
		}
	case Exclusive:
		if state.excl != id {
			return false
		}
		state.excl = NoHandleID
	}
	if len(state.shared) == 0 && state.excl == NoHandleID {
		delete(t.state, info.Target)
	} else {
		t.state[info.Target] = state
	}
	return true
}

// LiveOn returns the outstanding borrow handles on a defining field.
func (t *Tracker) LiveOn(target schema.FieldIndex) []HandleID {
	if t == nil {
		return nil
	}
	state, ok := t.state[target]
	if !ok {
		return nil
	}
	out := make([]HandleID, 0, len(state.shared)+1)
	out = append(out, state.shared...)
	if state.excl != NoHandleID {
		out = append(out, state.excl)
	}
	return out
}

// AnyLive reports whether any borrow is outstanding on the field.
func (t *Tracker) AnyLive(target schema.FieldIndex) bool {
	state, ok := t.state[target]
	return ok && (len(state.shared) > 0 || state.excl != NoHandleID)
}

// Info returns metadata for the borrow.
func (t *Tracker) Info(id HandleID) *HandleInfo {
	if t == nil || id == NoHandleID || int(id) >= len(t.infos) {
		return nil
	}
	return &t.infos[id]
}

// ReleaseOwnedBy ends every borrow held by the dependent field. Returns the
// number of handles released.
func (t *Tracker) ReleaseOwnedBy(owner schema.FieldIndex) int {
	if t == nil {
		return 0
	}
	released := 0
	for i := 1; i < len(t.infos); i++ {
		info := t.infos[i]
		if info.Owner != owner {
			continue
		}
		if t.Release(info.ID) {
			released++
		}
	}
	return released
}

func (t *Tracker) newHandle(kind Kind, target, owner schema.FieldIndex) HandleID {
	value, err := safecast.Conv[uint32](len(t.infos))
	if err != nil {
		panic(fmt.Errorf("borrow tracker overflow: %w", err))
	}
	id := HandleID(value)
	t.infos = append(t.infos, HandleInfo{
		ID:     id,
		Kind:   kind,
		Owner:  owner,
		Target: target,
	})
	return id
}

func dropHandleID(ids []HandleID, target HandleID) []HandleID {
	for i, id := range ids {
		if id == target {
			ids[i] = ids[len(ids)-1]
			return ids[:len(ids)-1]
		}
	}
	return ids
}
