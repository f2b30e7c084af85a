// Package capreg records caller-asserted stable-dereference capabilities.
//
// A capability is a trusted fact: "this type's dereference target survives
// relocation of the owning value". The engine never proves it, it only
// records the assertion during the setup phase and relies on it during
// schema validation.
package capreg

import (
	"fmt"
	"sync"

	"ouro/internal/diag"
	"ouro/internal/source"
)

// Kind enumerates registrable capability kinds.
type Kind uint8

const (
	KindInvalid Kind = iota
	// StableDeref asserts the dereference target address is unaffected by
	// relocation of the owner.
	StableDeref
	// StableCloneableDeref additionally requires a registered clone
	// operation for the type.
	StableCloneableDeref
)

func (k Kind) String() string {
	switch k {
	case StableDeref:
		return "stable_deref"
	case StableCloneableDeref:
		return "stable_cloneable_deref"
	}
	return "invalid"
}

// Set is a bitmask of capabilities held by one type.
type Set uint8

const (
	SetStableDeref Set = 1 << iota
	SetStableCloneableDeref
)

// HasStableDeref reports whether the set carries StableDeref or stronger.
func (s Set) HasStableDeref() bool {
	return s&(SetStableDeref|SetStableCloneableDeref) != 0
}

// Has reports whether the set carries the exact kind.
func (s Set) Has(kind Kind) bool {
	switch kind {
	case StableDeref:
		return s&SetStableDeref != 0
	case StableCloneableDeref:
		return s&SetStableCloneableDeref != 0
	}
	return false
}

// RegisterError describes a rejected registration.
type RegisterError struct {
	Code diag.Code
	Type string
	Kind Kind
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("%s: type %q, kind %s", e.Code.ID(), e.Type, e.Kind)
}

// Registry stores capability sets per interned type name.
//
// Registration happens in a setup phase strictly before any validation that
// reads the registry; Freeze marks the end of that phase. Reads after
// Freeze are safe from any number of goroutines.
type Registry struct {
	mu     sync.RWMutex
	in     *source.Interner
	caps   map[source.StringID]Set
	clones map[source.StringID]struct{}
	frozen bool
}

// NewRegistry builds an empty registry resolving names through in.
func NewRegistry(in *source.Interner) *Registry {
	return &Registry{
		in:     in,
		caps:   make(map[source.StringID]Set, 16),
		clones: make(map[source.StringID]struct{}, 4),
	}
}

// Interner returns the interner shared with the registry.
func (r *Registry) Interner() *source.Interner {
	return r.in
}

// RegisterClone records that the type offers a duplicate/clone operation.
// Must precede a StableCloneableDeref registration for the same type.
func (r *Registry) RegisterClone(tname source.StringID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return r.frozenErr(tname, KindInvalid)
	}
	r.clones[tname] = struct{}{}
	return nil
}

// HasClone reports whether a clone operation is registered for the type.
func (r *Registry) HasClone(tname source.StringID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clones[tname]
	return ok
}

// Register is an idempotent insert of a capability for the type.
// StableCloneableDeref fails unless the type has a registered clone
// operation; the requirement is enforced here, at registration, not later.
func (r *Registry) Register(tname source.StringID, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return r.frozenErr(tname, kind)
	}
	switch kind {
	case StableDeref:
		r.caps[tname] |= SetStableDeref
	case StableCloneableDeref:
		if _, ok := r.clones[tname]; !ok {
			return &RegisterError{
				Code: diag.RegMissingCloneCapability,
				Type: r.name(tname),
				Kind: kind,
			}
		}
		r.caps[tname] |= SetStableCloneableDeref
	default:
		return &RegisterError{Code: diag.UnknownCode, Type: r.name(tname), Kind: kind}
	}
	return nil
}

// Freeze ends the setup phase. Registration attempts after Freeze fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the setup phase has ended.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Query returns the capability set registered for the type.
func (r *Registry) Query(tname source.StringID) Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[tname]
}

// HasStableDeref reports whether the type offers StableDeref or stronger.
func (r *Registry) HasStableDeref(tname source.StringID) bool {
	return r.Query(tname).HasStableDeref()
}

func (r *Registry) frozenErr(tname source.StringID, kind Kind) error {
	return &RegisterError{Code: diag.RegFrozen, Type: r.name(tname), Kind: kind}
}

func (r *Registry) name(tname source.StringID) string {
	if r.in == nil {
		return fmt.Sprintf("type#%d", tname)
	}
	if s, ok := r.in.Lookup(tname); ok {
		return s
	}
	return fmt.Sprintf("type#%d", tname)
}
