package engine

import (
	"testing"

	"ouro/internal/capreg"
	"ouro/internal/diag"
	"ouro/internal/schema"
	"ouro/internal/source"
)

// cloneFixture is the pair schema over a cloneable base type (Rc).
func newCloneFixture(t *testing.T, opts Options) *pairFixture {
	t.Helper()
	eng := New(opts)
	if err := eng.RegisterClone("Rc"); err != nil {
		t.Fatalf("register clone op: %v", err)
	}
	if err := eng.RegisterCapability("Rc", capreg.StableCloneableDeref); err != nil {
		t.Fatalf("register Rc: %v", err)
	}
	eng.Freeze()

	in := eng.Interner()
	fields := []schema.FieldDecl{
		{Name: in.Intern("owner"), Type: schema.TypeRef{Name: in.Intern("Rc")}, Binds: in.Intern("'a")},
		{Name: in.Intern("reference"), Type: schema.TypeRef{
			Name:      in.Intern("Ref"),
			Lifetimes: []source.StringID{in.Intern("'a")},
		}},
	}
	bag := diag.NewBag(8)
	s, ok := eng.ValidateStruct("SharedPair", fields, diag.BagReporter{Bag: bag})
	if !ok {
		t.Fatalf("schema failed validation: %v", bag.Items())
	}
	return &pairFixture{eng: eng, schema: s}
}

func TestCloneRequiresCloneableCapability(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	_, err := f.eng.CloneInstance(inst, nil)
	asCtorError(t, err, diag.CtorCapabilityNotRegistered)
	inst.Finalize()
}

func TestCloneStartsFromFreshTracker(t *testing.T) {
	f := newCloneFixture(t, Options{ExclusiveBorrows: true})
	inst := f.construct(t)
	dup, err := f.eng.CloneInstance(inst, nil)
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}

	// Займы клона независимы от оригинала.
	if err := dup.FinalizeField(fieldRef); err != nil {
		t.Fatalf("finalize clone reference: %v", err)
	}
	if _, err := dup.AcquireExclusive(fieldOwner); err != nil {
		t.Fatalf("clone owner must be exclusively borrowable: %v", err)
	}
	if _, err := inst.AcquireExclusive(fieldOwner); err == nil {
		t.Fatalf("original implicit borrow must still be live")
	}

	if v, ok := dup.Value(fieldOwner); !ok || v != "boxed data" {
		t.Fatalf("clone must carry the owner value, got %v %v", v, ok)
	}
	inst.Finalize()
}

func TestCloneRejectsFinalizedAndPartial(t *testing.T) {
	f := newCloneFixture(t, Options{})
	inst := f.construct(t)
	if err := inst.FinalizeField(fieldRef); err != nil {
		t.Fatalf("finalize reference: %v", err)
	}
	_, err := f.eng.CloneInstance(inst, nil)
	asBorrowError(t, err, diag.BorrowConsumed)

	inst.Finalize()
	_, err = f.eng.CloneInstance(inst, nil)
	asBorrowError(t, err, diag.BorrowConsumed)

	_, err = f.eng.CloneInstance(nil, nil)
	asBorrowError(t, err, diag.BorrowConsumed)
}
