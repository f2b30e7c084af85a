package engine

import (
	"errors"
	"testing"

	"ouro/internal/borrow"
	"ouro/internal/capreg"
	"ouro/internal/diag"
	"ouro/internal/schema"
	"ouro/internal/source"
)

// pairFixture validates the canonical self-referential pair:
// owner binds 'a, reference uses it.
type pairFixture struct {
	eng    *Engine
	schema *schema.StructSchema
}

const (
	fieldOwner = schema.FieldIndex(0)
	fieldRef   = schema.FieldIndex(1)
)

func newPairFixture(t *testing.T, opts Options) *pairFixture {
	t.Helper()
	eng := New(opts)
	if err := eng.RegisterCapability("Box", capreg.StableDeref); err != nil {
		t.Fatalf("register Box: %v", err)
	}
	eng.Freeze()

	in := eng.Interner()
	fields := []schema.FieldDecl{
		{Name: in.Intern("owner"), Type: schema.TypeRef{Name: in.Intern("Box")}, Binds: in.Intern("'a")},
		{Name: in.Intern("reference"), Type: schema.TypeRef{
			Name:      in.Intern("Ref"),
			Lifetimes: []source.StringID{in.Intern("'a")},
		}},
	}
	bag := diag.NewBag(8)
	s, ok := eng.ValidateStruct("Pair", fields, diag.BagReporter{Bag: bag})
	if !ok {
		t.Fatalf("pair schema failed validation: %v", bag.Items())
	}
	return &pairFixture{eng: eng, schema: s}
}

func (f *pairFixture) construct(t *testing.T) *Instance {
	t.Helper()
	inst, err := f.eng.Construct(f.schema, []Value{"boxed data", "&data"}, nil)
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}
	return inst
}

func asCtorError(t *testing.T, err error, code diag.Code) *ConstructionError {
	t.Helper()
	var ce *ConstructionError
	if !errors.As(err, &ce) || ce.Code != code {
		t.Fatalf("expected construction error %s, got %v", code.ID(), err)
	}
	return ce
}

func asBorrowError(t *testing.T, err error, code diag.Code) *BorrowError {
	t.Helper()
	var be *BorrowError
	if !errors.As(err, &be) || be.Code != code {
		t.Fatalf("expected borrow error %s, got %v", code.ID(), err)
	}
	return be
}

func TestConstructArityMismatch(t *testing.T) {
	f := newPairFixture(t, Options{})
	_, err := f.eng.Construct(f.schema, []Value{"only one"}, nil)
	asCtorError(t, err, diag.CtorValueArityMismatch)
}

func TestConstructChecksCapabilityAgain(t *testing.T) {
	// Валидируем схему движком, где Box зарегистрирован, а конструируем
	// движком без регистрации.
	f := newPairFixture(t, Options{})
	bare := New(Options{})
	bare.Freeze()
	_, err := bare.Construct(f.schema, []Value{"a", "b"}, nil)
	asCtorError(t, err, diag.CtorCapabilityNotRegistered)
}

func TestConstructBorrowOriginMismatch(t *testing.T) {
	f := newPairFixture(t, Options{})
	// reference не вводит лайфтайм, занимать у него нельзя.
	_, err := f.eng.Construct(f.schema, []Value{"a", "b"}, []ProvidedBorrow{
		{Owner: fieldOwner, Target: fieldRef, Kind: borrow.Shared},
	})
	asCtorError(t, err, diag.CtorBorrowOriginMismatch)
}

func TestConstructRecordsImplicitSharedBorrow(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	if !inst.Live(fieldOwner) || !inst.Live(fieldRef) {
		t.Fatalf("both fields must be live after construction")
	}
	// Implicit shared заём уже висит на owner, второй shared совместим.
	id, err := inst.AcquireShared(fieldOwner)
	if err != nil {
		t.Fatalf("shared acquire must coexist with the implicit borrow: %v", err)
	}
	inst.Release(id)
	inst.Finalize()
}

func TestHostExclusiveDisabledByDefault(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	_, err := inst.AcquireExclusive(fieldOwner)
	asBorrowError(t, err, diag.BorrowConfigDisabled)
	inst.Finalize()
}

func TestFinalizeFieldReleasesDependentBorrow(t *testing.T) {
	// Сквозной сценарий: пока живёт implicit заём reference, эксклюзив на
	// owner конфликтует; после FinalizeField(reference) он проходит.
	f := newPairFixture(t, Options{ExclusiveBorrows: true})
	inst := f.construct(t)

	_, err := inst.AcquireExclusive(fieldOwner)
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)

	if err := inst.FinalizeField(fieldRef); err != nil {
		t.Fatalf("finalize of the dependent failed: %v", err)
	}
	if inst.Live(fieldRef) {
		t.Fatalf("reference must be consumed")
	}

	id, err := inst.AcquireExclusive(fieldOwner)
	if err != nil {
		t.Fatalf("exclusive after dependent finalize failed: %v", err)
	}
	inst.Release(id)
	inst.Finalize()
	if !inst.Finalized() {
		t.Fatalf("instance must report finalized")
	}
}

func TestFinalizeFieldRejectsBorrowedBase(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	err := inst.FinalizeField(fieldOwner)
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)
	inst.Finalize()
}

func TestConsumedFieldRejectsFurtherUse(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	if err := inst.FinalizeField(fieldRef); err != nil {
		t.Fatalf("finalize reference: %v", err)
	}
	_, err := inst.AcquireShared(fieldRef)
	asBorrowError(t, err, diag.BorrowConsumed)
	if err := inst.FinalizeField(fieldRef); err == nil {
		t.Fatalf("double finalize must fail")
	}
	inst.Finalize()
	if _, err := inst.AcquireShared(fieldOwner); err == nil {
		t.Fatalf("finalized instance must reject borrows")
	}
}

// chainFixture validates owner <- view <- cursor: view binds its own
// lifetime while borrowing owner's.
func newChainFixture(t *testing.T, opts Options) (*Engine, *schema.StructSchema) {
	t.Helper()
	eng := New(opts)
	for _, typ := range []string{"Box", "Pin"} {
		if err := eng.RegisterCapability(typ, capreg.StableDeref); err != nil {
			t.Fatalf("register %s: %v", typ, err)
		}
	}
	eng.Freeze()

	in := eng.Interner()
	fields := []schema.FieldDecl{
		{Name: in.Intern("owner"), Type: schema.TypeRef{Name: in.Intern("Box")}, Binds: in.Intern("'a")},
		{Name: in.Intern("view"), Type: schema.TypeRef{
			Name:      in.Intern("Pin"),
			Lifetimes: []source.StringID{in.Intern("'a")},
		}, Binds: in.Intern("'b")},
		{Name: in.Intern("cursor"), Type: schema.TypeRef{
			Name:      in.Intern("Ref"),
			Lifetimes: []source.StringID{in.Intern("'b")},
		}},
	}
	bag := diag.NewBag(8)
	s, ok := eng.ValidateStruct("Chain", fields, diag.BagReporter{Bag: bag})
	if !ok {
		t.Fatalf("chain schema failed validation: %v", bag.Items())
	}
	return eng, s
}

func TestFinalizeFieldFailureKeepsOwnBorrows(t *testing.T) {
	const (
		fOwner  = schema.FieldIndex(0)
		fView   = schema.FieldIndex(1)
		fCursor = schema.FieldIndex(2)
	)
	eng, s := newChainFixture(t, Options{ExclusiveBorrows: true})
	inst, err := eng.Construct(s, []Value{"boxed", "pinned view", "&view"}, nil)
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	// view is still borrowed by cursor, so finalizing it fails — and the
	// failure must not release view's own borrow on owner.
	err = inst.FinalizeField(fView)
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)
	if !inst.Live(fView) {
		t.Fatalf("view must stay live after a failed finalize")
	}
	_, err = inst.AcquireExclusive(fOwner)
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)

	// Inner-first finalization unblocks the chain.
	if err := inst.FinalizeField(fCursor); err != nil {
		t.Fatalf("finalize cursor: %v", err)
	}
	if err := inst.FinalizeField(fView); err != nil {
		t.Fatalf("finalize view: %v", err)
	}
	id, err := inst.AcquireExclusive(fOwner)
	if err != nil {
		t.Fatalf("exclusive on owner after the chain collapsed: %v", err)
	}
	inst.Release(id)
	inst.Finalize()
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	inst.Finalize()
	inst.Finalize()
	if v, ok := inst.Value(fieldOwner); ok || v != nil {
		t.Fatalf("values must be released after finalize")
	}
}

func TestFinalizePanicsOnLeakedHostBorrow(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	if _, err := inst.AcquireShared(fieldOwner); err != nil {
		t.Fatalf("shared acquire failed: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic: handle outlives the instance")
		}
	}()
	inst.Finalize()
}
