package engine

import (
	"testing"

	"ouro/internal/diag"
	"ouro/internal/schema"
)

func TestDestructureBaseAloneFails(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	_, err := inst.Destructure([]schema.FieldIndex{fieldOwner})
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)
	// Неудачный вызов ничего не перемещает.
	if !inst.Live(fieldOwner) || !inst.Live(fieldRef) {
		t.Fatalf("failed destructure must leave the instance intact")
	}
	inst.Finalize()
}

func TestDestructureDependentAloneReleasesBorrow(t *testing.T) {
	f := newPairFixture(t, Options{ExclusiveBorrows: true})
	inst := f.construct(t)
	out, err := inst.Destructure([]schema.FieldIndex{fieldRef})
	if err != nil {
		t.Fatalf("dependent-only destructure failed: %v", err)
	}
	if v, ok := out.Value(fieldRef); !ok || v != "&data" {
		t.Fatalf("extracted value wrong: %v %v", v, ok)
	}
	if _, ok := out.Value(fieldOwner); ok {
		t.Fatalf("owner must not be extracted")
	}
	// Остаток финализируется в рамках того же вызова.
	if !inst.Finalized() {
		t.Fatalf("remainder must be finalized")
	}
	if err := out.MutationAllowed(fieldRef); err != nil {
		t.Fatalf("independently owned value must be mutable: %v", err)
	}
}

func TestDestructureGroupPreservesBorrowRelationship(t *testing.T) {
	// Сквозной сценарий: пара уезжает целиком, взаимный заём сохраняется.
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	out, err := inst.Destructure([]schema.FieldIndex{fieldOwner, fieldRef})
	if err != nil {
		t.Fatalf("group destructure failed: %v", err)
	}
	if !inst.Finalized() {
		t.Fatalf("source instance must be consumed")
	}

	err = out.MutationAllowed(fieldOwner)
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)

	if err := out.DropField(fieldRef); err != nil {
		t.Fatalf("drop of the dependent failed: %v", err)
	}
	if err := out.MutationAllowed(fieldOwner); err != nil {
		t.Fatalf("mutation must be allowed once the reference is gone: %v", err)
	}
	if err := out.DropField(fieldOwner); err != nil {
		t.Fatalf("drop of the base failed: %v", err)
	}
	if _, ok := out.Value(fieldOwner); ok {
		t.Fatalf("dropped field must be gone")
	}
}

func TestDestructureDropBorrowedBaseFails(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	out, err := inst.Destructure([]schema.FieldIndex{fieldOwner, fieldRef})
	if err != nil {
		t.Fatalf("group destructure failed: %v", err)
	}
	err = out.DropField(fieldOwner)
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)
}

func TestDestructureRejectsConsumedField(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	if err := inst.FinalizeField(fieldRef); err != nil {
		t.Fatalf("finalize reference: %v", err)
	}
	_, err := inst.Destructure([]schema.FieldIndex{fieldRef})
	asBorrowError(t, err, diag.BorrowConsumed)
	inst.Finalize()

	_, err = inst.Destructure([]schema.FieldIndex{fieldOwner})
	asBorrowError(t, err, diag.BorrowConsumed)
}

func TestDestructureRejectsHostBorrowOnRemainder(t *testing.T) {
	f := newPairFixture(t, Options{})
	inst := f.construct(t)
	if err := inst.FinalizeField(fieldRef); err != nil {
		t.Fatalf("finalize reference: %v", err)
	}
	if _, err := inst.AcquireShared(fieldOwner); err != nil {
		t.Fatalf("host borrow failed: %v", err)
	}
	// owner остаётся и был бы финализирован под живым займом хоста.
	_, err := inst.Destructure([]schema.FieldIndex{})
	asBorrowError(t, err, diag.BorrowAlreadyBorrowed)
}
