package borrow

import (
	"testing"

	"ouro/internal/schema"
)

const target = schema.FieldIndex(0)

func TestSharedBorrowsCoexist(t *testing.T) {
	tr := NewTracker(false)
	var handles []HandleID
	for range 5 {
		id, issue := tr.AcquireShared(target, NoOwner)
		if issue.Kind != IssueNone {
			t.Fatalf("shared acquire must succeed while only shared are live: %v", issue.Kind)
		}
		handles = append(handles, id)
	}
	if got := tr.LiveOn(target); len(got) != 5 {
		t.Fatalf("expected 5 live handles, got %d", len(got))
	}
	for _, id := range handles {
		if !tr.Release(id) {
			t.Fatalf("release of %d failed", id)
		}
	}
	if tr.AnyLive(target) {
		t.Fatalf("no borrows must remain")
	}
}

func TestExclusiveBlockedByAnyBorrow(t *testing.T) {
	tr := NewTracker(true)
	shared, issue := tr.AcquireShared(target, NoOwner)
	if issue.Kind != IssueNone {
		t.Fatalf("shared acquire failed: %v", issue.Kind)
	}

	if _, issue := tr.AcquireExclusive(target, NoOwner); issue.Kind != IssueAlreadyBorrowed {
		t.Fatalf("exclusive over shared must report IssueAlreadyBorrowed, got %v", issue.Kind)
	}
	tr.Release(shared)

	excl, issue := tr.AcquireExclusive(target, NoOwner)
	if issue.Kind != IssueNone {
		t.Fatalf("exclusive acquire after release failed: %v", issue.Kind)
	}
	if _, issue := tr.AcquireExclusive(target, NoOwner); issue.Kind != IssueAlreadyBorrowed {
		t.Fatalf("second exclusive must report IssueAlreadyBorrowed, got %v", issue.Kind)
	}
	if _, issue := tr.AcquireShared(target, NoOwner); issue.Kind != IssueExclusiveHeld {
		t.Fatalf("shared over exclusive must report IssueExclusiveHeld, got %v", issue.Kind)
	}
	tr.Release(excl)
	if _, issue := tr.AcquireShared(target, NoOwner); issue.Kind != IssueNone {
		t.Fatalf("shared after exclusive release failed: %v", issue.Kind)
	}
}

func TestExclusiveDisabledByConfiguration(t *testing.T) {
	tr := NewTracker(false)
	if tr.ExclusiveEnabled() {
		t.Fatalf("tracker must report disabled exclusives")
	}
	// Отказ не зависит от текущего состояния поля.
	if _, issue := tr.AcquireExclusive(target, NoOwner); issue.Kind != IssueConfigDisabled {
		t.Fatalf("expected IssueConfigDisabled, got %v", issue.Kind)
	}
	if _, issue := tr.AcquireShared(target, NoOwner); issue.Kind != IssueNone {
		t.Fatalf("shared path must stay unaffected: %v", issue.Kind)
	}
	if _, issue := tr.AcquireExclusive(target, NoOwner); issue.Kind != IssueConfigDisabled {
		t.Fatalf("expected IssueConfigDisabled, got %v", issue.Kind)
	}
}

func TestReleaseUnknownHandle(t *testing.T) {
	tr := NewTracker(false)
	if tr.Release(NoHandleID) {
		t.Fatalf("NoHandleID must not release")
	}
	if tr.Release(HandleID(7)) {
		t.Fatalf("unknown handle must not release")
	}
	id, _ := tr.AcquireShared(target, NoOwner)
	if !tr.Release(id) {
		t.Fatalf("first release failed")
	}
	if tr.Release(id) {
		t.Fatalf("double release must fail")
	}
}

func TestReleaseOwnedBy(t *testing.T) {
	tr := NewTracker(false)
	depA := schema.FieldIndex(1)
	depB := schema.FieldIndex(2)
	tr.AcquireShared(target, depA)
	tr.AcquireShared(target, depA)
	keep, _ := tr.AcquireShared(target, depB)

	if n := tr.ReleaseOwnedBy(depA); n != 2 {
		t.Fatalf("expected 2 released, got %d", n)
	}
	live := tr.LiveOn(target)
	if len(live) != 1 || live[0] != keep {
		t.Fatalf("only depB's borrow must survive, got %v", live)
	}
}

func TestHandleInfo(t *testing.T) {
	tr := NewTracker(true)
	dep := schema.FieldIndex(3)
	id, _ := tr.AcquireExclusive(target, dep)
	info := tr.Info(id)
	if info == nil || info.Kind != Exclusive || info.Owner != dep || info.Target != target {
		t.Fatalf("unexpected info: %+v", info)
	}
	if Exclusive.String() != "exclusive" || Shared.String() != "shared" {
		t.Fatalf("Kind.String mismatch")
	}
}
