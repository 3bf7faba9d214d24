package txn

import (
	"errors"
	"testing"
)

type noopReleaser struct{ released []uint64 }

func (r *noopReleaser) ReleaseAll(txnID uint64) { r.released = append(r.released, txnID) }

func TestBeginAssignsMonotonicIDs(t *testing.T) {
	m := NewManager(&noopReleaser{}, 1)

	t1 := m.Begin()
	t2 := m.Begin()
	t3 := m.Begin()

	if t1.ID() >= t2.ID() || t2.ID() >= t3.ID() {
		t.Fatalf("expected strictly increasing ids, got %d %d %d", t1.ID(), t2.ID(), t3.ID())
	}
	if t1.State() != Growing {
		t.Fatalf("expected new transaction to start Growing, got %v", t1.State())
	}
}

func TestCommitReleasesLocksAndTerminates(t *testing.T) {
	r := &noopReleaser{}
	m := NewManager(r, 1)

	tx := m.Begin()
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if tx.State() != Committed {
		t.Fatalf("expected Committed, got %v", tx.State())
	}
	if len(r.released) != 1 || r.released[0] != uint64(tx.ID()) {
		t.Fatalf("expected ReleaseAll(%d), got %v", tx.ID(), r.released)
	}
	if err := m.Commit(tx); !errors.Is(err, ErrNotGrowing) {
		t.Fatalf("expected ErrNotGrowing on double commit, got %v", err)
	}
}

func TestAbortTerminates(t *testing.T) {
	m := NewManager(&noopReleaser{}, 1)
	tx := m.Begin()
	if err := m.Abort(tx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if tx.State() != Aborted {
		t.Fatalf("expected Aborted, got %v", tx.State())
	}
}

func TestMarkShrinkingOnlyOnce(t *testing.T) {
	m := NewManager(&noopReleaser{}, 1)
	tx := m.Begin()

	tx.MarkShrinking()
	if tx.State() != Shrinking {
		t.Fatalf("expected Shrinking, got %v", tx.State())
	}
	tx.MarkShrinking() // idempotent
	if tx.State() != Shrinking {
		t.Fatalf("expected Shrinking to remain stable, got %v", tx.State())
	}
}
