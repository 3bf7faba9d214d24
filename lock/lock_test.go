package lock

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relationalcore/engine/storage/page"
	"github.com/relationalcore/engine/txn"
)

type stubReleaser struct{ m *Manager }

func (s stubReleaser) ReleaseAll(txnID uint64) { s.m.ReleaseAll(txnID) }

func newHarness() (*Manager, *txn.Manager) {
	lm := NewManager()
	tm := txn.NewManager(stubReleaser{lm}, 1)
	return lm, tm
}

// TestWriteReadConflict is scenario 6: T1 X-locks r, T2's S request blocks,
// T1 unlocks, T2 proceeds, then T1's further lock attempt fails as it is
// now Shrinking.
func TestWriteReadConflict(t *testing.T) {
	lm, tm := newHarness()
	rid := page.RecordID{PageID: 1, Slot: 0}

	t1 := tm.Begin()
	t2 := tm.Begin()

	if err := lm.LockExclusive(t1, rid); err != nil {
		t.Fatalf("T1 LockExclusive: %v", err)
	}

	grantedCh := make(chan error, 1)
	go func() { grantedCh <- lm.LockShared(t2, rid) }()

	select {
	case <-grantedCh:
		t.Fatal("T2's shared lock should have blocked behind T1's exclusive grant")
	case <-time.After(50 * time.Millisecond):
	}

	if err := lm.Unlock(t1, rid); err != nil {
		t.Fatalf("T1 Unlock: %v", err)
	}

	select {
	case err := <-grantedCh:
		if err != nil {
			t.Fatalf("T2 LockShared after T1 unlock: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("T2's shared lock never granted after T1 released")
	}

	if err := lm.LockShared(t1, rid); !errors.Is(err, ErrLockOnShrinking) {
		t.Fatalf("expected ErrLockOnShrinking, got %v", err)
	}
}

// TestUpgrade is scenario 7: T1 and T2 both hold S; T1's upgrade blocks
// until T2 releases, then completes as X.
func TestUpgrade(t *testing.T) {
	lm, tm := newHarness()
	rid := page.RecordID{PageID: 1, Slot: 0}

	t1 := tm.Begin()
	t2 := tm.Begin()

	if err := lm.LockShared(t1, rid); err != nil {
		t.Fatalf("T1 LockShared: %v", err)
	}
	if err := lm.LockShared(t2, rid); err != nil {
		t.Fatalf("T2 LockShared: %v", err)
	}

	upgradeDone := make(chan error, 1)
	go func() { upgradeDone <- lm.LockUpgrade(t1, rid) }()

	select {
	case <-upgradeDone:
		t.Fatal("upgrade should block while T2 still holds a shared lock")
	case <-time.After(50 * time.Millisecond):
	}

	if err := lm.Unlock(t2, rid); err != nil {
		t.Fatalf("T2 Unlock: %v", err)
	}

	select {
	case err := <-upgradeDone:
		if err != nil {
			t.Fatalf("T1 upgrade: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("T1's upgrade never completed after T2 released")
	}
}

// TestGrantedSetPairwiseCompatible is the lock-compatibility invariant:
// at any instant every pair of granted requests on a record is compatible.
func TestGrantedSetPairwiseCompatible(t *testing.T) {
	lm, tm := newHarness()
	rid := page.RecordID{PageID: 7, Slot: 0}

	var wg sync.WaitGroup
	const n = 8
	txns := make([]*txn.Transaction, n)
	for i := range txns {
		txns[i] = tm.Begin()
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(tx *txn.Transaction) {
			defer wg.Done()
			lm.LockShared(tx, rid)
		}(txns[i])
	}
	wg.Wait()

	q := lm.getQueue(rid)
	q.mu.Lock()
	for i := range q.granted {
		for j := range q.granted {
			if i == j {
				continue
			}
			if !isCompatible(q.granted[i].mode, q.granted[j].mode) {
				q.mu.Unlock()
				t.Fatalf("incompatible pair granted simultaneously: %v %v", q.granted[i], q.granted[j])
			}
		}
	}
	q.mu.Unlock()
}

func TestUpgradeConflictWhenAlreadyPending(t *testing.T) {
	lm, tm := newHarness()
	rid := page.RecordID{PageID: 3, Slot: 0}

	t1 := tm.Begin()
	t2 := tm.Begin()
	t3 := tm.Begin()

	for _, tx := range []*txn.Transaction{t1, t2, t3} {
		if err := lm.LockShared(tx, rid); err != nil {
			t.Fatalf("LockShared: %v", err)
		}
	}

	go lm.LockUpgrade(t1, rid)
	time.Sleep(20 * time.Millisecond)

	if err := lm.LockUpgrade(t2, rid); !errors.Is(err, ErrUpgradeConflict) {
		t.Fatalf("expected ErrUpgradeConflict, got %v", err)
	}
}
