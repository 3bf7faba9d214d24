package table

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/relationalcore/engine/btree"
	"github.com/relationalcore/engine/common/testutil"
	"github.com/relationalcore/engine/config"
	"github.com/relationalcore/engine/lock"
	"github.com/relationalcore/engine/storage/page"
)

func openTable(t *testing.T) *Table {
	dir := testutil.TempDir(t)
	cfg := config.Config{DataFile: filepath.Join(dir, "data.db"), PayloadSize: 8}
	tbl, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func row(id uint32) page.Row {
	return page.Row{ID: id, Payload: []byte{byte(id), byte(id >> 8), 0, 0, 0, 0, 0, 0}}
}

func TestInsertCommitScan(t *testing.T) {
	tbl := openTable(t)

	tx := tbl.Begin()
	if err := tbl.Insert(tx, row(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rtx := tbl.Begin()
	got, err := tbl.Scan(rtx, 1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected row id 1, got %d", got.ID)
	}
	tbl.Commit(rtx)
}

func TestInsertThenAbortStillVisible(t *testing.T) {
	// Per spec.md §4.5, abort releases locks but does not roll back data.
	tbl := openTable(t)

	tx := tbl.Begin()
	if err := tbl.Insert(tx, row(5)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Abort(tx); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	rtx := tbl.Begin()
	defer tbl.Commit(rtx)
	if _, err := tbl.Scan(rtx, 5); err != nil {
		t.Fatalf("expected row to remain visible after abort, got %v", err)
	}
}

func TestUpdateUpgradesFromSharedScan(t *testing.T) {
	tbl := openTable(t)

	seed := tbl.Begin()
	if err := tbl.Insert(seed, row(9)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	tbl.Commit(seed)

	tx := tbl.Begin()
	if _, err := tbl.Scan(tx, 9); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	newRow := row(9)
	newRow.Payload[2] = 0xff
	if err := tbl.Update(tx, 9, newRow); err != nil {
		t.Fatalf("Update: %v", err)
	}
	tbl.Commit(tx)

	verify := tbl.Begin()
	got, err := tbl.Scan(verify, 9)
	if err != nil {
		t.Fatalf("Scan after update: %v", err)
	}
	if got.Payload[2] != 0xff {
		t.Fatalf("expected updated payload, got %v", got.Payload)
	}
	tbl.Commit(verify)
}

func TestDeleteThenScanMisses(t *testing.T) {
	tbl := openTable(t)

	tx := tbl.Begin()
	if err := tbl.Insert(tx, row(3)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Delete(tx, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	tbl.Commit(tx)

	verify := tbl.Begin()
	defer tbl.Commit(verify)
	if _, err := tbl.Scan(verify, 3); !errors.Is(err, btree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLockOnShrinkingSurfacesThroughTable(t *testing.T) {
	tbl := openTable(t)

	tx := tbl.Begin()
	if err := tbl.Insert(tx, row(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Delete(tx, 1); err != nil {
		t.Fatalf("Delete (releases nothing yet): %v", err)
	}
	// Force t into Shrinking by releasing directly, simulating a caller
	// that unlocked early outside the table's own lock/unlock pairing.
	tbl.locks.Unlock(tx, recordIDForKey(1))

	if err := tbl.Insert(tx, row(2)); !errors.Is(err, lock.ErrLockOnShrinking) {
		t.Fatalf("expected ErrLockOnShrinking, got %v", err)
	}
	tbl.Abort(tx)
}

func TestRangeScanOrder(t *testing.T) {
	tbl := openTable(t)

	tx := tbl.Begin()
	for _, k := range []uint32{5, 1, 3, 2, 4} {
		if err := tbl.Insert(tx, row(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	tbl.Commit(tx)

	it, err := tbl.RangeScan(0)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	defer it.Close()

	var prev uint32
	count := 0
	for it.Next() {
		if count > 0 && it.Key() <= prev {
			t.Fatalf("out of order: %d then %d", prev, it.Key())
		}
		prev = it.Key()
		count++
	}
	if count != 5 {
		t.Fatalf("expected 5 rows, got %d", count)
	}
}
