package btree

import (
	"path/filepath"
	"testing"

	"github.com/relationalcore/engine/common/testutil"
	"github.com/relationalcore/engine/storage/buffer"
	"github.com/relationalcore/engine/storage/disk"
)

const testPayloadSize = 8

func payloadFor(key uint32) []byte {
	p := make([]byte, testPayloadSize)
	for i := range p {
		p[i] = byte(key >> (8 * uint(i%4)))
	}
	return p
}

func setupTree(t *testing.T, pageSize, numFrames int) *Tree {
	dir := testutil.TempDir(t)
	d, err := disk.Open(filepath.Join(dir, "data.db"), pageSize)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	pool := buffer.NewPool(d, numFrames)
	t.Cleanup(func() { pool.Close() })
	return Open(d, pool, testPayloadSize)
}

func TestInsertSearchRoundTrip(t *testing.T) {
	tree := setupTree(t, 4096, 32)

	for k := uint32(0); k < 200; k++ {
		if err := tree.Insert(k, payloadFor(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	for k := uint32(0); k < 200; k++ {
		got, err := tree.Search(k)
		if err != nil {
			t.Fatalf("Search(%d): %v", k, err)
		}
		want := payloadFor(k)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Search(%d) payload mismatch: got %v want %v", k, got, want)
			}
		}
	}
}

func TestInsertDuplicateKey(t *testing.T) {
	tree := setupTree(t, 4096, 32)

	if err := tree.Insert(1, payloadFor(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(1, payloadFor(1)); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSearchMissingKey(t *testing.T) {
	tree := setupTree(t, 4096, 32)

	if _, err := tree.Search(42); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestSplitOnInsert drives enough insertions on a tiny page size to force
// leaf and internal splits, then verifies every key still resolves and a
// new root was created.
func TestSplitOnInsert(t *testing.T) {
	// A small page size keeps fanout low so a handful of keys forces
	// several levels of splitting.
	tree := setupTree(t, 128, 64)

	const n = 500
	for k := uint32(0); k < n; k++ {
		if err := tree.Insert(k, payloadFor(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	for k := uint32(0); k < n; k++ {
		if _, err := tree.Search(k); err != nil {
			t.Fatalf("Search(%d) after splits: %v", k, err)
		}
	}

	// A fresh data file starts with page 1 as its root leaf.
	if root := tree.disk.RootPageID(); root == 1 {
		t.Fatalf("expected a new root after splits, root is still page %d", root)
	}
}

// TestDeleteMergeAndSteal inserts a run of keys on a small page size (to
// force internal structure), deletes most of them, and checks the survivors
// are still reachable — exercising steal and merge rebalancing.
func TestDeleteMergeAndSteal(t *testing.T) {
	tree := setupTree(t, 128, 64)

	const n = 300
	for k := uint32(0); k < n; k++ {
		if err := tree.Insert(k, payloadFor(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	// Delete every other key, forcing the surviving leaves well under
	// their minimum occupancy.
	for k := uint32(0); k < n; k += 2 {
		if err := tree.Delete(k); err != nil {
			t.Fatalf("Delete(%d): %v", k, err)
		}
	}

	for k := uint32(0); k < n; k++ {
		_, err := tree.Search(k)
		if k%2 == 0 {
			if err != ErrNotFound {
				t.Fatalf("Search(%d): expected ErrNotFound after delete, got %v", k, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Search(%d): expected survivor, got %v", k, err)
		}
	}
}

func TestDeleteMissingKey(t *testing.T) {
	tree := setupTree(t, 4096, 32)

	if err := tree.Insert(1, payloadFor(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Delete(2); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestDeleteAllThenReinsert drives a tree down to empty and confirms it is
// still usable afterward (root collapse does not corrupt state).
func TestDeleteAllThenReinsert(t *testing.T) {
	tree := setupTree(t, 128, 64)

	const n = 200
	for k := uint32(0); k < n; k++ {
		if err := tree.Insert(k, payloadFor(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	for k := uint32(0); k < n; k++ {
		if err := tree.Delete(k); err != nil {
			t.Fatalf("Delete(%d): %v", k, err)
		}
	}
	if _, err := tree.Search(0); err != ErrNotFound {
		t.Fatalf("expected empty tree, got %v", err)
	}

	for k := uint32(n); k < n+50; k++ {
		if err := tree.Insert(k, payloadFor(k)); err != nil {
			t.Fatalf("Insert(%d) after drain: %v", k, err)
		}
	}
	for k := uint32(n); k < n+50; k++ {
		if _, err := tree.Search(k); err != nil {
			t.Fatalf("Search(%d) after refill: %v", k, err)
		}
	}
}

// TestScanRangeOrder is the range-order testable property: a full scan
// visits keys in strictly ascending order.
func TestScanRangeOrder(t *testing.T) {
	tree := setupTree(t, 128, 64)

	const n = 400
	for _, k := range shuffledRange(n) {
		if err := tree.Insert(k, payloadFor(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	it, err := tree.Scan(0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()

	var prev uint32
	count := 0
	for it.Next() {
		if count > 0 && it.Key() <= prev {
			t.Fatalf("range order violated: %d followed by %d", prev, it.Key())
		}
		prev = it.Key()
		count++
	}
	if count != n {
		t.Fatalf("expected %d keys from scan, got %d", n, count)
	}
}

func shuffledRange(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	// Deterministic interleave rather than math/rand, since this is a
	// structural test, not a randomized one.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		if i%2 == 0 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
