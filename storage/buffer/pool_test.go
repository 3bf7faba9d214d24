package buffer

import (
	"path/filepath"
	"testing"

	"github.com/relationalcore/engine/common/testutil"
	"github.com/relationalcore/engine/storage/disk"
)

func setupPool(t *testing.T, numFrames int) *Pool {
	dir := testutil.TempDir(t)
	d, err := disk.Open(filepath.Join(dir, "data.db"), 4096)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	pool := NewPool(d, numFrames)
	t.Cleanup(func() { pool.Close() })
	return pool
}

// TestBufferEviction is scenario 4: pool size 2, fetch 1/unpin, fetch
// 2/unpin, fetch 3 evicts 1 (LRU), fetch 1 again evicts 2.
func TestBufferEviction(t *testing.T) {
	pool := setupPool(t, 2)

	id1, g1, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage 1: %v", err)
	}
	g1.Release(false)

	id2, g2, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage 2: %v", err)
	}
	g2.Release(false)

	_, g3, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage 3: %v", err)
	}
	g3.Release(false)

	if _, ok := pool.pageTable[id1]; ok {
		t.Fatalf("expected page %d (LRU) to have been evicted", id1)
	}
	if _, ok := pool.pageTable[id2]; !ok {
		t.Fatalf("expected page %d to still be resident", id2)
	}

	g1again, err := pool.FetchPage(id1, LatchRead)
	if err != nil {
		t.Fatalf("refetch page 1: %v", err)
	}
	g1again.Release(false)

	if _, ok := pool.pageTable[id2]; ok {
		t.Fatalf("expected page %d to have been evicted next", id2)
	}
}

// TestPinExhaustion is scenario 5: pool size 2, fetch 1 and 2 without
// unpinning, fetch 3 fails with NoFreeFrame.
func TestPinExhaustion(t *testing.T) {
	pool := setupPool(t, 2)

	_, g1, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage 1: %v", err)
	}
	defer g1.Release(false)

	_, g2, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage 2: %v", err)
	}
	defer g2.Release(false)

	_, _, err = pool.NewPage()
	if err != ErrNoFreeFrame {
		t.Fatalf("expected ErrNoFreeFrame, got %v", err)
	}
}

func TestFlushPageRoundTrip(t *testing.T) {
	pool := setupPool(t, 4)

	id, g, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	copy(g.Page().Data()[13:17], []byte{1, 2, 3, 4})
	g.Release(true)

	if err := pool.FlushPage(id); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	if err := pool.DeletePage(id); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}

	g2, err := pool.FetchPage(id, LatchRead)
	if err != nil {
		t.Fatalf("FetchPage after delete: %v", err)
	}
	defer g2.Release(false)

	got := g2.Page().Data()[13:17]
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round-trip mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
