package btree

import (
	"github.com/relationalcore/engine/storage/buffer"
)

// Iterator walks leaf entries in ascending key order by following the
// next_leaf chain, starting from the leaf that would contain from.
type Iterator struct {
	tree    *Tree
	guard   *buffer.FrameGuard
	idx     int
	key     uint32
	payload []byte
	done    bool
}

// Scan returns an Iterator positioned before the first key >= from. Call
// Next to advance to the first entry, then Key/Payload to read it. The
// caller must call Close when finished (or drain to exhaustion) to
// release the held leaf latch.
func (t *Tree) Scan(from uint32) (*Iterator, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	pageID := t.disk.RootPageID()
	guard, err := t.pool.FetchPage(pageID, buffer.LatchRead)
	if err != nil {
		return nil, err
	}

	for !guard.Page().IsLeaf() {
		_, childID := childForKey(guard.Page(), from)
		childGuard, err := t.pool.FetchPage(childID, buffer.LatchRead)
		if err != nil {
			guard.Release(false)
			return nil, err
		}
		guard.Release(false)
		guard = childGuard
	}

	idx := searchLeaf(guard.Page(), from, t.payloadSize)
	if idx < 0 {
		idx = -(idx + 1)
	}

	return &Iterator{tree: t, guard: guard, idx: idx - 1}, nil
}

// Next advances the iterator. It returns false once the range is
// exhausted, at which point the iterator's leaf latch has been released.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	it.idx++

	for it.idx >= int(it.guard.Page().Count()) {
		nextID := it.guard.Page().NextLeaf()
		it.guard.Release(false)
		if nextID == 0 {
			it.done = true
			return false
		}
		nextGuard, err := it.tree.pool.FetchPage(nextID, buffer.LatchRead)
		if err != nil {
			it.done = true
			return false
		}
		it.guard = nextGuard
		it.idx = 0
	}

	p := it.guard.Page()
	it.key = p.LeafKeyAt(it.idx, it.tree.payloadSize)
	it.payload = p.LeafPayloadAt(it.idx, it.tree.payloadSize)
	return true
}

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() uint32 { return it.key }

// Payload returns the payload at the iterator's current position.
func (it *Iterator) Payload() []byte { return it.payload }

// Close releases the iterator's held leaf latch, if any. Safe to call
// after exhaustion or multiple times.
func (it *Iterator) Close() {
	if !it.done {
		it.guard.Release(false)
		it.done = true
	}
}
