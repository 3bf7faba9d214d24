// Package btree implements the storage engine's B+ tree index: on-disk
// node layout, search/insert/delete with split/merge/redistribute, and
// latch crabbing for concurrent traversal. It consumes the buffer pool
// for all page I/O.
package btree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relationalcore/engine/storage/buffer"
	"github.com/relationalcore/engine/storage/disk"
	"github.com/relationalcore/engine/storage/page"
)

// rootSetter is the subset of *disk.Manager the tree needs for the root
// page id, kept as an interface so tests can substitute a fake.
type rootSetter interface {
	RootPageID() uint32
	SetRootPageID(uint32) error
}

// Tree is a disk-resident B+ tree index over fixed uint32 keys and
// fixed-width row payloads.
type Tree struct {
	pool        *buffer.Pool
	disk        rootSetter
	payloadSize int
	leafCap     int
	internalCap int

	// rootMu serializes structural changes at the root (split producing a
	// new root, or collapse removing one) since those are announced via
	// disk.SetRootPageID rather than a parent pointer.
	rootMu sync.Mutex

	closed atomic.Bool

	stats struct {
		inserts atomic.Int64
		deletes atomic.Int64
		reads   atomic.Int64
	}
}

// Open constructs a Tree over an already-open buffer pool and disk manager.
func Open(d *disk.Manager, pool *buffer.Pool, payloadSize int) *Tree {
	pageSize := d.PageSize()
	// Insert places the new entry before splitting, so a node briefly holds
	// capacity+1 entries; keep one slot of the page free for that overflow.
	return &Tree{
		pool:        pool,
		disk:        d,
		payloadSize: payloadSize,
		leafCap:     page.LeafCapacity(pageSize, payloadSize) - 1,
		internalCap: page.InternalCapacity(pageSize) - 1,
	}
}

// Close marks the tree closed; the caller owns closing the underlying
// pool/disk manager.
func (t *Tree) Close() { t.closed.Store(true) }

// Stats is a snapshot of tree-level operation counters.
type Stats struct {
	Inserts int64
	Deletes int64
	Reads   int64
}

func (t *Tree) Stats() Stats {
	return Stats{
		Inserts: t.stats.inserts.Load(),
		Deletes: t.stats.deletes.Load(),
		Reads:   t.stats.reads.Load(),
	}
}

// ancestor records a write-latched node kept during a descent because it
// was not yet known to be safe, along with the position of the child
// followed from it (-1 = leftmost pointer, i = the pointer right of k(i+1)).
type ancestor struct {
	guard    *buffer.FrameGuard
	childIdx int
}

// Search returns the payload stored under key, or ErrNotFound.
func (t *Tree) Search(key uint32) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	t.stats.reads.Add(1)

	pageID := t.disk.RootPageID()
	guard, err := t.pool.FetchPage(pageID, buffer.LatchRead)
	if err != nil {
		return nil, err
	}

	for {
		p := guard.Page()
		if p.IsLeaf() {
			idx := searchLeaf(p, key, t.payloadSize)
			if idx < 0 {
				guard.Release(false)
				return nil, ErrNotFound
			}
			payload := p.LeafPayloadAt(idx, t.payloadSize)
			guard.Release(false)
			return payload, nil
		}

		_, childID := childForKey(p, key)
		childGuard, err := t.pool.FetchPage(childID, buffer.LatchRead)
		if err != nil {
			guard.Release(false)
			return nil, err
		}
		guard.Release(false) // read latch coupling: child held, parent dropped
		guard = childGuard
	}
}

// Insert adds (key, payload) to the tree. Fails with ErrDuplicateKey if
// key is already present.
func (t *Tree) Insert(key uint32, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}

	var ancestors []ancestor
	pageID := t.disk.RootPageID()
	guard, err := t.pool.FetchPage(pageID, buffer.LatchWrite)
	if err != nil {
		return err
	}

	for !guard.Page().IsLeaf() {
		p := guard.Page()
		idx, childID := childForKey(p, key)
		childGuard, err := t.pool.FetchPage(childID, buffer.LatchWrite)
		if err != nil {
			guard.Release(false)
			releaseAncestors(ancestors, false)
			return err
		}

		if isSafeForInsert(childGuard.Page(), t.leafCap, t.internalCap) {
			guard.Release(false)
			releaseAncestors(ancestors, false)
			ancestors = ancestors[:0]
		} else {
			ancestors = append(ancestors, ancestor{guard: guard, childIdx: idx})
		}
		guard = childGuard
	}

	leaf := guard.Page()
	if err := insertLeafEntry(leaf, key, payload, t.payloadSize); err != nil {
		guard.Release(false)
		releaseAncestors(ancestors, false)
		return err
	}

	if int(leaf.Count()) <= t.leafCap {
		guard.Release(true)
		releaseAncestors(ancestors, false)
		t.stats.inserts.Add(1)
		return nil
	}

	if err := t.propagateSplit(guard, ancestors); err != nil {
		return err
	}
	t.stats.inserts.Add(1)
	return nil
}

// propagateSplit splits guard's overflowing page and, if the split
// produces a promoted separator, inserts it into the immediate ancestor,
// cascading further splits up through ancestors as needed. If ancestors is
// exhausted (the root itself split), a new root is created.
func (t *Tree) propagateSplit(guard *buffer.FrameGuard, ancestors []ancestor) error {
	p := guard.Page()

	var promoteKey, rightID uint32
	var err error
	if p.IsLeaf() {
		promoteKey, rightID, err = t.splitLeaf(p)
	} else {
		promoteKey, rightID, err = t.splitInternal(p)
	}
	if err != nil {
		guard.Release(false)
		releaseAncestors(ancestors, false)
		return err
	}
	guard.Release(true)

	for len(ancestors) > 0 {
		last := ancestors[len(ancestors)-1]
		ancestors = ancestors[:len(ancestors)-1]
		parent := last.guard.Page()

		insertSeparator(parent, promoteKey, rightID)
		if err := t.setChildParent(rightID, parent.ID()); err != nil {
			last.guard.Release(true)
			releaseAncestors(ancestors, false)
			return err
		}

		if int(parent.Count()) <= t.internalCap {
			last.guard.Release(true)
			releaseAncestors(ancestors, false)
			return nil
		}

		promoteKey, rightID, err = t.splitInternal(parent)
		if err != nil {
			last.guard.Release(true)
			releaseAncestors(ancestors, false)
			return err
		}
		last.guard.Release(true)
	}

	// Ancestors exhausted: the root just split. Create a new root whose
	// two children are the old root and its new sibling.
	return t.newRoot(promoteKey, rightID)
}

func (t *Tree) setChildParent(childID, parentID uint32) error {
	g, err := t.pool.FetchPage(childID, buffer.LatchWrite)
	if err != nil {
		return fmt.Errorf("btree: set child parent: %w", err)
	}
	g.Page().SetParent(parentID)
	g.Release(true)
	return nil
}

// newRoot replaces the current root with a fresh internal node whose
// leftmost child is the old root and whose single separator is
// (promoteKey, rightID).
func (t *Tree) newRoot(promoteKey, rightID uint32) error {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	oldRootID := t.disk.RootPageID()

	newRootID, guard, err := t.pool.NewPage()
	if err != nil {
		return fmt.Errorf("btree: allocate new root: %w", err)
	}
	root := guard.Page()
	root.SetKind(page.KindInternal)
	root.SetParent(page.RootPageID)
	root.SetLeftmostChild(oldRootID)
	root.SetInternalEntry(0, promoteKey, rightID)
	root.SetCount(1)
	guard.Release(true)

	if err := t.setChildParent(oldRootID, newRootID); err != nil {
		return err
	}
	if err := t.setChildParent(rightID, newRootID); err != nil {
		return err
	}
	return t.disk.SetRootPageID(newRootID)
}

func releaseAncestors(ancestors []ancestor, dirty bool) {
	for i := len(ancestors) - 1; i >= 0; i-- {
		ancestors[i].guard.Release(dirty)
	}
}

// Update overwrites the payload stored under key in place. Fails with
// ErrNotFound if key is absent. Since the payload is fixed-width this
// never changes a node's entry count, so no split/merge crabbing is
// needed: descent keeps no ancestor chain, and each parent's write latch
// is released as soon as the child's write latch is acquired.
func (t *Tree) Update(key uint32, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}

	pageID := t.disk.RootPageID()
	guard, err := t.pool.FetchPage(pageID, buffer.LatchWrite)
	if err != nil {
		return err
	}

	for !guard.Page().IsLeaf() {
		_, childID := childForKey(guard.Page(), key)
		childGuard, err := t.pool.FetchPage(childID, buffer.LatchWrite)
		if err != nil {
			guard.Release(false)
			return err
		}
		guard.Release(false)
		guard = childGuard
	}

	leaf := guard.Page()
	idx := searchLeaf(leaf, key, t.payloadSize)
	if idx < 0 {
		guard.Release(false)
		return ErrNotFound
	}
	leaf.SetLeafEntry(idx, key, payload, t.payloadSize)
	guard.Release(true)
	return nil
}

// Delete removes key from the tree. Fails with ErrNotFound if key is absent.
func (t *Tree) Delete(key uint32) error {
	if t.closed.Load() {
		return ErrClosed
	}

	var ancestors []ancestor
	pageID := t.disk.RootPageID()
	guard, err := t.pool.FetchPage(pageID, buffer.LatchWrite)
	if err != nil {
		return err
	}

	for !guard.Page().IsLeaf() {
		p := guard.Page()
		idx, childID := childForKey(p, key)
		childGuard, err := t.pool.FetchPage(childID, buffer.LatchWrite)
		if err != nil {
			guard.Release(false)
			releaseAncestors(ancestors, false)
			return err
		}

		if isSafeForDelete(childGuard.Page(), t.leafCap, t.internalCap) {
			guard.Release(false)
			releaseAncestors(ancestors, false)
			ancestors = ancestors[:0]
		} else {
			ancestors = append(ancestors, ancestor{guard: guard, childIdx: idx})
		}
		guard = childGuard
	}

	leaf := guard.Page()
	idx := searchLeaf(leaf, key, t.payloadSize)
	if idx < 0 {
		guard.Release(false)
		releaseAncestors(ancestors, false)
		return ErrNotFound
	}
	leaf.RemoveLeafEntry(idx, t.payloadSize, int(leaf.Count()))
	t.stats.deletes.Add(1)

	if len(ancestors) == 0 {
		// Leaf is (or was determined safe as) the only node on its path;
		// a root leaf never underflows structurally.
		guard.Release(true)
		return nil
	}

	return t.rebalanceCascade(guard, ancestors)
}

// rebalanceCascade repairs underflow starting at guard's page and working
// up through ancestors, stopping as soon as a level is safe or a steal
// resolves the underflow; a chain of merges may reach the root and
// collapse it.
func (t *Tree) rebalanceCascade(guard *buffer.FrameGuard, ancestors []ancestor) error {
	for len(ancestors) > 0 {
		p := guard.Page()
		cap := t.leafCap
		if !p.IsLeaf() {
			cap = t.internalCap
		}
		if int(p.Count()) >= minOccupancy(cap) {
			guard.Release(true)
			releaseAncestors(ancestors, false)
			return nil
		}

		last := ancestors[len(ancestors)-1]
		ancestors = ancestors[:len(ancestors)-1]

		merged, err := t.rebalanceOneLevel(last.guard.Page(), guard, last.childIdx)
		if err != nil {
			last.guard.Release(true)
			releaseAncestors(ancestors, false)
			return err
		}
		if !merged {
			last.guard.Release(true)
			releaseAncestors(ancestors, false)
			return nil
		}

		guard = last.guard // continue the cascade with the parent
	}

	return t.maybeCollapseRoot(guard)
}

// maybeCollapseRoot replaces the root with its sole child if the root is
// an internal node left with zero separators (one child) after a merge.
func (t *Tree) maybeCollapseRoot(guard *buffer.FrameGuard) error {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	p := guard.Page()
	if p.IsLeaf() || p.Count() != 0 {
		guard.Release(true)
		return nil
	}

	oldRootID := p.ID()
	newRootID := p.LeftmostChild()
	guard.Release(false)

	if err := t.setChildParent(newRootID, page.RootPageID); err != nil {
		return err
	}
	if err := t.disk.SetRootPageID(newRootID); err != nil {
		return err
	}
	return t.pool.DeletePage(oldRootID)
}
