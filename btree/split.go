package btree

import (
	"fmt"

	"github.com/relationalcore/engine/storage/buffer"
	"github.com/relationalcore/engine/storage/page"
)

// splitLeaf splits an overflowing leaf page p in place: the smaller half
// stays in p (preserving its page_id for the parent's existing pointer),
// the upper half moves to a freshly allocated right sibling, and the leaf
// list is relinked. It returns the key to promote to the parent (the
// smallest key of the right sibling) and the right sibling's page id.
func (t *Tree) splitLeaf(p *page.Page) (promoteKey uint32, rightID uint32, err error) {
	count := int(p.Count())
	mid := count / 2

	rightID, rightGuard, err := t.pool.NewPage()
	if err != nil {
		return 0, 0, fmt.Errorf("btree: allocate split sibling: %w", err)
	}
	defer rightGuard.Release(true)

	right := rightGuard.Page()
	right.SetKind(page.KindLeaf)
	right.SetParent(p.Parent())
	right.SetNextLeaf(p.NextLeaf())

	for i := mid; i < count; i++ {
		key := p.LeafKeyAt(i, t.payloadSize)
		payload := p.LeafPayloadAt(i, t.payloadSize)
		right.SetLeafEntry(i-mid, key, payload, t.payloadSize)
	}
	right.SetCount(uint32(count - mid))

	p.SetCount(uint32(mid))
	p.SetNextLeaf(rightID)

	promoteKey = right.LeafKeyAt(0, t.payloadSize)
	return promoteKey, rightID, nil
}

// splitInternal splits an overflowing internal page p: the median
// separator is promoted out of both halves entirely (it becomes the
// parent's new separator, present in neither child), the lower separators
// stay in p, and the upper separators plus their children move to a fresh
// right sibling.
func (t *Tree) splitInternal(p *page.Page) (promoteKey uint32, rightID uint32, err error) {
	count := int(p.Count())
	mid := count / 2 // index of the separator to promote

	rightID, rightGuard, err := t.pool.NewPage()
	if err != nil {
		return 0, 0, fmt.Errorf("btree: allocate split sibling: %w", err)
	}
	defer rightGuard.Release(true)

	right := rightGuard.Page()
	right.SetKind(page.KindInternal)
	right.SetParent(p.Parent())

	promoteKey = p.InternalKeyAt(mid)
	right.SetLeftmostChild(p.InternalChildAt(mid))

	for i := mid + 1; i < count; i++ {
		right.SetInternalEntry(i-mid-1, p.InternalKeyAt(i), p.InternalChildAt(i))
	}
	right.SetCount(uint32(count - mid - 1))

	p.SetCount(uint32(mid))

	if err := t.reparentChildren(right); err != nil {
		return 0, 0, err
	}

	return promoteKey, rightID, nil
}

// reparentChildren rewrites the parent pointer of every child now owned by
// newParent (used after an internal split moves children to a new sibling;
// internal merges reparent each absorbed child with reparentOne).
func (t *Tree) reparentChildren(newParent *page.Page) error {
	update := func(childID uint32) error {
		g, err := t.pool.FetchPage(childID, buffer.LatchWrite)
		if err != nil {
			return fmt.Errorf("btree: reparent child %d: %w", childID, err)
		}
		g.Page().SetParent(newParent.ID())
		g.Release(true)
		return nil
	}

	if err := update(newParent.LeftmostChild()); err != nil {
		return err
	}
	for i := 0; i < int(newParent.Count()); i++ {
		if err := update(newParent.InternalChildAt(i)); err != nil {
			return err
		}
	}
	return nil
}

// insertSeparator inserts (key, rightChildID) into internal node p in
// sorted position, where rightChildID is the newly created right half of a
// child split.
func insertSeparator(p *page.Page, key uint32, rightChildID uint32) {
	count := int(p.Count())
	idx := 0
	for idx < count && p.InternalKeyAt(idx) < key {
		idx++
	}
	p.InsertInternalEntry(idx, key, rightChildID, count)
}

// insertLeafEntry inserts (key, payload) into leaf p in sorted position.
// Returns ErrDuplicateKey if key is already present.
func insertLeafEntry(p *page.Page, key uint32, payload []byte, payloadSize int) error {
	idx := searchLeaf(p, key, payloadSize)
	if idx >= 0 {
		return ErrDuplicateKey
	}
	insertAt := -(idx + 1)
	p.InsertLeafEntry(insertAt, key, payload, payloadSize, int(p.Count()))
	return nil
}
