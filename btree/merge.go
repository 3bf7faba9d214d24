package btree

import (
	"fmt"

	"github.com/relationalcore/engine/storage/buffer"
	"github.com/relationalcore/engine/storage/page"
)

// childAtPos resolves a child position (-1 = leftmost pointer p0, i = the
// pointer to the right of separator k(i+1)) to a page id.
func childAtPos(parent *page.Page, pos int) uint32 {
	if pos == -1 {
		return parent.LeftmostChild()
	}
	return parent.InternalChildAt(pos)
}

// sepIndexLeftOf returns the separator index immediately to the left of
// the child at pos (the separator between pos-1 and pos).
func sepIndexLeftOf(pos int) int { return pos }

// sepIndexRightOf returns the separator index immediately to the right of
// the child at pos (the separator between pos and pos+1).
func sepIndexRightOf(pos int) int { return pos + 1 }

func hasLeftSibling(pos int) bool { return pos >= 0 }
func hasRightSibling(parent *page.Page, pos int) bool {
	return pos+1 <= int(parent.Count())-1
}

// rebalanceOneLevel repairs one underflowing node by stealing from a
// sibling if possible, otherwise merging with one. It reports whether a
// merge (as opposed to a steal) happened — a merge requires the caller to
// continue checking the parent for underflow; a steal does not.
func (t *Tree) rebalanceOneLevel(parent *page.Page, nodeGuard *buffer.FrameGuard, pos int) (merged bool, err error) {
	node := nodeGuard.Page()
	cap := t.leafCap
	if !node.IsLeaf() {
		cap = t.internalCap
	}
	min := minOccupancy(cap)

	if hasLeftSibling(pos) {
		leftID := childAtPos(parent, pos-1)
		leftGuard, err := t.pool.FetchPage(leftID, buffer.LatchWrite)
		if err != nil {
			return false, fmt.Errorf("btree: fetch left sibling: %w", err)
		}
		if int(leftGuard.Page().Count()) > min {
			err := t.stealFromLeft(parent, node, leftGuard.Page(), pos)
			leftGuard.Release(true)
			nodeGuard.Release(true)
			return false, err
		}
		if hasRightSibling(parent, pos) {
			rightID := childAtPos(parent, pos+1)
			rightGuard, err := t.pool.FetchPage(rightID, buffer.LatchWrite)
			if err != nil {
				leftGuard.Release(false)
				return false, fmt.Errorf("btree: fetch right sibling: %w", err)
			}
			if int(rightGuard.Page().Count()) > min {
				err := t.stealFromRight(parent, node, rightGuard.Page(), pos)
				rightGuard.Release(true)
				leftGuard.Release(false)
				nodeGuard.Release(true)
				return false, err
			}
			rightGuard.Release(false)
		}
		// merge node into left sibling; left survives.
		if err := t.mergeSiblings(parent, leftGuard, nodeGuard, sepIndexLeftOf(pos)); err != nil {
			return false, err
		}
		return true, nil
	}

	// pos == -1: no left sibling, must have a right sibling in any tree
	// with more than one node at this level.
	rightID := childAtPos(parent, pos+1)
	rightGuard, err := t.pool.FetchPage(rightID, buffer.LatchWrite)
	if err != nil {
		return false, fmt.Errorf("btree: fetch right sibling: %w", err)
	}
	if int(rightGuard.Page().Count()) > min {
		err := t.stealFromRight(parent, node, rightGuard.Page(), pos)
		rightGuard.Release(true)
		nodeGuard.Release(true)
		return false, err
	}
	// merge right sibling into node; node survives.
	if err := t.mergeSiblings(parent, nodeGuard, rightGuard, sepIndexRightOf(pos)); err != nil {
		return false, err
	}
	return true, nil
}

// stealFromLeft moves the left sibling's last entry into node (the entry
// adjacent to the underflowing node, per the steal rule) and rewrites the
// parent separator between them.
func (t *Tree) stealFromLeft(parent, node, left *page.Page, pos int) error {
	sepIdx := sepIndexLeftOf(pos)

	if node.IsLeaf() {
		lc := int(left.Count())
		key := left.LeafKeyAt(lc-1, t.payloadSize)
		payload := left.LeafPayloadAt(lc-1, t.payloadSize)
		left.RemoveLeafEntry(lc-1, t.payloadSize, lc)
		node.InsertLeafEntry(0, key, payload, t.payloadSize, int(node.Count()))
		parent.SetInternalEntry(sepIdx, node.LeafKeyAt(0, t.payloadSize), parent.InternalChildAt(sepIdx))
		return nil
	}

	lc := int(left.Count())
	movedChild := left.InternalChildAt(lc - 1)
	movedKey := left.InternalKeyAt(lc - 1)
	left.RemoveInternalEntry(lc-1, lc)

	oldParentSep := parent.InternalKeyAt(sepIdx)
	node.InsertInternalEntry(0, oldParentSep, node.LeftmostChild(), int(node.Count()))
	node.SetLeftmostChild(movedChild)

	parent.SetInternalEntry(sepIdx, movedKey, parent.InternalChildAt(sepIdx))
	return t.reparentOne(movedChild, node.ID())
}

// stealFromRight moves the right sibling's first entry into node and
// rewrites the parent separator between them.
func (t *Tree) stealFromRight(parent, node, right *page.Page, pos int) error {
	sepIdx := sepIndexRightOf(pos)

	if node.IsLeaf() {
		key := right.LeafKeyAt(0, t.payloadSize)
		payload := right.LeafPayloadAt(0, t.payloadSize)
		right.RemoveLeafEntry(0, t.payloadSize, int(right.Count()))
		node.InsertLeafEntry(int(node.Count()), key, payload, t.payloadSize, int(node.Count()))
		parent.SetInternalEntry(sepIdx, right.LeafKeyAt(0, t.payloadSize), parent.InternalChildAt(sepIdx))
		return nil
	}

	movedChild := right.LeftmostChild()
	movedKey := right.InternalKeyAt(0)
	right.SetLeftmostChild(right.InternalChildAt(0))
	right.RemoveInternalEntry(0, int(right.Count()))

	oldParentSep := parent.InternalKeyAt(sepIdx)
	node.InsertInternalEntry(int(node.Count()), oldParentSep, movedChild, int(node.Count()))

	parent.SetInternalEntry(sepIdx, movedKey, parent.InternalChildAt(sepIdx))
	return t.reparentOne(movedChild, node.ID())
}

// mergeSiblings absorbs rightGuard's page into leftGuard's page (left's
// page id survives), removes the separator at sepIdx (the one between them)
// from parent, and deletes the vacated page.
func (t *Tree) mergeSiblings(parent *page.Page, leftGuard, rightGuard *buffer.FrameGuard, sepIdx int) error {
	left, right := leftGuard.Page(), rightGuard.Page()

	if left.IsLeaf() {
		lc, rc := int(left.Count()), int(right.Count())
		for i := 0; i < rc; i++ {
			key := right.LeafKeyAt(i, t.payloadSize)
			payload := right.LeafPayloadAt(i, t.payloadSize)
			left.SetLeafEntry(lc+i, key, payload, t.payloadSize)
		}
		left.SetCount(uint32(lc + rc))
		left.SetNextLeaf(right.NextLeaf())
	} else {
		lc, rc := int(left.Count()), int(right.Count())
		pulledDownKey := parent.InternalKeyAt(sepIdx)
		movedLeftmost := right.LeftmostChild()
		left.InsertInternalEntry(lc, pulledDownKey, movedLeftmost, lc)
		if err := t.reparentOne(movedLeftmost, left.ID()); err != nil {
			return err
		}
		for i := 0; i < rc; i++ {
			childID := right.InternalChildAt(i)
			left.SetInternalEntry(lc+1+i, right.InternalKeyAt(i), childID)
			if err := t.reparentOne(childID, left.ID()); err != nil {
				return err
			}
		}
		left.SetCount(uint32(lc + 1 + rc))
	}

	parent.RemoveInternalEntry(sepIdx, int(parent.Count()))

	rightID := right.ID()
	leftGuard.Release(true)
	rightGuard.Release(false)
	if err := t.pool.DeletePage(rightID); err != nil {
		return fmt.Errorf("btree: delete merged page %d: %w", rightID, err)
	}
	return nil
}

func (t *Tree) reparentOne(childID uint32, parentID uint32) error {
	g, err := t.pool.FetchPage(childID, buffer.LatchWrite)
	if err != nil {
		return fmt.Errorf("btree: reparent child %d: %w", childID, err)
	}
	g.Page().SetParent(parentID)
	g.Release(true)
	return nil
}
