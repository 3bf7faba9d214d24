package btree

import "github.com/relationalcore/engine/storage/page"

// searchLeaf returns the index of key in a leaf page via binary search, or
// the negative insertion point (-(idx+1)) if absent.
func searchLeaf(p *page.Page, key uint32, payloadSize int) int {
	count := int(p.Count())
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		k := p.LeafKeyAt(mid, payloadSize)
		switch {
		case k == key:
			return mid
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -(lo + 1)
}

// childForKey returns the position of the child whose range contains key,
// and that child's page id, for an internal node: p0, k1, p1, ..., kN, pN.
// childIdx is -1 when the leading pointer p0 is the answer (key < k1);
// otherwise it is the i such that key falls in [k(i+1), k(i+2)), whose
// child is p(i+1).
func childForKey(p *page.Page, key uint32) (childIdx int, childPageID uint32) {
	count := int(p.Count())
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		if p.InternalKeyAt(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return -1, p.LeftmostChild()
	}
	return lo - 1, p.InternalChildAt(lo - 1)
}

// isSafeForInsert reports whether a node can absorb one more entry without
// overflowing, i.e. whether an ancestor latch can safely be released during
// an insert traversal.
func isSafeForInsert(p *page.Page, leafCap, internalCap int) bool {
	if p.IsLeaf() {
		return int(p.Count()) < leafCap
	}
	return int(p.Count()) < internalCap
}

// isSafeForDelete reports whether a node is above its minimum occupancy,
// i.e. whether removing one entry from a child cannot force this node to
// rebalance.
func isSafeForDelete(p *page.Page, leafCap, internalCap int) bool {
	if p.IsLeaf() {
		return int(p.Count()) > minOccupancy(leafCap)
	}
	return int(p.Count()) > minOccupancy(internalCap)
}

// minOccupancy is the ceil(cap/2) minimum entry count for a non-root node.
func minOccupancy(cap int) int {
	return (cap + 1) / 2
}
