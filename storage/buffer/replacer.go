package buffer

import (
	"container/list"
	"sync"
)

// LRUReplacer tracks which resident frames are currently unpinned and
// chooses an eviction victim. Frames are ordered by recency of
// record_access; only evictable frames are eligible as a victim. Ties are
// broken by access order: the first frame accessed (and never re-accessed
// since) is the first evicted.
type LRUReplacer struct {
	mu        sync.Mutex
	order     *list.List // front = most recently accessed
	elems     map[int]*list.Element
	evictable map[int]bool
}

// NewLRUReplacer creates an empty replacer with capacity for up to size frames.
func NewLRUReplacer(size int) *LRUReplacer {
	return &LRUReplacer{
		order:     list.New(),
		elems:     make(map[int]*list.Element, size),
		evictable: make(map[int]bool, size),
	}
}

// RecordAccess moves frameID to the most-recently-used end, inserting it if
// this is its first access.
func (r *LRUReplacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.elems[frameID]; ok {
		r.order.MoveToFront(elem)
		return
	}
	r.elems[frameID] = r.order.PushFront(frameID)
}

// SetEvictable adds or removes frameID from the eviction candidate set.
func (r *LRUReplacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if evictable {
		r.evictable[frameID] = true
	} else {
		delete(r.evictable, frameID)
	}
}

// Victim removes and returns the least-recently-used evictable frame. The
// second return value is false if no frame is currently evictable.
func (r *LRUReplacer) Victim() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for elem := r.order.Back(); elem != nil; elem = elem.Prev() {
		frameID := elem.Value.(int)
		if r.evictable[frameID] {
			r.order.Remove(elem)
			delete(r.elems, frameID)
			delete(r.evictable, frameID)
			return frameID, true
		}
	}
	return 0, false
}

// Remove drops frameID from the replacer entirely, regardless of its
// evictable status (used when a frame's page is explicitly deleted).
func (r *LRUReplacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.elems[frameID]; ok {
		r.order.Remove(elem)
		delete(r.elems, frameID)
	}
	delete(r.evictable, frameID)
}

// Size returns the number of frames currently tracked (evictable or not).
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
