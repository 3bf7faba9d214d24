// Package buffer implements the LRU Replacer and the Buffer Pool Manager:
// a fixed pool of frames mapping page ids to in-memory pages, enforcing
// pin counts, dirty flags, and fetch/flush policy on top of the disk
// manager and the replacer.
package buffer

import (
	"fmt"
	"sync"

	"github.com/relationalcore/engine/storage/disk"
	"github.com/relationalcore/engine/storage/page"
)

// LatchMode selects whether FetchPage acquires the frame's latch for
// shared (concurrent) or exclusive (single-writer) access.
type LatchMode int

const (
	LatchRead LatchMode = iota
	LatchWrite
)

// Pool is a fixed pool of F frames backing one table's B+ tree.
type Pool struct {
	mu        sync.Mutex
	disk      *disk.Manager
	frames    []*Frame
	pageTable map[uint32]int // page_id -> frame index
	freeList  []int
	replacer  *LRUReplacer
	closed    bool
}

// NewPool creates a pool of numFrames frames backed by d.
func NewPool(d *disk.Manager, numFrames int) *Pool {
	frames := make([]*Frame, numFrames)
	free := make([]int, numFrames)
	for i := range frames {
		frames[i] = newFrame(i)
		free[i] = numFrames - 1 - i
	}
	return &Pool{
		disk:      d,
		frames:    frames,
		pageTable: make(map[uint32]int),
		freeList:  free,
		replacer:  NewLRUReplacer(numFrames),
	}
}

// FrameGuard is the scoped acquisition returned by FetchPage/NewPage:
// holding it pins the page and provides latched access to its bytes;
// Release releases the latch and then unpins (with the caller-supplied
// dirty flag), always in that order.
type FrameGuard struct {
	pool    *Pool
	frame   *Frame
	mode    LatchMode
	pageID  uint32
	released bool
}

// Page returns the underlying page bytes/header. Valid only while the
// guard is held.
func (g *FrameGuard) Page() *page.Page { return g.frame.page }

// PageID returns the id of the pinned page.
func (g *FrameGuard) PageID() uint32 { return g.pageID }

// Release unlatches then unpins the page, marking it dirty if requested.
// Safe to call at most once; a second call is a no-op.
func (g *FrameGuard) Release(dirty bool) {
	if g.released {
		return
	}
	g.released = true

	if g.mode == LatchWrite {
		g.frame.mu.Unlock()
	} else {
		g.frame.mu.RUnlock()
	}
	g.pool.UnpinPage(g.pageID, dirty)
}

// FetchPage returns a FrameGuard for pageID, reading it from disk and
// evicting a victim frame if it is not already resident. Fails with
// ErrNoFreeFrame if every frame is pinned.
func (p *Pool) FetchPage(pageID uint32, mode LatchMode) (*FrameGuard, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	if idx, ok := p.pageTable[pageID]; ok {
		frame := p.frames[idx]
		frame.pin()
		p.replacer.RecordAccess(idx)
		p.replacer.SetEvictable(idx, false)
		p.mu.Unlock()
		return p.latchAndGuard(frame, pageID, mode), nil
	}

	idx, err := p.allocFrameLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}

	diskPage, err := p.disk.ReadPage(pageID)
	if err != nil {
		p.freeList = append(p.freeList, idx)
		p.mu.Unlock()
		return nil, fmt.Errorf("buffer: fetch page %d: %w", pageID, err)
	}

	frame := p.frames[idx]
	frame.reset(diskPage)
	frame.pin()
	p.pageTable[pageID] = idx
	p.replacer.RecordAccess(idx)
	p.mu.Unlock()

	return p.latchAndGuard(frame, pageID, mode), nil
}

// NewPage allocates a fresh page via the disk manager and returns it
// pinned and write-latched.
func (p *Pool) NewPage() (uint32, *FrameGuard, error) {
	pageID, err := p.disk.AllocatePage()
	if err != nil {
		return 0, nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, nil, ErrClosed
	}

	idx, err := p.allocFrameLocked()
	if err != nil {
		p.mu.Unlock()
		return 0, nil, err
	}

	newPage := page.New(pageID, p.pageSizeLocked())
	frame := p.frames[idx]
	frame.reset(newPage)
	frame.markDirty()
	frame.pin()
	p.pageTable[pageID] = idx
	p.replacer.RecordAccess(idx)
	p.mu.Unlock()

	return pageID, p.latchAndGuard(frame, pageID, LatchWrite), nil
}

func (p *Pool) pageSizeLocked() int { return p.disk.PageSize() }

// allocFrameLocked picks a free or evictable frame index. Caller holds p.mu.
func (p *Pool) allocFrameLocked() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, nil
	}

	idx, ok := p.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrame
	}

	victim := p.frames[idx]
	if victim.IsDirty() {
		if err := p.disk.WritePage(victim.page); err != nil {
			return 0, fmt.Errorf("buffer: flush victim page %d: %w", victim.PageID(), err)
		}
		victim.clearDirty()
	}
	delete(p.pageTable, victim.PageID())
	return idx, nil
}

func (p *Pool) latchAndGuard(frame *Frame, pageID uint32, mode LatchMode) *FrameGuard {
	if mode == LatchWrite {
		frame.mu.Lock()
	} else {
		frame.mu.RLock()
	}
	return &FrameGuard{pool: p, frame: frame, mode: mode, pageID: pageID}
}

// UnpinPage decrements pageID's pin count, marking it dirty if requested.
// Once the pin count reaches zero the frame becomes evictable.
func (p *Pool) UnpinPage(pageID uint32, isDirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return
	}
	frame := p.frames[idx]
	if isDirty {
		frame.markDirty()
	}
	if n := frame.unpin(); n <= 0 {
		p.replacer.SetEvictable(idx, true)
	}
}

// FlushPage writes pageID's current contents to disk and clears its dirty
// flag. Does not evict.
func (p *Pool) FlushPage(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	frame := p.frames[idx]
	if err := p.disk.WritePage(frame.page); err != nil {
		return fmt.Errorf("buffer: flush page %d: %w", pageID, err)
	}
	frame.clearDirty()
	return nil
}

// FlushAll flushes every dirty resident page.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pageID, idx := range p.pageTable {
		frame := p.frames[idx]
		if !frame.IsDirty() {
			continue
		}
		if err := p.disk.WritePage(frame.page); err != nil {
			return fmt.Errorf("buffer: flush page %d: %w", pageID, err)
		}
		frame.clearDirty()
	}
	return nil
}

// DeletePage drops pageID from the pool without writing it back and frees
// its frame. Requires pin_count == 0. The page id is not recorded as free
// and is never handed out again by the disk manager.
func (p *Pool) DeletePage(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	frame := p.frames[idx]
	if frame.PinCount() > 0 {
		return ErrPagePinned
	}

	delete(p.pageTable, pageID)
	p.replacer.Remove(idx)
	frame.reset(nil)
	p.freeList = append(p.freeList, idx)
	return nil
}

// Close flushes every dirty page and closes the backing disk manager.
func (p *Pool) Close() error {
	if err := p.FlushAll(); err != nil {
		return err
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.disk.Close()
}
