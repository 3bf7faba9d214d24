package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/relationalcore/engine/storage/page"
)

// Frame is a fixed buffer slot holding one page plus its metadata: pin
// count, dirty flag, and a read-write latch layered over the page bytes.
// A page must be pinned while latched (never hold a latch without first
// pinning, never unpin before releasing the latch).
type Frame struct {
	id   int
	mu   sync.RWMutex // per-page latch
	page *page.Page

	pinCount atomic.Int32
	dirty    atomic.Bool
}

func newFrame(id int) *Frame {
	return &Frame{id: id}
}

func (f *Frame) reset(p *page.Page) {
	f.page = p
	f.pinCount.Store(0)
	f.dirty.Store(false)
}

// PageID returns the id of the page currently resident in this frame.
func (f *Frame) PageID() uint32 {
	if f.page == nil {
		return 0
	}
	return f.page.ID()
}

func (f *Frame) pin()            { f.pinCount.Add(1) }
func (f *Frame) unpin() int32    { return f.pinCount.Add(-1) }
func (f *Frame) PinCount() int32 { return f.pinCount.Load() }

func (f *Frame) markDirty()     { f.dirty.Store(true) }
func (f *Frame) IsDirty() bool  { return f.dirty.Load() }
func (f *Frame) clearDirty()    { f.dirty.Store(false) }
