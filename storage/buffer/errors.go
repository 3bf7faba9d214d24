package buffer

import "errors"

var (
	// ErrNoFreeFrame is returned by FetchPage/NewPage when every frame is pinned.
	ErrNoFreeFrame = errors.New("buffer: no free frame")

	// ErrPagePinned is returned by DeletePage when the page still has pins.
	ErrPagePinned = errors.New("buffer: page still pinned")

	// ErrClosed is returned once the pool has been closed.
	ErrClosed = errors.New("buffer: pool closed")
)
