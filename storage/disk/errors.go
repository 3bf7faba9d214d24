package disk

import "errors"

var (
	// ErrIO is returned when the underlying media fails a read or write.
	ErrIO = errors.New("disk: io error")

	// ErrOutOfBounds is returned when a page id has never been allocated.
	ErrOutOfBounds = errors.New("disk: page id out of bounds")

	// ErrCorrupt is returned when the root-header page fails its magic check.
	ErrCorrupt = errors.New("disk: corrupt database file")
)
