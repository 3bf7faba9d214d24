package btree

import "errors"

var (
	// ErrDuplicateKey is returned by Insert when the key already exists.
	ErrDuplicateKey = errors.New("btree: duplicate key")

	// ErrNotFound is returned by Search/Delete when the key is absent.
	ErrNotFound = errors.New("btree: key not found")

	// ErrClosed is returned once Tree.Close has been called.
	ErrClosed = errors.New("btree: closed")
)
