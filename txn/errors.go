package txn

import "errors"

var (
	// ErrNoActiveTransaction names a missing transaction. No function in
	// this package returns it; Lookup reports absence with a false bool.
	ErrNoActiveTransaction = errors.New("txn: no such transaction")

	// ErrNotGrowing is returned by Commit/Abort on a transaction that has
	// already terminated.
	ErrNotGrowing = errors.New("txn: transaction already terminated")

	// ErrAborted names a transaction aborted out from under its caller. No
	// function in this package returns it; a lock wait cut short by an
	// abort returns lock.ErrTxnAborted.
	ErrAborted = errors.New("txn: transaction aborted")
)
