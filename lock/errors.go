package lock

import "errors"

var (
	// ErrLockOnShrinking is returned when a transaction past Growing tries
	// to acquire a new lock, violating 2PL.
	ErrLockOnShrinking = errors.New("lock: transaction is past its growing phase")

	// ErrUpgradeConflict is returned when an S->X upgrade cannot proceed
	// safely: another transaction holds a conflicting grant, or another
	// upgrade is already pending on the same record.
	ErrUpgradeConflict = errors.New("lock: conflicting upgrade")

	// ErrTxnAborted is returned to a waiter whose transaction was aborted
	// while blocked on a queue.
	ErrTxnAborted = errors.New("lock: transaction aborted while waiting")

	// ErrNoSuchLock is returned by Unlock when the transaction holds no
	// grant on the given record.
	ErrNoSuchLock = errors.New("lock: no such grant held")

	// ErrNotHeld is returned by LockUpgrade when the caller does not
	// currently hold a Shared grant on the record to upgrade from.
	ErrNotHeld = errors.New("lock: no shared grant held to upgrade")
)
