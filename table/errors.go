package table

import "errors"

// ErrTxnAborted names a transaction aborted before an operation it issued
// could complete. No Table method returns it: a lock wait cut short by
// Abort surfaces unchanged as lock.ErrTxnAborted.
var ErrTxnAborted = errors.New("table: transaction aborted")
