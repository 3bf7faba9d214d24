// Package table is the top-level entry point a SQL layer calls: it wires
// the Disk Manager, Buffer Pool Manager, B+ tree index, Transaction
// Manager, and Lock Manager together behind Insert/Delete/Update/Scan,
// mirroring the teacher's btree.New(config) construction sequence.
package table

import (
	"errors"

	"github.com/relationalcore/engine/btree"
	"github.com/relationalcore/engine/config"
	"github.com/relationalcore/engine/lock"
	"github.com/relationalcore/engine/storage/buffer"
	"github.com/relationalcore/engine/storage/disk"
	"github.com/relationalcore/engine/storage/page"
	"github.com/relationalcore/engine/txn"
)

// Table is a single-index table: rows keyed by a uint32 id, backed by one
// data file.
type Table struct {
	cfg   config.Config
	disk  *disk.Manager
	pool  *buffer.Pool
	tree  *btree.Tree
	txns  *txn.Manager
	locks *lock.Manager
}

// Open wires disk -> buffer pool -> B+ tree -> txn manager -> lock
// manager, in that order, creating cfg.DataFile if it does not exist.
func Open(cfg config.Config) (*Table, error) {
	cfg = cfg.WithDefaults()

	d, err := disk.Open(cfg.DataFile, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	pool := buffer.NewPool(d, cfg.BufferPoolFrames)
	tree := btree.Open(d, pool, cfg.PayloadSize)
	locks := lock.NewManager()
	txns := txn.NewManager(locks, 1)

	return &Table{
		cfg:   cfg,
		disk:  d,
		pool:  pool,
		tree:  tree,
		txns:  txns,
		locks: locks,
	}, nil
}

// Close flushes and closes the underlying buffer pool and disk manager.
func (tbl *Table) Close() error {
	tbl.tree.Close()
	return tbl.pool.Close()
}

// Begin starts a new Growing transaction.
func (tbl *Table) Begin() *txn.Transaction { return tbl.txns.Begin() }

// Commit commits t and releases its locks.
func (tbl *Table) Commit(t *txn.Transaction) error { return tbl.txns.Commit(t) }

// Abort aborts t and releases its locks. Per spec, data t wrote is not
// rolled back.
func (tbl *Table) Abort(t *txn.Transaction) error { return tbl.txns.Abort(t) }

// recordIDForKey maps a row's primary key to the lock manager's resource
// identity. The B+ tree stores tuples inline in leaf entries rather than
// in separate slotted row pages, so there is no physical (page_id,
// slot_index) address stable across concurrent splits/merges; a key's
// leaf location can move structurally between the moment a lock is taken
// and the moment it is used. Locking on the logical key itself keeps
// lock identity independent of physical placement.
func recordIDForKey(key uint32) page.RecordID {
	return page.RecordID{PageID: 0, Slot: key}
}

// Insert acquires an Exclusive lock on row.ID and inserts it.
func (tbl *Table) Insert(t *txn.Transaction, row page.Row) error {
	rid := recordIDForKey(row.ID)
	if err := tbl.locks.LockExclusive(t, rid); err != nil {
		return err
	}
	return tbl.tree.Insert(row.ID, row.Payload)
}

// Delete acquires an Exclusive lock on key and removes it.
func (tbl *Table) Delete(t *txn.Transaction, key uint32) error {
	rid := recordIDForKey(key)
	if err := tbl.locks.LockExclusive(t, rid); err != nil {
		return err
	}
	return tbl.tree.Delete(key)
}

// Update rewrites the row stored at key. If t already holds a Shared
// lock (from a prior Scan) it is upgraded to Exclusive in place;
// otherwise an Exclusive lock is acquired directly.
func (tbl *Table) Update(t *txn.Transaction, key uint32, row page.Row) error {
	rid := recordIDForKey(key)

	err := tbl.locks.LockUpgrade(t, rid)
	if errors.Is(err, lock.ErrNotHeld) {
		err = tbl.locks.LockExclusive(t, rid)
	}
	if err != nil {
		return err
	}
	return tbl.tree.Update(key, row.Payload)
}

// Scan acquires a Shared lock on key and returns the stored row.
func (tbl *Table) Scan(t *txn.Transaction, key uint32) (page.Row, error) {
	rid := recordIDForKey(key)
	if err := tbl.locks.LockShared(t, rid); err != nil {
		return page.Row{}, err
	}
	payload, err := tbl.tree.Search(key)
	if err != nil {
		return page.Row{}, err
	}
	return page.Row{ID: key, Payload: payload}, nil
}

// RangeScan returns an iterator over every row with key >= from, walking
// the leaf chain. Per-row locking is not applied here: predicate
// evaluation and the locking granularity for sequential scans are left to
// the caller, same as spec's sequential-scan non-goal.
func (tbl *Table) RangeScan(from uint32) (*btree.Iterator, error) {
	return tbl.tree.Scan(from)
}

// Stats reports index operation counters.
func (tbl *Table) Stats() btree.Stats { return tbl.tree.Stats() }
