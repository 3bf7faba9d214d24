// Package disk implements the storage engine's Disk Manager: fixed-size
// page reads/writes against a single heap file, with page identifiers
// allocated by appending. No caching happens at this layer; that is the
// buffer pool's job.
package disk

import (
	"fmt"
	"os"
	"sync"

	"github.com/relationalcore/engine/storage/page"
)

// Manager owns the single data file backing a table.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	meta     page.Meta
}

// Open opens filename, creating it with a fresh root-header page if it does
// not already exist.
func Open(filename string, pageSize int) (*Manager, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0o644)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("disk: open %s: %w", filename, err)
		}
		return create(filename, pageSize)
	}
	return load(file, pageSize)
}

func create(filename string, pageSize int) (*Manager, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("disk: create %s: %w", filename, err)
	}

	m := &Manager{
		file:     file,
		pageSize: pageSize,
		meta: page.Meta{
			RootPageID:   1,
			PageSize:     uint32(pageSize),
			FreeListHead: 0,
			NextPageID:   2, // page 0 metadata, page 1 root leaf
		},
	}

	if err := m.writeMetaLocked(); err != nil {
		file.Close()
		os.Remove(filename)
		return nil, err
	}

	root := page.New(1, pageSize)
	if err := m.writePageLocked(root); err != nil {
		file.Close()
		os.Remove(filename)
		return nil, err
	}

	return m, nil
}

func load(file *os.File, pageSize int) (*Manager, error) {
	m := &Manager{file: file, pageSize: pageSize}

	buf := make([]byte, pageSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("disk: read metadata page: %w", err)
	}
	metaPage, err := page.Load(page.MetaPageID, buf)
	if err != nil {
		file.Close()
		return nil, err
	}
	meta, err := page.DecodeMeta(metaPage)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w", ErrCorrupt)
	}
	m.meta = meta
	m.pageSize = int(meta.PageSize)
	return m, nil
}

// PageSize returns the fixed page size this manager was opened with.
func (m *Manager) PageSize() int { return m.pageSize }

// RootPageID returns the current root page id of the index.
func (m *Manager) RootPageID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.RootPageID
}

// SetRootPageID updates and persists the root page id.
func (m *Manager) SetRootPageID(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.RootPageID = id
	return m.writeMetaLocked()
}

// ReadPage reads pageID's bytes off disk.
func (m *Manager) ReadPage(pageID uint32) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pageID >= m.meta.NextPageID {
		return nil, fmt.Errorf("disk: page %d out of bounds: %w", pageID, ErrOutOfBounds)
	}

	buf := make([]byte, m.pageSize)
	off := int64(pageID) * int64(m.pageSize)
	n, err := m.file.ReadAt(buf, off)
	if err != nil {
		return nil, fmt.Errorf("disk: read page %d: %w", pageID, ErrIO)
	}
	if n != m.pageSize {
		return nil, fmt.Errorf("disk: short read on page %d: %w", pageID, ErrIO)
	}
	return page.Load(pageID, buf)
}

// WritePage synchronously writes p's current bytes to its slot.
func (m *Manager) WritePage(p *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writePageLocked(p)
}

func (m *Manager) writePageLocked(p *page.Page) error {
	off := int64(p.ID()) * int64(m.pageSize)
	if _, err := m.file.WriteAt(p.Data(), off); err != nil {
		return fmt.Errorf("disk: write page %d: %w", p.ID(), ErrIO)
	}
	return nil
}

// AllocatePage appends a fresh page id. The caller is responsible for
// writing the page's contents.
func (m *Manager) AllocatePage() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.meta.NextPageID
	m.meta.NextPageID++
	if err := m.writeMetaLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

func (m *Manager) writeMetaLocked() error {
	metaPage := page.EncodeMeta(m.meta, m.pageSize)
	if _, err := m.file.WriteAt(metaPage.Data(), 0); err != nil {
		return fmt.Errorf("disk: write metadata: %w", ErrIO)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: sync: %w", ErrIO)
	}
	return nil
}

// Close syncs and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: sync on close: %w", ErrIO)
	}
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("disk: close: %w", ErrIO)
	}
	return nil
}
