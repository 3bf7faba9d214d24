// Package page defines the fixed-width on-disk layout shared by the disk
// manager, buffer pool and B+ tree: the root-header page and B+ tree node
// pages (leaf and internal), plus the Row and RecordID types tuples are
// addressed by.
package page

import (
	"encoding/binary"
	"errors"
)

// Kind distinguishes a B+ tree node's role.
type Kind byte

const (
	KindInternal Kind = 0
	KindLeaf     Kind = 1
)

// Node header layout, spec §6: kind(1) | count u32(4) | parent u32(4) | nextLeaf u32(4).
const (
	HeaderOffsetKind      = 0
	HeaderOffsetCount     = 1
	HeaderOffsetParent    = 5
	HeaderOffsetNextLeaf  = 9
	HeaderSize            = 13
	LeafEntryKeySize      = 4
	InternalEntrySize     = 8 // separator key (4) + child page id (4)
	InternalLeadingPtrLen = 4
)

// RootPageID is the sentinel parent id meaning "this node is the root".
const RootPageID = 0

// MetaPageID is the fixed page holding the root-header record.
const MetaPageID = 0

var (
	ErrInvalidPageSize = errors.New("page: invalid page size")
	ErrBadMagic        = errors.New("page: bad metadata magic")
)

// Page is one fixed-size slot of the data file.
type Page struct {
	id    uint32
	size  int
	data  []byte
	dirty bool
}

// New allocates a zeroed page of the given size, initialized as an empty
// leaf. Callers that want an internal node call SetKind after.
func New(id uint32, size int) *Page {
	p := &Page{id: id, size: size, data: make([]byte, size)}
	p.SetKind(KindLeaf)
	p.SetCount(0)
	p.SetParent(RootPageID)
	p.SetNextLeaf(0)
	p.dirty = true
	return p
}

// Load wraps raw bytes read from disk as a Page. data is copied.
func Load(id uint32, data []byte) (*Page, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPageSize
	}
	p := &Page{id: id, size: len(data), data: make([]byte, len(data))}
	copy(p.data, data)
	return p, nil
}

func (p *Page) ID() uint32     { return p.id }
func (p *Page) Size() int      { return p.size }
func (p *Page) Data() []byte   { return p.data }
func (p *Page) IsDirty() bool  { return p.dirty }
func (p *Page) SetDirty(d bool) { p.dirty = d }

func (p *Page) Kind() Kind      { return Kind(p.data[HeaderOffsetKind]) }
func (p *Page) IsLeaf() bool    { return p.Kind() == KindLeaf }
func (p *Page) SetKind(k Kind) { p.data[HeaderOffsetKind] = byte(k); p.dirty = true }

func (p *Page) Count() uint32 { return binary.BigEndian.Uint32(p.data[HeaderOffsetCount:]) }
func (p *Page) SetCount(n uint32) {
	binary.BigEndian.PutUint32(p.data[HeaderOffsetCount:], n)
	p.dirty = true
}

func (p *Page) Parent() uint32 { return binary.BigEndian.Uint32(p.data[HeaderOffsetParent:]) }
func (p *Page) SetParent(id uint32) {
	binary.BigEndian.PutUint32(p.data[HeaderOffsetParent:], id)
	p.dirty = true
}

func (p *Page) NextLeaf() uint32 { return binary.BigEndian.Uint32(p.data[HeaderOffsetNextLeaf:]) }
func (p *Page) SetNextLeaf(id uint32) {
	binary.BigEndian.PutUint32(p.data[HeaderOffsetNextLeaf:], id)
	p.dirty = true
}

// LeafCapacity returns the maximum number of leaf entries this page size
// can hold, derived from page size rather than hardcoded.
func LeafCapacity(pageSize, payloadSize int) int {
	entrySize := LeafEntryKeySize + payloadSize
	return (pageSize - HeaderSize) / entrySize
}

// InternalCapacity returns the maximum number of separator keys an internal
// node of this page size can hold (it stores capacity+1 child pointers).
func InternalCapacity(pageSize int) int {
	return (pageSize - HeaderSize - InternalLeadingPtrLen) / InternalEntrySize
}

func leafEntryOffset(payloadSize int, idx int) int {
	return HeaderSize + idx*(LeafEntryKeySize+payloadSize)
}

// LeafKeyAt returns the key stored at entry idx.
func (p *Page) LeafKeyAt(idx int, payloadSize int) uint32 {
	off := leafEntryOffset(payloadSize, idx)
	return binary.BigEndian.Uint32(p.data[off:])
}

// LeafPayloadAt returns a copy of the payload bytes stored at entry idx.
func (p *Page) LeafPayloadAt(idx int, payloadSize int) []byte {
	off := leafEntryOffset(payloadSize, idx) + LeafEntryKeySize
	out := make([]byte, payloadSize)
	copy(out, p.data[off:off+payloadSize])
	return out
}

// SetLeafEntry writes key/payload at entry idx.
func (p *Page) SetLeafEntry(idx int, key uint32, payload []byte, payloadSize int) {
	off := leafEntryOffset(payloadSize, idx)
	binary.BigEndian.PutUint32(p.data[off:], key)
	copy(p.data[off+LeafEntryKeySize:off+LeafEntryKeySize+payloadSize], payload)
	p.dirty = true
}

// InsertLeafEntry shifts entries at and after idx one slot to the right and
// writes the new entry into the gap. count is the entry count before insert.
func (p *Page) InsertLeafEntry(idx int, key uint32, payload []byte, payloadSize int, count int) {
	entrySize := LeafEntryKeySize + payloadSize
	srcStart := leafEntryOffset(payloadSize, idx)
	srcEnd := leafEntryOffset(payloadSize, count)
	dstStart := srcStart + entrySize
	copy(p.data[dstStart:dstStart+(srcEnd-srcStart)], p.data[srcStart:srcEnd])
	p.SetLeafEntry(idx, key, payload, payloadSize)
	p.SetCount(uint32(count + 1))
}

// RemoveLeafEntry removes the entry at idx, shifting later entries left.
// count is the entry count before removal.
func (p *Page) RemoveLeafEntry(idx int, payloadSize int, count int) {
	dstStart := leafEntryOffset(payloadSize, idx)
	srcStart := leafEntryOffset(payloadSize, idx+1)
	srcEnd := leafEntryOffset(payloadSize, count)
	copy(p.data[dstStart:dstStart+(srcEnd-srcStart)], p.data[srcStart:srcEnd])
	p.SetCount(uint32(count - 1))
	p.dirty = true
}

// --- internal node layout: leading child ptr, then N * (key, child) ---

func internalLeadingOffset() int { return HeaderSize }

func internalEntryOffset(idx int) int {
	return HeaderSize + InternalLeadingPtrLen + idx*InternalEntrySize
}

// LeftmostChild returns p0, the pointer preceding the first separator key.
func (p *Page) LeftmostChild() uint32 {
	return binary.BigEndian.Uint32(p.data[internalLeadingOffset():])
}

// SetLeftmostChild sets p0.
func (p *Page) SetLeftmostChild(child uint32) {
	binary.BigEndian.PutUint32(p.data[internalLeadingOffset():], child)
	p.dirty = true
}

// InternalKeyAt returns separator key k(idx+1) (0-indexed).
func (p *Page) InternalKeyAt(idx int) uint32 {
	off := internalEntryOffset(idx)
	return binary.BigEndian.Uint32(p.data[off:])
}

// InternalChildAt returns child pointer p(idx+1) (0-indexed), the pointer
// to the right of separator key idx.
func (p *Page) InternalChildAt(idx int) uint32 {
	off := internalEntryOffset(idx) + 4
	return binary.BigEndian.Uint32(p.data[off:])
}

// SetInternalEntry writes separator key and right child pointer at idx.
func (p *Page) SetInternalEntry(idx int, key uint32, child uint32) {
	off := internalEntryOffset(idx)
	binary.BigEndian.PutUint32(p.data[off:], key)
	binary.BigEndian.PutUint32(p.data[off+4:], child)
	p.dirty = true
}

// InsertInternalEntry shifts entries at and after idx right by one and
// writes (key, child) into the gap. count is the separator count before insert.
func (p *Page) InsertInternalEntry(idx int, key uint32, child uint32, count int) {
	srcStart := internalEntryOffset(idx)
	srcEnd := internalEntryOffset(count)
	dstStart := srcStart + InternalEntrySize
	copy(p.data[dstStart:dstStart+(srcEnd-srcStart)], p.data[srcStart:srcEnd])
	p.SetInternalEntry(idx, key, child)
	p.SetCount(uint32(count + 1))
}

// RemoveInternalEntry removes separator/child pair idx, shifting later
// entries left. count is the separator count before removal.
func (p *Page) RemoveInternalEntry(idx int, count int) {
	dstStart := internalEntryOffset(idx)
	srcStart := internalEntryOffset(idx + 1)
	srcEnd := internalEntryOffset(count)
	copy(p.data[dstStart:dstStart+(srcEnd-srcStart)], p.data[srcStart:srcEnd])
	p.SetCount(uint32(count - 1))
	p.dirty = true
}

// --- root-header page (page 0) ---

const (
	MetaMagic = 0x42504c53 // "BPLS"

	metaOffsetMagic    = 0
	metaOffsetRoot      = 4
	metaOffsetPageSize  = 8
	metaOffsetFreeList  = 12
	metaOffsetNextPage  = 16
)

// Meta is the root-header record stored in page 0.
type Meta struct {
	RootPageID   uint32
	PageSize     uint32
	FreeListHead uint32
	NextPageID   uint32
}

// EncodeMeta writes m into a fresh metadata page of the given size.
func EncodeMeta(m Meta, pageSize int) *Page {
	p := &Page{id: MetaPageID, size: pageSize, data: make([]byte, pageSize), dirty: true}
	binary.BigEndian.PutUint32(p.data[metaOffsetMagic:], MetaMagic)
	binary.BigEndian.PutUint32(p.data[metaOffsetRoot:], m.RootPageID)
	binary.BigEndian.PutUint32(p.data[metaOffsetPageSize:], m.PageSize)
	binary.BigEndian.PutUint32(p.data[metaOffsetFreeList:], m.FreeListHead)
	binary.BigEndian.PutUint32(p.data[metaOffsetNextPage:], m.NextPageID)
	return p
}

// DecodeMeta reads a Meta record out of a page previously written by EncodeMeta.
func DecodeMeta(p *Page) (Meta, error) {
	if binary.BigEndian.Uint32(p.data[metaOffsetMagic:]) != MetaMagic {
		return Meta{}, ErrBadMagic
	}
	return Meta{
		RootPageID:   binary.BigEndian.Uint32(p.data[metaOffsetRoot:]),
		PageSize:     binary.BigEndian.Uint32(p.data[metaOffsetPageSize:]),
		FreeListHead: binary.BigEndian.Uint32(p.data[metaOffsetFreeList:]),
		NextPageID:   binary.BigEndian.Uint32(p.data[metaOffsetNextPage:]),
	}, nil
}

// --- tuple model ---

// RecordID addresses a tuple within a leaf page.
type RecordID struct {
	PageID uint32
	Slot   uint32
}

// Row is a fixed-width tuple: a u32 key plus opaque payload bytes.
type Row struct {
	ID      uint32
	Payload []byte
}
