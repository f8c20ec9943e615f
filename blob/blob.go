// Package blob implements the blob manager of spec.md §4.4: records
// too large to inline in a leaf slot are stored as a single page (fits
// within one page's payload) or a contiguous multi-page run, allocated
// and freed through the freelist and pager.
package blob

import (
	"encoding/binary"
	"fmt"

	"github.com/embeddkv/embeddkv/freelist"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/pager"
)

// blobHeaderSize is the size-prefix stored ahead of the payload inside
// a blob's first page, so Read knows the true record length without
// consulting the caller.
const blobHeaderSize = 8

// Manager allocates and frees blob-backed records.
type Manager struct {
	mgr  *pager.Manager
	free *freelist.Allocator
}

// New wires a blob Manager to the page cache and the freelist it draws
// space from.
func New(mgr *pager.Manager, free *freelist.Allocator) *Manager {
	return &Manager{mgr: mgr, free: free}
}

func (m *Manager) payloadPerPage() int {
	return m.mgr.PageSize() - page.HeaderSize
}

// Store writes data as a blob and returns its absolute page offset,
// the descriptor Ref spec.md §9 expects. Tiny/empty records never
// reach here — the btree layer short-circuits those into an inline
// descriptor (spec.md §4.4).
func (m *Manager) Store(data []byte) (uint64, error) {
	perPage := m.payloadPerPage()
	usable := perPage - blobHeaderSize

	if len(data) <= usable {
		id, err := m.free.Alloc(1)
		if err != nil {
			return 0, fmt.Errorf("alloc single-page blob: %w", err)
		}
		p, err := m.mgr.Fetch(id, 0)
		if err != nil {
			return 0, err
		}
		p.Retype(page.TypeBlob)
		writeHeader(p.Payload(), uint64(len(data)))
		copy(p.Payload()[blobHeaderSize:], data)
		m.mgr.MarkDirty(p.ID())
		return uint64(id), nil
	}

	n := pagesNeeded(len(data), perPage, usable)
	head, err := m.mgr.AllocBlobRun(n)
	if err != nil {
		return 0, fmt.Errorf("alloc multi-page blob: %w", err)
	}
	writeHeader(head.Payload(), uint64(len(data)))

	remaining := data
	firstChunk := usable
	if firstChunk > len(remaining) {
		firstChunk = len(remaining)
	}
	copy(head.Payload()[blobHeaderSize:], remaining[:firstChunk])
	remaining = remaining[firstChunk:]
	m.mgr.MarkDirty(head.ID())

	id := head.ID() + page.ID(m.mgr.PageSize())
	for len(remaining) > 0 {
		p, err := m.mgr.Fetch(id, pager.FetchOnlyFromCache)
		if err != nil {
			return 0, fmt.Errorf("fetch blob continuation page: %w", err)
		}
		chunk := perPage
		if chunk > len(remaining) {
			chunk = len(remaining)
		}
		copy(p.Data(), remaining[:chunk])
		m.mgr.MarkDirty(p.ID())
		remaining = remaining[chunk:]
		id += page.ID(m.mgr.PageSize())
	}

	return uint64(head.ID()), nil
}

// Read returns the full record previously stored at offset.
func (m *Manager) Read(offset uint64) ([]byte, error) {
	perPage := m.payloadPerPage()
	usable := perPage - blobHeaderSize

	head, err := m.mgr.Fetch(page.ID(offset), 0)
	if err != nil {
		return nil, fmt.Errorf("fetch blob head: %w", err)
	}
	size := readHeader(head.Payload())

	out := make([]byte, 0, size)
	firstChunk := usable
	if int(size) < firstChunk {
		firstChunk = int(size)
	}
	out = append(out, head.Payload()[blobHeaderSize:blobHeaderSize+firstChunk]...)

	remaining := int(size) - firstChunk
	id := head.ID() + page.ID(m.mgr.PageSize())
	for remaining > 0 {
		p, err := m.mgr.Fetch(id, 0)
		if err != nil {
			return nil, fmt.Errorf("fetch blob continuation page: %w", err)
		}
		chunk := perPage
		if chunk > remaining {
			chunk = remaining
		}
		out = append(out, p.Data()[:chunk]...)
		remaining -= chunk
		id += page.ID(m.mgr.PageSize())
	}
	return out, nil
}

// Overwrite replaces the record at offset in place when the new data
// needs exactly as many pages as the run already allocated there, or
// frees the old run and allocates a fresh one otherwise. Data that
// would fit in fewer pages than the existing run is not written in
// place; it is also freed and reallocated.
func (m *Manager) Overwrite(offset uint64, data []byte) (uint64, error) {
	perPage := m.payloadPerPage()
	usable := perPage - blobHeaderSize

	head, err := m.mgr.Fetch(page.ID(offset), 0)
	if err != nil {
		return 0, fmt.Errorf("fetch blob head: %w", err)
	}
	oldSize := int(readHeader(head.Payload()))
	oldPages := pagesNeeded(oldSize, perPage, usable)
	newPages := pagesNeeded(len(data), perPage, usable)

	if newPages == oldPages {
		writeHeader(head.Payload(), uint64(len(data)))
		remaining := data
		firstChunk := usable
		if firstChunk > len(remaining) {
			firstChunk = len(remaining)
		}
		copy(head.Payload()[blobHeaderSize:], remaining[:firstChunk])
		remaining = remaining[firstChunk:]
		m.mgr.MarkDirty(head.ID())

		id := head.ID() + page.ID(m.mgr.PageSize())
		for len(remaining) > 0 {
			p, err := m.mgr.Fetch(id, pager.FetchOnlyFromCache)
			if err != nil {
				return 0, err
			}
			chunk := perPage
			if chunk > len(remaining) {
				chunk = len(remaining)
			}
			copy(p.Data(), remaining[:chunk])
			m.mgr.MarkDirty(p.ID())
			remaining = remaining[chunk:]
			id += page.ID(m.mgr.PageSize())
		}
		return offset, nil
	}

	if err := m.Free(offset); err != nil {
		return 0, err
	}
	return m.Store(data)
}

// Free releases a blob's backing page run.
func (m *Manager) Free(offset uint64) error {
	perPage := m.payloadPerPage()
	usable := perPage - blobHeaderSize

	head, err := m.mgr.Fetch(page.ID(offset), 0)
	if err != nil {
		return fmt.Errorf("fetch blob head: %w", err)
	}
	size := int(readHeader(head.Payload()))
	n := pagesNeeded(size, perPage, usable)
	return m.free.Free(page.ID(offset), n)
}

// pagesNeeded computes how many pages a record of size bytes needs
// given perPage total bytes per page and usable bytes available on the
// first page (after the size header).
func pagesNeeded(size, perPage, usable int) int {
	if size <= usable {
		return 1
	}
	remaining := size - usable
	n := 1 + (remaining+perPage-1)/perPage
	return n
}

func writeHeader(payload []byte, size uint64) {
	binary.LittleEndian.PutUint64(payload[:blobHeaderSize], size)
}

func readHeader(payload []byte) uint64 {
	return binary.LittleEndian.Uint64(payload[:blobHeaderSize])
}

