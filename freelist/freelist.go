// Package freelist implements the bitmap space allocator of spec.md
// §4.3: one bit per page, grouped into fixed-capacity entries chained
// across freelist-typed pages, with a Boyer-Moore-style skip scan and
// per-entry allocation hints.
package freelist

import (
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/pager"
)

// bitsPerByte free-bit convention: 1 = free, 0 = allocated or not yet
// handed out by the pager's address-space counter at all.
const bitsPerByte = 8

// entry is one freelist page's worth of bitmap, covering a contiguous
// range of device pages starting at startAddr. Only the first extended
// bits are meaningful — bits beyond that haven't been reserved from
// pager.Manager.Extend yet, so they read as used regardless of the raw
// bitmap byte (which starts zeroed) until reservation catches up to
// them.
type entry struct {
	pageID    page.ID
	startAddr page.ID
	maxBits   int
	extended  int
	bitmap    []byte // aliases the backing page's payload
	hint      hint
}

// hint biases the next scan away from a previously exhausted prefix,
// grounded in original_source/src/freelist.cc's per-entry "last
// successful offset" tracking (spec.md §4.3 Statistics).
type hint struct {
	lastOffset int
	lastLen    int
}

// Allocator owns the chain of freelist entries for one environment.
// Every page it ever hands out was first reserved through
// pager.Manager.Extend, so it can never collide with a page the pager
// allocated directly for a B+tree node.
type Allocator struct {
	mgr      *pager.Manager
	pageSize int
	entries  []*entry
	headID   page.ID
}

// New wires an Allocator to an existing chain of freelist pages
// (headID == page.InvalidID for a brand new environment; the first
// Alloc call will create the initial entry).
func New(mgr *pager.Manager, headID page.ID) *Allocator {
	return &Allocator{mgr: mgr, pageSize: mgr.PageSize(), headID: headID}
}

// bitsCapacity is how many pages one freelist entry's bitmap can track:
// the full payload, 8 bits per byte.
func (a *Allocator) bitsCapacity() int {
	return (a.pageSize - page.HeaderSize) * bitsPerByte
}

// HeadID exposes the chain head for the environment header to persist.
func (a *Allocator) HeadID() page.ID { return a.headID }

// load pulls in every entry page starting at headID, following the
// right-sibling chain the way pager-state pages are chained. The
// entry's Count header field doubles as its persisted "extended"
// counter (spec.md §3: pages carry a generic header every typed page
// reuses for its own bookkeeping).
func (a *Allocator) load() error {
	if a.entries != nil || a.headID == page.InvalidID {
		return nil
	}
	id := a.headID
	startAddr := page.ID(0)
	for id != page.InvalidID {
		p, err := a.mgr.Fetch(id, 0)
		if err != nil {
			return fmt.Errorf("load freelist entry: %w", err)
		}
		e := &entry{
			pageID:    id,
			startAddr: startAddr,
			maxBits:   a.bitsCapacity(),
			extended:  int(p.Count()),
			bitmap:    p.Payload(),
		}
		a.entries = append(a.entries, e)
		startAddr += page.ID(e.maxBits * a.pageSize)
		id = p.RightSibling()
	}
	return nil
}

// ensureEntry appends a new freelist entry page chained after the
// current tail, covering the next range of device pages.
func (a *Allocator) ensureEntry() (*entry, error) {
	p, err := a.mgr.Alloc(page.TypeFreelist, pager.AllocIgnoreFreeMap)
	if err != nil {
		return nil, err
	}

	var startAddr page.ID
	if len(a.entries) > 0 {
		tail := a.entries[len(a.entries)-1]
		if tailPage, err := a.mgr.Fetch(tail.pageID, pager.FetchOnlyFromCache); err == nil {
			tailPage.SetRightSibling(p.ID())
		}
		startAddr = tail.startAddr + page.ID(tail.maxBits*a.pageSize)
	}

	e := &entry{
		pageID:    p.ID(),
		startAddr: startAddr,
		maxBits:   a.bitsCapacity(),
		bitmap:    p.Payload(),
	}
	p.SetCount(0)

	if a.headID == page.InvalidID {
		a.headID = p.ID()
	}
	a.entries = append(a.entries, e)
	return e, nil
}

// Alloc finds and marks allocated a run of n consecutive free pages,
// returning the absolute page id of the run's first page. When no
// already-reserved run is long enough, it reserves n fresh pages from
// the pager's shared counter and extends the tail entry to cover them.
func (a *Allocator) Alloc(n int) (page.ID, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: alloc run must be positive", common.ErrInvalidParameter)
	}
	if err := a.load(); err != nil {
		return 0, err
	}

	for _, e := range a.entries {
		if e.extended == 0 {
			continue
		}
		if bit, ok := findFreeRun(e.bitmap[:byteLen(e.extended)], e.hint, n); ok && bit+n <= e.extended {
			markUsed(e.bitmap, bit, n)
			e.hint = hint{lastOffset: bit, lastLen: n}
			a.markEntryDirty(e)
			return e.startAddr + page.ID(bit*a.pageSize), nil
		}
	}

	return a.reserveFresh(n)
}

// reserveFresh draws n brand-new pages from the pager's address-space
// counter and records them as immediately-used bits in the tail entry,
// growing the entry chain if the current tail has no room left.
func (a *Allocator) reserveFresh(n int) (page.ID, error) {
	tail, err := a.tailEntry()
	if err != nil {
		return 0, err
	}
	if tail.extended+n > tail.maxBits {
		return 0, fmt.Errorf("%w: requested run of %d pages exceeds one freelist entry", common.ErrInternal, n)
	}

	id := a.mgr.Extend(n)
	bit := tail.extended
	markUsed(tail.bitmap, bit, n)
	tail.extended += n
	a.persistExtended(tail)
	a.markEntryDirty(tail)
	return id, nil
}

func (a *Allocator) tailEntry() (*entry, error) {
	if len(a.entries) == 0 {
		return a.ensureEntry()
	}
	tail := a.entries[len(a.entries)-1]
	if tail.extended >= tail.maxBits {
		return a.ensureEntry()
	}
	return tail, nil
}

func (a *Allocator) persistExtended(e *entry) {
	if p, err := a.mgr.Fetch(e.pageID, pager.FetchOnlyFromCache); err == nil {
		p.SetCount(uint32(e.extended))
	}
}

// Free marks a previously allocated run back to free.
func (a *Allocator) Free(id page.ID, n int) error {
	if err := a.load(); err != nil {
		return err
	}
	for _, e := range a.entries {
		span := page.ID(e.maxBits * a.pageSize)
		if id < e.startAddr || id >= e.startAddr+span {
			continue
		}
		bit := int((id - e.startAddr) / page.ID(a.pageSize))
		markFree(e.bitmap, bit, n)
		a.markEntryDirty(e)
		return nil
	}
	return fmt.Errorf("%w: page %d not covered by any freelist entry", common.ErrInvalidParameter, id)
}

func (a *Allocator) markEntryDirty(e *entry) {
	a.mgr.MarkDirty(e.pageID)
}

func byteLen(bits int) int { return (bits + 7) / 8 }

func markUsed(bitmap []byte, startBit, n int) {
	for i := 0; i < n; i++ {
		bit := startBit + i
		bitmap[bit/8] &^= 1 << uint(bit%8)
	}
}

func markFree(bitmap []byte, startBit, n int) {
	for i := 0; i < n; i++ {
		bit := startBit + i
		bitmap[bit/8] |= 1 << uint(bit%8)
	}
}
