// Package page defines the fixed-size block format shared by every page
// type in the file (spec.md §3 Page, §4.1). A Page is owned by exactly
// one pager.Manager instance; callers never construct raw byte slices
// by hand.
package page

import "encoding/binary"

// DefaultSize is the page size pager.New falls back to when none is
// configured. Real deployments configure the page size at environment
// creation (spec.md §6 Parameters "page-size"); 16 KiB is the spec's
// suggested default.
const DefaultSize = 16 * 1024

// Type tags the page's structural role (spec.md §3 Page).
type Type uint8

const (
	TypeUnused Type = iota
	TypeHeader
	TypeBTreeRoot
	TypeBTreeInternal
	TypeBTreeLeaf
	TypeBlob
	TypeBlobOverflow // continuation page of a multi-page blob; "no-header"
	TypePagerState
	TypeFreelist
)

// ID identifies a page by its byte offset in the file (spec.md §3: "a
// fixed-size block... identified by its byte offset in the file").
// Offset 0 is reserved for the environment header page.
type ID int64

const InvalidID ID = -1

// Header layout, common to every page type that isn't "no-header"
// (spec.md §4.2 alloc_blob_pages): type(1) + flags(1) + count(4) +
// left-sibling(8) + right-sibling(8) + ptrDown/overflow(8).
const (
	headerOffType   = 0
	headerOffFlags  = 1
	headerOffCount  = 2
	headerOffLeft   = 6
	headerOffRight  = 14
	headerOffDown   = 22
	HeaderSize      = 30
)

// FlagNoHeader marks a continuation page of a multi-page blob run: the
// blob manager owns the full page content and the generic header must
// not be interpreted (spec.md §4.2).
const FlagNoHeader uint8 = 1 << 0

// Page is one in-memory instance of a fixed-size on-disk block. Exactly
// one Page exists per live page ID at a time; the pager.Manager cache
// enforces that uniqueness.
type Page struct {
	id    ID
	size  int
	typ   Type
	dirty bool
	data  []byte

	// nodeView caches a parsed structural view of the payload (a
	// *btree node, a freelist bitmap view, ...). It is invalidated
	// whenever the page is freed or retyped; the owning package is
	// responsible for the actual type assertion.
	nodeView any
}

// New allocates a zeroed page of the given type and size, marked dirty
// (spec.md §4.1 Page.allocate).
func New(id ID, typ Type, size int) *Page {
	p := &Page{id: id, size: size, typ: typ, dirty: true, data: make([]byte, size)}
	if typ != TypeBlobOverflow {
		p.data[headerOffType] = byte(typ)
	}
	return p
}

// Load wraps raw bytes read from the device as a Page. The page is
// clean: its image matches disk.
func Load(id ID, data []byte) *Page {
	p := &Page{id: id, size: len(data), data: data}
	p.typ = Type(data[headerOffType])
	return p
}

func (p *Page) ID() ID      { return p.id }
func (p *Page) Type() Type  { return p.typ }
func (p *Page) Size() int   { return p.size }
func (p *Page) Dirty() bool { return p.dirty }

// SetDirty marks the page modified or clean. Callers route through
// pager.Manager.MarkDirty so the cache and WAL changeset stay in sync;
// this setter is for that package's internal bookkeeping.
func (p *Page) SetDirty(v bool) { p.dirty = v }

// Retype changes the page's structural role in place (e.g. a freed
// B+tree leaf reused as a freelist page). Invalidates the cached node
// view (spec.md §4.1: "invalidated when the page is freed or its type
// changes").
func (p *Page) Retype(typ Type) {
	p.typ = typ
	p.nodeView = nil
	p.data[headerOffType] = byte(typ)
	p.dirty = true
}

// Data returns the full raw page buffer, header included.
func (p *Page) Data() []byte { return p.data }

// Payload returns the bytes following the fixed header, for page types
// that use it (everything except blob overflow continuation pages).
func (p *Page) Payload() []byte { return p.data[HeaderSize:] }

func (p *Page) Flags() uint8      { return p.data[headerOffFlags] }
func (p *Page) SetFlags(f uint8)  { p.data[headerOffFlags] = f; p.dirty = true }

func (p *Page) Count() uint32 {
	return binary.LittleEndian.Uint32(p.data[headerOffCount:])
}

func (p *Page) SetCount(n uint32) {
	binary.LittleEndian.PutUint32(p.data[headerOffCount:], n)
	p.dirty = true
}

func (p *Page) LeftSibling() ID {
	return ID(binary.LittleEndian.Uint64(p.data[headerOffLeft:]))
}

func (p *Page) SetLeftSibling(id ID) {
	binary.LittleEndian.PutUint64(p.data[headerOffLeft:], uint64(id))
	p.dirty = true
}

func (p *Page) RightSibling() ID {
	return ID(binary.LittleEndian.Uint64(p.data[headerOffRight:]))
}

func (p *Page) SetRightSibling(id ID) {
	binary.LittleEndian.PutUint64(p.data[headerOffRight:], uint64(id))
	p.dirty = true
}

// PtrDown is the internal-node down pointer / blob overflow pointer,
// sharing the header slot (spec.md §3 "ptr-down for internal nodes").
func (p *Page) PtrDown() ID {
	return ID(binary.LittleEndian.Uint64(p.data[headerOffDown:]))
}

func (p *Page) SetPtrDown(id ID) {
	binary.LittleEndian.PutUint64(p.data[headerOffDown:], uint64(id))
	p.dirty = true
}

// NodeView returns the cached structural view previously stored with
// SetNodeView, or nil if the page hasn't been parsed yet or was
// invalidated by Retype/Free.
func (p *Page) NodeView() any { return p.nodeView }

func (p *Page) SetNodeView(v any) { p.nodeView = v }

// Free releases the node view cache; the backing buffer is left for
// the GC once the pager drops its reference (spec.md §4.1 Page.free).
func (p *Page) Free() { p.nodeView = nil }

// Clone deep-copies a page's id, type, dirty flag and data; the cached
// node view is not copied.
func (p *Page) Clone() *Page {
	c := &Page{id: p.id, size: p.size, typ: p.typ, dirty: p.dirty}
	c.data = make([]byte, len(p.data))
	copy(c.data, p.data)
	return c
}
