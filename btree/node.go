package btree

import "github.com/embeddkv/embeddkv/page"

// leafSlot is one (key, record-descriptor) pair in a leaf (spec.md §3
// B+tree node).
type leafSlot struct {
	key  []byte
	desc page.Descriptor
}

// internalSlot is one (key, child) pair: childID holds every key that
// compares <= key and > the previous slot's key (spec.md §3: "for
// every internal slot i, all keys in the i-th subtree compare <=
// slot-i's key and > slot-(i-1)'s key"). The subtree for keys greater
// than the last slot's key lives in the page's ptr-down field.
type internalSlot struct {
	key     []byte
	childID page.ID
}

// leafNode is the decoded, mutable view of a leaf page's payload,
// cached via page.Page.NodeView so repeated slot access doesn't
// re-parse the buffer.
type leafNode struct {
	slots []leafSlot
}

// internalNode is the decoded, mutable view of an internal page.
type internalNode struct {
	slots []internalSlot
}

func decodeLeaf(p *page.Page) *leafNode {
	if v, ok := p.NodeView().(*leafNode); ok {
		return v
	}
	n := &leafNode{}
	buf := p.Payload()
	count := int(p.Count())
	off := 0
	for i := 0; i < count; i++ {
		keyLen, n1 := uvarint(buf[off:])
		off += n1
		key := append([]byte(nil), buf[off:off+int(keyLen)]...)
		off += int(keyLen)
		desc := page.DecodeDescriptor(buf[off : off+page.DescriptorSize])
		off += page.DescriptorSize
		n.slots = append(n.slots, leafSlot{key: key, desc: desc})
	}
	p.SetNodeView(n)
	return n
}

func decodeInternal(p *page.Page) *internalNode {
	if v, ok := p.NodeView().(*internalNode); ok {
		return v
	}
	n := &internalNode{}
	buf := p.Payload()
	count := int(p.Count())
	off := 0
	for i := 0; i < count; i++ {
		keyLen, n1 := uvarint(buf[off:])
		off += n1
		key := append([]byte(nil), buf[off:off+int(keyLen)]...)
		off += int(keyLen)
		child := page.ID(beUint64(buf[off : off+8]))
		off += 8
		n.slots = append(n.slots, internalSlot{key: key, childID: child})
	}
	p.SetNodeView(n)
	return n
}

// encodeLeaf serializes n back into p's payload and updates its count.
func encodeLeaf(p *page.Page, n *leafNode) {
	buf := p.Payload()
	off := 0
	for _, s := range n.slots {
		off += putUvarint(buf[off:], uint64(len(s.key)))
		off += copy(buf[off:], s.key)
		s.desc.Encode(buf[off : off+page.DescriptorSize])
		off += page.DescriptorSize
	}
	p.SetCount(uint32(len(n.slots)))
	p.SetNodeView(n)
}

// encodeInternal serializes n back into p's payload and updates count.
func encodeInternal(p *page.Page, n *internalNode) {
	buf := p.Payload()
	off := 0
	for _, s := range n.slots {
		off += putUvarint(buf[off:], uint64(len(s.key)))
		off += copy(buf[off:], s.key)
		putBeUint64(buf[off:off+8], uint64(s.childID))
		off += 8
	}
	p.SetCount(uint32(len(n.slots)))
	p.SetNodeView(n)
}

// slotSize reports the serialized size of a leaf slot.
func leafSlotSize(key []byte) int {
	return varintSize(uint64(len(key))) + len(key) + page.DescriptorSize
}

func internalSlotSize(key []byte) int {
	return varintSize(uint64(len(key))) + len(key) + 8
}

func beUint64(b []byte) uint64 {
	var x uint64
	for i := 0; i < 8; i++ {
		x = x<<8 | uint64(b[i])
	}
	return x
}

func putBeUint64(b []byte, x uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(x)
		x >>= 8
	}
}
