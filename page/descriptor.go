package page

import "encoding/binary"

// DescriptorKind is the tagged-union discriminator for a leaf slot's
// record descriptor (spec.md §3 Page, §9 "pointer-tagged record
// descriptors in leaves").
type DescriptorKind uint8

const (
	DescEmpty DescriptorKind = iota
	DescTiny                 // inline record, <= 8 bytes
	DescBlob                 // points at a blob by absolute byte offset
	DescDuplicateTable       // points at a duplicate table blob
)

// DescriptorSize is the fixed on-disk size of a record descriptor:
// 1 discriminator byte + 8 payload bytes, per spec.md §9.
const DescriptorSize = 9

// Descriptor is the in-memory form of a leaf slot's record descriptor.
type Descriptor struct {
	Kind DescriptorKind
	// TinyLen is the valid length of TinyData when Kind == DescTiny.
	TinyLen byte
	TinyData [8]byte
	// Ref is the blob offset (DescBlob) or duplicate-table blob offset
	// (DescDuplicateTable).
	Ref uint64
}

// EmptyDescriptor is the zero-length record, not stored as a blob
// (spec.md §4.4).
func EmptyDescriptor() Descriptor { return Descriptor{Kind: DescEmpty} }

// TinyDescriptor inlines up to 8 bytes directly in the leaf slot.
func TinyDescriptor(data []byte) Descriptor {
	var d Descriptor
	d.Kind = DescTiny
	d.TinyLen = byte(len(data))
	copy(d.TinyData[:], data)
	return d
}

func BlobDescriptor(offset uint64) Descriptor {
	return Descriptor{Kind: DescBlob, Ref: offset}
}

func DuplicateTableDescriptor(offset uint64) Descriptor {
	return Descriptor{Kind: DescDuplicateTable, Ref: offset}
}

// Encode writes the descriptor to a 9-byte slot. A tiny descriptor
// keeps its length in the high four bits of the discriminator byte, so
// all 8 payload bytes carry record data.
func (d Descriptor) Encode(buf []byte) {
	buf[0] = byte(d.Kind)
	switch d.Kind {
	case DescTiny:
		buf[0] |= d.TinyLen << 4
		copy(buf[1:9], d.TinyData[:])
	case DescBlob, DescDuplicateTable:
		binary.LittleEndian.PutUint64(buf[1:9], d.Ref)
	default:
		for i := 1; i < DescriptorSize; i++ {
			buf[i] = 0
		}
	}
}

// DecodeDescriptor parses a 9-byte slot.
func DecodeDescriptor(buf []byte) Descriptor {
	var d Descriptor
	d.Kind = DescriptorKind(buf[0] & 0x0F)
	switch d.Kind {
	case DescTiny:
		d.TinyLen = buf[0] >> 4
		copy(d.TinyData[:], buf[1:9])
	case DescBlob, DescDuplicateTable:
		d.Ref = binary.LittleEndian.Uint64(buf[1:9])
	}
	return d
}

// Tiny returns the inline bytes, valid only when Kind == DescTiny.
func (d Descriptor) Tiny() []byte { return d.TinyData[:d.TinyLen] }
