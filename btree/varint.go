package btree

import "encoding/binary"

// Leaf and internal node slots pack key lengths as varints
// (same wire shape as Protocol Buffers) rather than fixed-width
// integers, since most keys are far shorter than the maximum inline
// size and a fixed 2- or 4-byte length field would waste space on
// every slot.

// putUvarint encodes x into buf and returns the number of bytes
// written. Panics if buf is too small, same contract as
// encoding/binary.PutUvarint.
func putUvarint(buf []byte, x uint64) int {
	return binary.PutUvarint(buf, x)
}

// uvarint decodes a uint64 from buf and returns the value and the
// number of bytes read. n is 0 if buf is too small and negative on
// overflow, same contract as encoding/binary.Uvarint.
func uvarint(buf []byte) (uint64, int) {
	return binary.Uvarint(buf)
}

// varintSize returns the number of bytes putUvarint would need to
// encode x.
func varintSize(x uint64) int {
	var scratch [binary.MaxVarintLen64]byte
	return binary.PutUvarint(scratch[:], x)
}
