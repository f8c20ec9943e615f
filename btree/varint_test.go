package btree

import (
	"fmt"
	"testing"
)

func TestVarintEncoding(t *testing.T) {
	tests := []struct {
		value    uint64
		expected int // expected size in bytes
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{65535, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("value_%d", tt.value), func(t *testing.T) {
			buf := make([]byte, 10)
			n := putUvarint(buf, tt.value)
			if n != tt.expected {
				t.Errorf("putUvarint(%d) = %d bytes, want %d bytes", tt.value, n, tt.expected)
			}

			decoded, n2 := uvarint(buf)
			if n2 != n {
				t.Errorf("uvarint returned %d bytes, want %d bytes", n2, n)
			}
			if decoded != tt.value {
				t.Errorf("uvarint = %d, want %d", decoded, tt.value)
			}

			size := varintSize(tt.value)
			if size != tt.expected {
				t.Errorf("varintSize(%d) = %d, want %d", tt.value, size, tt.expected)
			}
		})
	}
}

func TestVarintRoundTrip(t *testing.T) {
	buf := make([]byte, 10)

	for i := uint64(0); i < 1000; i++ {
		n := putUvarint(buf, i)
		decoded, n2 := uvarint(buf)

		if n != n2 {
			t.Errorf("Round trip size mismatch for %d: encoded %d bytes, decoded %d bytes", i, n, n2)
		}
		if decoded != i {
			t.Errorf("Round trip value mismatch: encoded %d, decoded %d", i, decoded)
		}
	}

	// a handful of large values exercising the multi-byte tail
	large := []uint64{1 << 20, 1 << 34, 1<<64 - 1}
	for _, v := range large {
		n := putUvarint(buf, v)
		decoded, n2 := uvarint(buf)
		if n != n2 || decoded != v {
			t.Errorf("Round trip mismatch for %d: got %d (n=%d, n2=%d)", v, decoded, n, n2)
		}
	}
}

func TestVarintSpaceSavings(t *testing.T) {
	// Calculate space savings for typical key/value sizes over a
	// fixed 2+2 byte length header, the alternative leafSlotSize
	// considered before choosing the varint layout.
	testCases := []struct {
		keySize   uint64
		valueSize uint64
	}{
		{10, 20},   // Small key/value
		{50, 100},  // Medium key/value
		{100, 200}, // Large key/value
		{127, 127}, // Edge case (1 byte varint)
		{128, 128}, // Edge case (2 bytes varint)
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("key_%d_value_%d", tc.keySize, tc.valueSize), func(t *testing.T) {
			fixedOverhead := 4
			varintOverhead := varintSize(tc.keySize) + varintSize(tc.valueSize)
			savings := fixedOverhead - varintOverhead

			t.Logf("Key=%d Value=%d: fixed overhead=%d bytes, varint overhead=%d bytes, savings=%d bytes",
				tc.keySize, tc.valueSize, fixedOverhead, varintOverhead, savings)

			if tc.keySize < 128 && tc.valueSize < 128 && savings != 2 {
				t.Errorf("Expected 2 bytes savings for small keys, got %d", savings)
			}
		})
	}
}

func BenchmarkVarintEncoding(b *testing.B) {
	buf := make([]byte, 10)
	value := uint64(12345)

	b.Run("Encode", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			putUvarint(buf, value)
		}
	})

	b.Run("Decode", func(b *testing.B) {
		putUvarint(buf, value)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			uvarint(buf)
		}
	})
}
