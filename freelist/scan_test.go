package freelist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allFree(nBytes int) []byte {
	b := make([]byte, nBytes)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func TestScanBits_FindsSmallRun(t *testing.T) {
	bitmap := allFree(4)
	markUsed(bitmap, 0, 3)
	bit, ok := scanBits(bitmap, 0, 2)
	require.True(t, ok)
	require.Equal(t, 3, bit)
}

func TestScanBytes_SkipsUsedBytes(t *testing.T) {
	bitmap := allFree(8)
	markUsed(bitmap, 0, 24) // first three bytes fully used
	bit, ok := scanBytes(bitmap, 0, 16)
	require.True(t, ok)
	require.Equal(t, 24, bit)
}

func TestScanQwords_FindsLargeRun(t *testing.T) {
	bitmap := allFree(32) // 256 bits
	markUsed(bitmap, 0, 130)
	bit, ok := scanQwords(bitmap, 0, 120)
	require.True(t, ok)
	require.Equal(t, 130, bit)
}

func TestFindFreeRun_HonorsHint(t *testing.T) {
	bitmap := allFree(4)
	markUsed(bitmap, 4, 4) // bits 4..7 used, rest free
	h := hint{lastOffset: 0, lastLen: 4}
	bit, ok := findFreeRun(bitmap, h, 4)
	require.True(t, ok)
	require.Equal(t, 8, bit)
}

func TestFindFreeRun_NoRoomReturnsFalse(t *testing.T) {
	bitmap := make([]byte, 2) // fully used
	_, ok := findFreeRun(bitmap, hint{}, 4)
	require.False(t, ok)
}
