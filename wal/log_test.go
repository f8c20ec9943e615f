package wal

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/device"
	"github.com/embeddkv/embeddkv/page"
)

func TestCreate_WritesValidHeader(t *testing.T) {
	dev := device.NewMemoryDevice()
	l, err := Create(dev, &common.Metrics{}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, l.HasPendingRecords())
}

func TestOpen_RejectsBadMagic(t *testing.T) {
	dev := device.NewMemoryDevice()
	require.NoError(t, dev.WriteAt(0, make([]byte, headerSize)))

	_, err := Open(dev, &common.Metrics{}, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrLogInvalidHeader)
}

func TestLogPage_ThenRecover_ReplaysNewestVersion(t *testing.T) {
	dev := device.NewMemoryDevice()
	l, err := Create(dev, &common.Metrics{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.LogPage(page.ID(0), []byte("version-1")))
	require.NoError(t, l.LogPage(page.ID(page.DefaultSize), []byte("other-page")))
	require.NoError(t, l.LogPage(page.ID(0), []byte("version-2")))
	require.NoError(t, l.Sync())

	replayed := map[page.ID][]byte{}
	n, err := Recover(dev, func(id page.ID, data []byte) error {
		replayed[id] = append([]byte(nil), data...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "version-2", string(replayed[page.ID(0)]))
	assert.Equal(t, "other-page", string(replayed[page.ID(page.DefaultSize)]))
}

func TestTruncate_DropsAllRecords(t *testing.T) {
	dev := device.NewMemoryDevice()
	l, err := Create(dev, &common.Metrics{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.LogPage(page.ID(0), []byte("x")))
	assert.True(t, l.HasPendingRecords())

	require.NoError(t, l.Truncate())
	assert.False(t, l.HasPendingRecords())

	size, err := dev.Size()
	require.NoError(t, err)
	assert.EqualValues(t, headerSize, size)
}

func TestChangeset_TracksDistinctPages(t *testing.T) {
	dev := device.NewMemoryDevice()
	l, err := Create(dev, &common.Metrics{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.LogPage(page.ID(0), []byte("a")))
	require.NoError(t, l.LogPage(page.ID(0), []byte("b")))
	require.NoError(t, l.LogPage(page.ID(page.DefaultSize), []byte("c")))

	cs := l.Changeset()
	assert.Equal(t, 2, cs.Len())
	assert.True(t, cs.Contains(page.ID(0)))
}
