package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/device"
	"github.com/embeddkv/embeddkv/page"
)

// record is one decoded on-disk log entry.
type record struct {
	lsn     uint64
	pageID  page.ID
	payload []byte
}

// Recover reads every record in dev's log, then replays into apply the
// newest version of each distinct page id — iterating conceptually
// backward by lsn, as spec.md §4.7 describes, by scanning forward once
// and keeping only the last (highest-lsn) record seen per page id.
// Returns the number of distinct pages replayed.
func Recover(dev device.Device, apply func(id page.ID, data []byte) error) (int, error) {
	size, err := dev.Size()
	if err != nil {
		return 0, err
	}
	if size < headerSize {
		return 0, fmt.Errorf("%w: log file shorter than its header", common.ErrLogInvalidHeader)
	}

	header := make([]byte, headerSize)
	if err := dev.ReadAt(0, header); err != nil {
		return 0, err
	}
	if [4]byte(header[:4]) != magic {
		return 0, fmt.Errorf("%w: bad magic", common.ErrLogInvalidHeader)
	}

	records, err := readRecords(dev, size)
	if err != nil {
		return 0, err
	}

	latest := make(map[page.ID]record, len(records))
	for _, r := range records {
		if prev, ok := latest[r.pageID]; !ok || r.lsn > prev.lsn {
			latest[r.pageID] = r
		}
	}

	for id, r := range latest {
		if err := apply(id, r.payload); err != nil {
			return 0, fmt.Errorf("replay page %d: %w", id, err)
		}
	}
	return len(latest), nil
}

func readRecords(dev device.Device, size int64) ([]record, error) {
	var records []record
	offset := int64(headerSize)

	for offset+recordHeaderSize <= size {
		hdr := make([]byte, recordHeaderSize)
		if err := dev.ReadAt(offset, hdr); err != nil {
			return nil, err
		}
		lsn := binary.LittleEndian.Uint64(hdr[0:8])
		pageID := page.ID(binary.LittleEndian.Uint64(hdr[8:16]))
		payloadSize := binary.LittleEndian.Uint32(hdr[20:24])

		recordEnd := offset + recordHeaderSize + int64(payloadSize)
		if recordEnd > size {
			// Truncated tail record from a crash mid-append; stop
			// replaying here rather than reading past the file.
			break
		}

		payload := make([]byte, payloadSize)
		if err := dev.ReadAt(offset+recordHeaderSize, payload); err != nil {
			return nil, err
		}

		records = append(records, record{lsn: lsn, pageID: pageID, payload: payload})
		offset = recordEnd
	}
	return records, nil
}
