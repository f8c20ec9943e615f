// Package wal implements the write-ahead log of spec.md §4.7: an
// append-only record file, one record per logged page image, replayed
// newest-version-first on recovery. It satisfies pager.WAL so
// pager.Manager can log a page's image the moment the page goes dirty,
// before any eventual in-place write reaches the device.
package wal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/device"
	"github.com/embeddkv/embeddkv/page"
)

// magic tags a log file's header (spec.md §6 "Log file... Header
// (magic, reserved, lsn)").
var magic = [4]byte{'E', 'K', 'V', 'L'}

const (
	headerSize       = 16 // magic(4) + reserved(4) + lsn(8)
	recordHeaderSize = 28 // lsn(8) + pageid(8) + original-size(4) + payload-size(4) + flags(4)
)

// RecordFlags tags a log record. No compression is implemented, so
// OriginalSize always equals PayloadSize today; the field pair is kept
// because recovery's on-disk format must distinguish them the moment
// record or key compression (spec.md §6 Parameters) is added.
type RecordFlags uint32

// Log is the append-only write-ahead log. Every LogPage call appends
// one record and advances the log's own lsn counter — a deliberate
// divergence from the per-flush single-shared-lsn "changeset" the
// source batches (see DESIGN.md): pager.Manager already calls LogPage
// eagerly, once per page, the instant it goes dirty, so giving each of
// those calls its own lsn preserves the same atomicity guarantee
// (pre-image durably logged before any later in-place write) with one
// lsn per log record instead of one lsn per flush.
type Log struct {
	mu sync.Mutex

	dev     device.Device
	offset  int64
	lastLSN uint64

	changeset *Changeset
	metrics   *common.Metrics
	log       zerolog.Logger
}

// Create initializes a brand-new log file: writes the header and
// positions the append cursor right after it.
func Create(dev device.Device, metrics *common.Metrics, logger zerolog.Logger) (*Log, error) {
	l := &Log{
		dev:       dev,
		offset:    headerSize,
		changeset: newChangeset(),
		metrics:   metrics,
		log:       logger.With().Str("component", "wal").Logger(),
	}
	if err := l.writeHeader(); err != nil {
		return nil, err
	}
	return l, nil
}

// Open reattaches to an existing log file, validating its header.
// Returns common.ErrLogInvalidHeader if the magic does not match
// (spec.md §4.7 "A log whose magic is corrupt aborts open with
// log-inv-file-header").
func Open(dev device.Device, metrics *common.Metrics, logger zerolog.Logger) (*Log, error) {
	size, err := dev.Size()
	if err != nil {
		return nil, err
	}
	if size < headerSize {
		return nil, fmt.Errorf("%w: log file shorter than its header", common.ErrLogInvalidHeader)
	}

	buf := make([]byte, headerSize)
	if err := dev.ReadAt(0, buf); err != nil {
		return nil, err
	}
	if [4]byte(buf[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", common.ErrLogInvalidHeader)
	}
	lastLSN := binary.LittleEndian.Uint64(buf[8:16])

	l := &Log{
		dev:       dev,
		offset:    size,
		lastLSN:   lastLSN,
		changeset: newChangeset(),
		metrics:   metrics,
		log:       logger.With().Str("component", "wal").Logger(),
	}
	return l, nil
}

func (l *Log) writeHeader() error {
	buf := make([]byte, headerSize)
	copy(buf[:4], magic[:])
	binary.LittleEndian.PutUint64(buf[8:16], l.lastLSN)
	return l.dev.WriteAt(0, buf)
}

// HasPendingRecords reports whether the log holds any records beyond
// its header — the "opens dirty" condition engine.Environment checks
// against the enable-recovery/auto-recovery flags (spec.md §4.7).
func (l *Log) HasPendingRecords() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset > headerSize
}

// LogPage appends one record holding page id's current image,
// satisfying pager.WAL.
func (l *Log) LogPage(id page.ID, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastLSN++
	lsn := l.lastLSN

	rec := make([]byte, recordHeaderSize+len(data))
	binary.LittleEndian.PutUint64(rec[0:8], lsn)
	binary.LittleEndian.PutUint64(rec[8:16], uint64(id))
	binary.LittleEndian.PutUint32(rec[16:20], uint32(len(data)))
	binary.LittleEndian.PutUint32(rec[20:24], uint32(len(data)))
	binary.LittleEndian.PutUint32(rec[24:28], uint32(0))
	copy(rec[recordHeaderSize:], data)

	if err := l.dev.WriteAt(l.offset, rec); err != nil {
		return fmt.Errorf("%w: wal append: %v", common.ErrIO, err)
	}
	l.offset += int64(len(rec))
	l.changeset.track(id, lsn)

	if l.metrics != nil {
		l.metrics.WALFlushes++
	}
	return nil
}

// Sync fsyncs the log device and persists the latest lsn into the
// header, so a reopen without recovery still reports an accurate
// last-known lsn.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writeHeader(); err != nil {
		return err
	}
	return l.dev.Flush()
}

// Truncate drops every record after the header and resets the
// changeset — called after a clean shutdown flush or after recovery
// replay completes (spec.md §4.7 Atomicity / Recovery).
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.dev.Truncate(headerSize); err != nil {
		return err
	}
	l.offset = headerSize
	l.changeset = newChangeset()
	return l.writeHeader()
}

// Changeset exposes the set of pages logged since the last truncate,
// for diagnostics; Recover reads the log file and does not consult it.
func (l *Log) Changeset() *Changeset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changeset
}

func (l *Log) Close() error {
	if err := l.Sync(); err != nil {
		return err
	}
	return l.dev.Close()
}
