package common

import "bytes"

// Comparator orders two keys the way the database's key type requires.
// Record-number databases compare big-endian integer bytes; binary
// databases compare lexicographically; custom comparators plug in here.
type Comparator func(a, b []byte) int

// BytesComparator is the default lexicographic comparator used by
// binary-key databases.
func BytesComparator(a, b []byte) int { return bytes.Compare(a, b) }

// KeyType identifies the on-disk key encoding of a database, per
// spec.md §6 Parameters.
type KeyType int

const (
	KeyTypeBinary KeyType = iota
	KeyTypeUint32
	KeyTypeUint64
	KeyTypeReal32
	KeyTypeReal64
	KeyTypeCustom
)

// MatchFlags controls approximate-match find semantics (spec.md §4.5).
type MatchFlags int

const (
	MatchExact MatchFlags = 0
	MatchLT    MatchFlags = 1 << iota
	MatchGT
	MatchLEQ = MatchLT | matchEQBit
	MatchGEQ = MatchGT | matchEQBit
)

const matchEQBit MatchFlags = 1 << 30

// MatchDirection reports which way an approximate match resolved.
type MatchDirection int

const (
	MatchNone MatchDirection = iota
	MatchLower
	MatchGreater
)

// DupInsertMode controls where a new duplicate lands in its table.
type DupInsertMode int

const (
	DupInsertLast DupInsertMode = iota
	DupInsertFirst
	DupInsertBefore
	DupInsertAfter
)

// Iterator is the common range-scan shape used by btree and cursor.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Metrics holds one environment's counters (split/merge/shift/conflict
// tallies and the like) as plain int64 fields, incremented without
// atomic operations. Environment.Metrics() returns a copy of them;
// PrometheusCollectors() exposes the same counters as prometheus
// collectors.
type Metrics struct {
	Splits        int64
	Merges        int64
	Shifts        int64
	PageFaults     int64
	CacheHits      int64
	CacheEvictions int64
	TxnConflicts   int64
	TxnCommits     int64
	TxnAborts      int64
	BlobAllocs     int64
	WALFlushes     int64
	RecoveryRuns   int64
}

// Stats mirrors the teacher's engine-wide snapshot, generalized for a
// single B+tree index rather than a choice of engines.
type Stats struct {
	NumKeys       int64
	NumPages      int
	TotalDiskSize int64
	WriteCount    int64
	ReadCount     int64
	WriteAmp      float64
	SpaceAmp      float64
}
