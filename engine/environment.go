// Package engine ties every other package into the public
// environment/database/transaction/cursor surface of spec.md §6: file
// layout, descriptor table, parameter validation, recovery-on-open,
// and the exclusive file lock. It plays the role the teacher's
// `btree.BTree` (`btree.go`'s Config/New/Close) plays for a single
// B+tree, generalized to an environment that can hold several
// independent databases.
package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/embeddkv/embeddkv/blob"
	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/device"
	"github.com/embeddkv/embeddkv/freelist"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/pager"
	"github.com/embeddkv/embeddkv/txn"
	"github.com/embeddkv/embeddkv/wal"
)

// logSuffix is the sibling write-ahead-log file's fixed suffix
// (spec.md §6 "Log file. Sibling file to the data file, same base
// name, fixed suffix (e.g. .log0)").
const logSuffix = ".log0"

// Environment owns one data file (or in-memory arena) and everything
// beneath it: the page cache, freelist, blob manager, optional
// write-ahead log, and the set of open databases (spec.md §6
// env_create/env_open/env_close).
type Environment struct {
	mu sync.Mutex

	path   string
	flags  Flags
	params Params

	dev     device.Device
	lockFD  *os.File
	logDev  device.Device

	mgr   *pager.Manager
	free  *freelist.Allocator
	blobs *blob.Manager
	log   *wal.Log // nil unless transactions or recovery are enabled

	metrics *common.Metrics
	logger  zerolog.Logger

	hdr *header
	dbs map[string]*Database

	closed bool
}

// Create initializes a brand-new environment at path (or a fresh
// in-memory arena when flags.InMemory), writing the header page and
// an empty descriptor table (spec.md §6 env_create).
func Create(path string, flags Flags, params Params) (*Environment, error) {
	if params.PageSize == 0 {
		params = fillDefaults(params)
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	dev, lockFD, err := openDataDevice(path, flags)
	if err != nil {
		return nil, err
	}

	hdr := newHeader(params)
	if err := dev.WriteAt(0, hdr.encode()); err != nil {
		dev.Close()
		return nil, fmt.Errorf("%w: write environment header: %v", common.ErrIO, err)
	}

	e, err := newEnvironment(path, flags, params, dev, lockFD, hdr, true)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return e, nil
}

// Open reattaches to an existing environment, replaying the
// write-ahead log first if recovery is needed and permitted (spec.md
// §6 env_open, §4.7 Recovery).
func Open(path string, flags Flags, params Params) (*Environment, error) {
	if flags.InMemory {
		return nil, fmt.Errorf("%w: in-memory environments cannot be reopened", common.ErrInvalidParameter)
	}

	dev, lockFD, err := openDataDevice(path, flags)
	if err != nil {
		return nil, err
	}

	size, err := dev.Size()
	if err != nil {
		dev.Close()
		return nil, err
	}
	if size < fixedHeaderSize {
		dev.Close()
		return nil, fmt.Errorf("%w: data file too small to hold a header", common.ErrInternal)
	}
	probe := make([]byte, fixedHeaderSize)
	if err := dev.ReadAt(0, probe); err != nil {
		dev.Close()
		return nil, err
	}
	if [4]byte(probe[:4]) != headerMagic {
		dev.Close()
		return nil, fmt.Errorf("%w: bad environment header magic", common.ErrInternal)
	}

	full := make([]byte, binary.LittleEndian.Uint32(probe[8:12]))
	if err := dev.ReadAt(0, full); err != nil {
		dev.Close()
		return nil, err
	}
	hdr, err := decodeHeader(full)
	if err != nil {
		dev.Close()
		return nil, err
	}
	wantDefaultLogger := params.PageSize == 0
	params.PageSize = int(hdr.pageSize)
	params.MaxDatabases = int(hdr.maxDatabases)
	if wantDefaultLogger {
		params.Logger = zerolog.Nop()
	}

	if err := recoverIfNeeded(path, dev, flags, &params); err != nil {
		dev.Close()
		return nil, err
	}

	e, err := newEnvironment(path, flags, params, dev, lockFD, hdr, false)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return e, nil
}

func fillDefaults(params Params) Params {
	d := DefaultParams()
	if params.PageSize == 0 {
		params.PageSize = d.PageSize
	}
	if params.CacheSize == 0 {
		params.CacheSize = d.CacheSize
	}
	if params.MaxDatabases == 0 {
		params.MaxDatabases = d.MaxDatabases
	}
	params.Logger = d.Logger
	return params
}

func openDataDevice(path string, flags Flags) (device.Device, *os.File, error) {
	if flags.InMemory {
		return device.NewMemoryDevice(), nil, nil
	}
	fd, err := device.OpenFile(path, flags.ReadOnly)
	if err != nil {
		return nil, nil, err
	}
	if !flags.ReadOnly {
		if err := flockFile(fd.File()); err != nil {
			fd.Close()
			return nil, nil, err
		}
	}
	return fd, fd.File(), nil
}

// recoverIfNeeded opens (or creates) the sibling log file and, if it
// holds pending records, replays them directly against dev before the
// pager is constructed — spec.md §4.7's redo recovery runs against raw
// page bytes, bypassing the cache entirely.
func recoverIfNeeded(path string, dev device.Device, flags Flags, params *Params) error {
	if !flags.EnableTransactions && !flags.EnableRecovery {
		return nil
	}

	logDev, err := device.OpenFile(path+logSuffix, false)
	if err != nil {
		return err
	}

	size, err := logDev.Size()
	if err != nil {
		logDev.Close()
		return err
	}
	if size == 0 {
		logDev.Close()
		return nil
	}

	l, err := wal.Open(logDev, &common.Metrics{}, params.Logger)
	if err != nil {
		logDev.Close()
		return err
	}
	pending := l.HasPendingRecords()
	logDev.Close()
	if !pending {
		return nil
	}
	if !flags.AutoRecovery {
		return common.ErrNeedRecovery
	}

	recoverDev, err := device.OpenFile(path+logSuffix, false)
	if err != nil {
		return err
	}
	defer recoverDev.Close()

	apply := func(id page.ID, data []byte) error {
		return dev.WriteAt(int64(id), data)
	}
	if _, err := wal.Recover(recoverDev, apply); err != nil {
		return err
	}

	l2, err := wal.Open(recoverDev, &common.Metrics{}, params.Logger)
	if err != nil {
		return err
	}
	return l2.Truncate()
}

func newEnvironment(path string, flags Flags, params Params, dev device.Device, lockFD *os.File, hdr *header, fresh bool) (*Environment, error) {
	metrics := &common.Metrics{}
	logger := params.Logger

	nextOffset := page.ID(params.PageSize)
	if !fresh {
		size, err := dev.Size()
		if err != nil {
			return nil, err
		}
		nextOffset = page.ID(size)
	}

	mgr := pager.New(dev, nextOffset, pager.Options{
		PageSize:         params.PageSize,
		CacheBudgetBytes: params.CacheSize,
		Metrics:          metrics,
		Log:              logger,
	})
	free := freelist.New(mgr, hdr.freelistHead)
	blobs := blob.New(mgr, free)

	e := &Environment{
		path:    path,
		flags:   flags,
		params:  params,
		dev:     dev,
		lockFD:  lockFD,
		mgr:     mgr,
		free:    free,
		blobs:   blobs,
		metrics: metrics,
		logger:  logger,
		hdr:     hdr,
		dbs:     make(map[string]*Database),
	}

	if flags.EnableTransactions || flags.EnableRecovery {
		logDev, err := device.OpenFile(path+logSuffix, false)
		if err != nil {
			return nil, err
		}
		var l *wal.Log
		if fresh {
			l, err = wal.Create(logDev, metrics, logger)
		} else {
			l, err = wal.Open(logDev, metrics, logger)
		}
		if err != nil {
			logDev.Close()
			return nil, err
		}
		e.logDev = logDev
		e.log = l
		mgr.SetWAL(l)
	}

	return e, nil
}

// Close flushes every dirty page, truncates the log, persists the
// header, and releases the file lock (spec.md §6 env_close).
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.mgr.Sync(); err != nil {
		return fmt.Errorf("sync pager: %w", err)
	}
	if e.log != nil {
		if err := e.log.Sync(); err != nil {
			return fmt.Errorf("sync wal: %w", err)
		}
		if err := e.log.Truncate(); err != nil {
			return fmt.Errorf("truncate wal: %w", err)
		}
		if err := e.log.Close(); err != nil {
			return fmt.Errorf("close wal: %w", err)
		}
	}

	e.hdr.freelistHead = e.free.HeadID()
	if err := e.dev.WriteAt(0, e.hdr.encode()); err != nil {
		return fmt.Errorf("%w: persist header: %v", common.ErrIO, err)
	}
	if err := e.dev.Flush(); err != nil {
		return err
	}

	if e.lockFD != nil {
		_ = unflockFile(e.lockFD)
	}
	return e.dev.Close()
}

// Metrics is defined in metrics.go.

func comparatorFor(common.KeyType) common.Comparator {
	// Every key type is compared as raw bytes (spec.md §6 "keys of
	// record-number databases are big-endian for byte-order
	// correctness"). This orders big-endian unsigned keys such as
	// record numbers numerically; it does not order negative
	// real32/real64 keys numerically, and custom key types get no
	// comparator of their own.
	return common.BytesComparator
}

func sanitizedName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 31 {
		return "", fmt.Errorf("%w: database name must be 1-31 bytes", common.ErrInvalidParameter)
	}
	return name, nil
}

func (e *Environment) persistHeader() error {
	e.hdr.freelistHead = e.free.HeadID()
	return e.dev.WriteAt(0, e.hdr.encode())
}

// allocRecordNumber assigns the next record number for the database in
// slot, big-endian encoded to bits/8 bytes so byte comparison orders
// record-number keys numerically (spec.md §3 "Record number key
// type"). It checks for wraparound before assigning rather than after
// (SPEC_FULL.md §5 "limits-reached record-number wraparound check"),
// and persists the updated counter so it survives a reopen (spec.md §3
// "stored in the database's descriptor as the most recently assigned
// value").
func (e *Environment) allocRecordNumber(slot int, bits int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := &e.hdr.descriptors[slot]
	max := uint64(math.MaxUint64)
	if bits == 32 {
		max = math.MaxUint32
	}
	if d.nextRecordNumber >= max {
		return nil, fmt.Errorf("%w: record number counter for database %q would wrap", common.ErrLimitsReached, d.name)
	}

	d.nextRecordNumber++
	if err := e.persistHeader(); err != nil {
		d.nextRecordNumber--
		return nil, err
	}

	key := make([]byte, bits/8)
	if bits == 32 {
		binary.BigEndian.PutUint32(key, uint32(d.nextRecordNumber))
	} else {
		binary.BigEndian.PutUint64(key, d.nextRecordNumber)
	}
	return key, nil
}

// CreateDatabase allocates a new descriptor slot and an empty B+tree
// for it (spec.md §6 env_create_db).
func (e *Environment) CreateDatabase(name string, flags DBFlags) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, err := sanitizedName(name)
	if err != nil {
		return nil, err
	}
	if e.hdr.findSlot(name) != -1 {
		return nil, fmt.Errorf("%w: database %q already exists", common.ErrDuplicateKey, name)
	}
	slot := e.hdr.allocSlot()
	if slot == -1 {
		return nil, fmt.Errorf("%w: maximum databases (%d) reached", common.ErrLimitsReached, e.hdr.maxDatabases)
	}

	keyType := e.params.KeyType
	cmp := comparatorFor(keyType)
	tree, err := btree.Create(e.mgr, e.blobs, e.free, btree.Options{
		Comparator:         cmp,
		AllowDuplicateKeys: flags.EnableDuplicateKeys,
		MaxKeySize:         e.params.KeySize,
		Metrics:            e.metrics,
	})
	if err != nil {
		return nil, err
	}

	var txns *txn.Manager
	if e.flags.EnableTransactions {
		txns = txn.NewManager(cmp, tree, e.metrics, e.logger)
	}

	var slotFlags uint8
	if flags.EnableDuplicateKeys {
		slotFlags |= dbFlagDuplicates
	}
	if flags.RecordNumber32 {
		slotFlags |= dbFlagRecNum32
	}
	if flags.RecordNumber64 {
		slotFlags |= dbFlagRecNum64
	}

	e.hdr.descriptors[slot] = descriptorSlot{
		name:       name,
		keyType:    keyType,
		flags:      slotFlags,
		inUse:      true,
		keySize:    uint32(e.params.KeySize),
		recSize:    uint32(e.params.RecordSize),
		rootPageID: tree.RootID(),
	}
	if err := e.persistHeader(); err != nil {
		return nil, err
	}

	db := &Database{env: e, name: name, slot: slot, tree: tree, txns: txns, cmp: cmp, flags: flags}
	e.dbs[name] = db
	return db, nil
}

// OpenDatabase binds a Database to an existing descriptor slot,
// reusing a cached instance if one is already open (spec.md §6
// env_open_db).
func (e *Environment) OpenDatabase(name string) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.dbs[name]; ok {
		return db, nil
	}

	slot := e.hdr.findSlot(name)
	if slot == -1 {
		return nil, fmt.Errorf("%w: database %q", common.ErrKeyNotFound, name)
	}
	desc := e.hdr.descriptors[slot]

	cmp := comparatorFor(desc.keyType)
	tree := btree.Open(e.mgr, e.blobs, e.free, desc.rootPageID, btree.Options{
		Comparator:         cmp,
		AllowDuplicateKeys: desc.flags&dbFlagDuplicates != 0,
		MaxKeySize:         int(desc.keySize),
		Metrics:            e.metrics,
	})

	var txns *txn.Manager
	if e.flags.EnableTransactions {
		txns = txn.NewManager(cmp, tree, e.metrics, e.logger)
	}

	dbFlags := DBFlags{
		EnableDuplicateKeys: desc.flags&dbFlagDuplicates != 0,
		RecordNumber32:      desc.flags&dbFlagRecNum32 != 0,
		RecordNumber64:      desc.flags&dbFlagRecNum64 != 0,
	}
	db := &Database{env: e, name: name, slot: slot, tree: tree, txns: txns, cmp: cmp, flags: dbFlags}
	e.dbs[name] = db
	return db, nil
}

// RenameDatabase changes a database's name in the descriptor table
// without touching its B+tree (spec.md §6 env_rename_db).
func (e *Environment) RenameDatabase(oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newName, err := sanitizedName(newName)
	if err != nil {
		return err
	}
	slot := e.hdr.findSlot(oldName)
	if slot == -1 {
		return fmt.Errorf("%w: database %q", common.ErrKeyNotFound, oldName)
	}
	if e.hdr.findSlot(newName) != -1 {
		return fmt.Errorf("%w: database %q already exists", common.ErrDuplicateKey, newName)
	}

	e.hdr.descriptors[slot].name = newName
	if err := e.persistHeader(); err != nil {
		return err
	}
	if db, ok := e.dbs[oldName]; ok {
		db.name = newName
		delete(e.dbs, oldName)
		e.dbs[newName] = db
	}
	return nil
}

// EraseDatabase removes every key from name's B+tree and frees its
// descriptor slot (spec.md §6 env_erase_db). Keys are fully
// materialized before any Erase call, since erasing while the
// iterator backing the scan is still positioned mid-leaf would
// invalidate its cursor state once a merge collapses that leaf.
func (e *Environment) EraseDatabase(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.hdr.findSlot(name)
	if slot == -1 {
		return fmt.Errorf("%w: database %q", common.ErrKeyNotFound, name)
	}

	db, ok := e.dbs[name]
	if !ok {
		desc := e.hdr.descriptors[slot]
		cmp := comparatorFor(desc.keyType)
		tree := btree.Open(e.mgr, e.blobs, e.free, desc.rootPageID, btree.Options{
			Comparator:         cmp,
			AllowDuplicateKeys: desc.flags&dbFlagDuplicates != 0,
			MaxKeySize:         int(desc.keySize),
			Metrics:            e.metrics,
		})
		db = &Database{env: e, name: name, slot: slot, tree: tree}
	}

	it, err := db.tree.NewIterator()
	if err != nil {
		return err
	}
	var keys [][]byte
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		keys = append(keys, k)
	}
	if err := it.Error(); err != nil {
		it.Close()
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}

	for _, k := range keys {
		if err := db.tree.Erase(k, btree.NoDuplicateIndex); err != nil {
			return err
		}
	}

	e.mgr.FreePage(db.tree.RootID())
	e.hdr.descriptors[slot] = descriptorSlot{}
	if err := e.persistHeader(); err != nil {
		return err
	}
	delete(e.dbs, name)
	return nil
}
