package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
)

// headerMagic tags the environment header page, page 0 of the data
// file (spec.md §6 "Page 0: environment header... magic (\"HAM\\0\" or
// similar 4-byte tag)").
var headerMagic = [4]byte{'E', 'K', 'V', 'H'}

const headerFormatVersion = 1

// fixedHeaderSize: magic(4) + version(4) + pageSize(4) + maxDatabases(4)
// + freelistHead(8) + descriptorCount(4), ahead of the descriptor table
// (spec.md §6 File layout).
const fixedHeaderSize = 28

// descriptorSlotSize: name(32) + keyType(1) + flags(1) + compression(1)
// + inUse(1) + keySize(4) + recSize(4) + rootPageID(8) +
// nextRecordNumber(8) (spec.md §6 "Descriptor table... (dbname,
// key_type, key_size, rec_size, flags, root_pageid, compression_byte)";
// §3 "stored in the database's descriptor as the most recently
// assigned value").
const descriptorSlotSize = 60

// descriptorTableOffset places the descriptor table right after the
// fixed header fields.
const descriptorTableOffset = fixedHeaderSize

// Descriptor flag bits packed into descriptorSlot.flags.
const (
	dbFlagDuplicates uint8 = 1 << iota
	dbFlagRecNum32
	dbFlagRecNum64
)

type descriptorSlot struct {
	name        string
	keyType     common.KeyType
	flags       uint8
	compression uint8
	inUse       bool
	keySize     uint32
	recSize     uint32
	rootPageID  page.ID

	// nextRecordNumber is the most recently assigned record-number key
	// for RecordNumber32/RecordNumber64 databases (spec.md §3, §8
	// "record-number monotonicity"); zero means none has been assigned
	// yet. Unused by non-record-number databases.
	nextRecordNumber uint64
}

// header is the decoded form of page 0.
type header struct {
	pageSize     uint32
	maxDatabases uint32
	freelistHead page.ID
	descriptors  []descriptorSlot
}

func newHeader(params Params) *header {
	return &header{
		pageSize:     uint32(params.PageSize),
		maxDatabases: uint32(params.MaxDatabases),
		freelistHead: page.InvalidID,
		descriptors:  make([]descriptorSlot, params.MaxDatabases),
	}
}

func (h *header) encode() []byte {
	buf := make([]byte, int(h.pageSize))
	copy(buf[:4], headerMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], headerFormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], h.pageSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.maxDatabases)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.freelistHead))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(h.descriptors)))

	for i, d := range h.descriptors {
		off := descriptorTableOffset + i*descriptorSlotSize
		slot := buf[off : off+descriptorSlotSize]
		copy(slot[0:32], d.name)
		slot[32] = byte(d.keyType)
		slot[33] = d.flags
		slot[34] = d.compression
		if d.inUse {
			slot[35] = 1
		}
		binary.LittleEndian.PutUint32(slot[36:40], d.keySize)
		binary.LittleEndian.PutUint32(slot[40:44], d.recSize)
		binary.LittleEndian.PutUint64(slot[44:52], uint64(d.rootPageID))
		binary.LittleEndian.PutUint64(slot[52:60], d.nextRecordNumber)
	}
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < fixedHeaderSize {
		return nil, fmt.Errorf("%w: header page too small", common.ErrInternal)
	}
	if [4]byte(buf[:4]) != headerMagic {
		return nil, fmt.Errorf("%w: bad environment header magic", common.ErrInternal)
	}

	h := &header{
		pageSize:     binary.LittleEndian.Uint32(buf[8:12]),
		maxDatabases: binary.LittleEndian.Uint32(buf[12:16]),
		freelistHead: page.ID(binary.LittleEndian.Uint64(buf[16:24])),
	}
	count := binary.LittleEndian.Uint32(buf[24:28])
	h.descriptors = make([]descriptorSlot, count)
	for i := range h.descriptors {
		off := descriptorTableOffset + i*descriptorSlotSize
		slot := buf[off : off+descriptorSlotSize]
		name := string(slot[0:32])
		for j, c := range name {
			if c == 0 {
				name = name[:j]
				break
			}
		}
		h.descriptors[i] = descriptorSlot{
			name:             name,
			keyType:          common.KeyType(slot[32]),
			flags:            slot[33],
			compression:      slot[34],
			inUse:            slot[35] != 0,
			keySize:          binary.LittleEndian.Uint32(slot[36:40]),
			recSize:          binary.LittleEndian.Uint32(slot[40:44]),
			rootPageID:       page.ID(binary.LittleEndian.Uint64(slot[44:52])),
			nextRecordNumber: binary.LittleEndian.Uint64(slot[52:60]),
		}
	}
	return h, nil
}

// findSlot returns the index of name's descriptor slot, or -1.
func (h *header) findSlot(name string) int {
	for i, d := range h.descriptors {
		if d.inUse && d.name == name {
			return i
		}
	}
	return -1
}

// allocSlot returns the first unused slot index, or -1 if the
// descriptor table is full (spec.md §6 Parameters "max-databases").
func (h *header) allocSlot() int {
	for i, d := range h.descriptors {
		if !d.inUse {
			return i
		}
	}
	return -1
}
