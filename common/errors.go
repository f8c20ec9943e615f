// Package common holds the error taxonomy and shared types used across
// every embeddkv package: page, pager, freelist, blob, duptable, btree,
// txn, wal, cursor and engine.
package common

import "errors"

// Error categories follow spec.md §7: validation, logical, concurrency,
// durability, resource and internal-invariant errors. Callers compare
// with errors.Is; internal code wraps these with fmt.Errorf("...: %w").
var (
	// Validation errors — fail the call without touching state.
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidKeySize   = errors.New("invalid key size")

	// Logical errors — normal parts of the API surface.
	ErrKeyNotFound  = errors.New("key not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrCursorIsNil  = errors.New("cursor is nil")
	ErrKeyTooBig    = errors.New("key exceeds maximum inline size")

	// Concurrency errors — caller must retry after changing its plan.
	ErrTxnConflict     = errors.New("transaction conflict")
	ErrCursorStillOpen = errors.New("cursor still open")
	ErrWouldBlock      = errors.New("would block")

	// Durability errors — engine refuses to open until repaired.
	ErrNeedRecovery     = errors.New("database needs recovery")
	ErrLogInvalidHeader = errors.New("log file has an invalid header")

	// Resource errors — propagate; environment is marked unhealthy.
	ErrIO           = errors.New("i/o error")
	ErrFileNotFound = errors.New("file not found")
	ErrOutOfMemory  = errors.New("out of memory")

	// Invariant violations.
	ErrInternal = errors.New("internal error")

	// Engine-level limits.
	ErrLimitsReached = errors.New("limits reached")

	// Generic lifecycle errors, kept from the teacher's vocabulary.
	ErrClosed   = errors.New("storage engine closed")
	ErrKeyEmpty = errors.New("key cannot be empty")
	ErrDiskFull = errors.New("disk full")
)
