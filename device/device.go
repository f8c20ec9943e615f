// Package device is the raw byte-addressable backend beneath the page
// manager: a file on disk, or an in-memory arena for "in-memory"
// environments (spec.md §4.1).
package device

// Device is the contract every page fetch/write ultimately goes through.
// Every read/write is a single, uninterrupted call at a page-aligned
// offset; the page manager never partially reads or writes a page.
type Device interface {
	// ReadAt reads len(buf) bytes starting at offset.
	ReadAt(offset int64, buf []byte) error

	// WriteAt writes buf at offset.
	WriteAt(offset int64, buf []byte) error

	// AllocPage extends the device by one page of the given size and
	// returns the byte offset of the new page.
	AllocPage(pageSize int) (int64, error)

	// Truncate shrinks (or, in principle, grows) the device to newSize
	// bytes. Used by pager.Manager.ReclaimSpace to return trailing free
	// pages to the filesystem.
	Truncate(newSize int64) error

	// Size returns the current device size in bytes.
	Size() (int64, error)

	// Flush durably persists all writes made so far (fsync for files,
	// a no-op for the in-memory arena).
	Flush() error

	// Close releases the underlying resource.
	Close() error
}
