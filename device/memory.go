package device

import "fmt"

// MemoryDevice simulates Device against a growable in-memory arena, for
// the "in-memory" environment flag (spec.md §6). Truncate shrinks or
// grows the arena to exactly the requested size.
type MemoryDevice struct {
	arena []byte
}

// NewMemoryDevice returns an empty in-memory device.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{}
}

func (d *MemoryDevice) ReadAt(offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) > int64(len(d.arena)) {
		return fmt.Errorf("read out of bounds: offset %d len %d size %d", offset, len(buf), len(d.arena))
	}
	copy(buf, d.arena[offset:offset+int64(len(buf))])
	return nil
}

func (d *MemoryDevice) WriteAt(offset int64, buf []byte) error {
	end := offset + int64(len(buf))
	if end > int64(len(d.arena)) {
		grown := make([]byte, end)
		copy(grown, d.arena)
		d.arena = grown
	}
	copy(d.arena[offset:end], buf)
	return nil
}

func (d *MemoryDevice) AllocPage(pageSize int) (int64, error) {
	offset := int64(len(d.arena))
	d.arena = append(d.arena, make([]byte, pageSize)...)
	return offset, nil
}

func (d *MemoryDevice) Truncate(newSize int64) error {
	if newSize > int64(len(d.arena)) {
		grown := make([]byte, newSize)
		copy(grown, d.arena)
		d.arena = grown
		return nil
	}
	d.arena = d.arena[:newSize]
	return nil
}

func (d *MemoryDevice) Size() (int64, error) {
	return int64(len(d.arena)), nil
}

func (d *MemoryDevice) Flush() error { return nil }

func (d *MemoryDevice) Close() error { return nil }
