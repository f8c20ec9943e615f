package device

import (
	"fmt"
	"os"

	"github.com/embeddkv/embeddkv/common"
)

// FileDevice backs a Device with a single OS file, mirroring the
// teacher's Pager.file usage (os.OpenFile / ReadAt / WriteAt / Sync).
type FileDevice struct {
	file *os.File
	size int64
}

// OpenFile opens (or creates, if readOnly is false and the file is
// absent) a file-backed device.
func OpenFile(path string, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	} else {
		flag |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, path)
		}
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileDevice{file: f, size: stat.Size()}, nil
}

func (d *FileDevice) ReadAt(offset int64, buf []byte) error {
	n, err := d.file.ReadAt(buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short read at offset %d: got %d want %d", offset, n, len(buf))
	}
	return nil
}

func (d *FileDevice) WriteAt(offset int64, buf []byte) error {
	n, err := d.file.WriteAt(buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write at offset %d: wrote %d want %d", offset, n, len(buf))
	}
	if end := offset + int64(n); end > d.size {
		d.size = end
	}
	return nil
}

func (d *FileDevice) AllocPage(pageSize int) (int64, error) {
	offset := d.size
	buf := make([]byte, pageSize)
	if err := d.WriteAt(offset, buf); err != nil {
		return 0, err
	}
	return offset, nil
}

func (d *FileDevice) Truncate(newSize int64) error {
	if err := d.file.Truncate(newSize); err != nil {
		return err
	}
	d.size = newSize
	return nil
}

func (d *FileDevice) Size() (int64, error) {
	return d.size, nil
}

func (d *FileDevice) Flush() error {
	return d.file.Sync()
}

func (d *FileDevice) Close() error {
	return d.file.Close()
}

// File exposes the underlying *os.File for the exclusive advisory lock
// taken by engine.Environment at open (spec.md §5/§9).
func (d *FileDevice) File() *os.File { return d.file }
