//go:build unix

package engine

import (
	"fmt"
	"os"

	"github.com/embeddkv/embeddkv/common"
	"golang.org/x/sys/unix"
)

// flockFile takes an exclusive, non-blocking advisory lock on f's
// underlying descriptor at open, released automatically at close
// (spec.md §5/§9 "File locking: acquire an exclusive advisory lock at
// open; release at close. Cross-process safety stops there"). A
// second concurrent open on the same file fails with would-block,
// matching spec.md §5's "concurrent opens fail with would-block".
func flockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("%w: environment already open", common.ErrWouldBlock)
		}
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

func unflockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
