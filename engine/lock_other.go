//go:build !unix

package engine

import "os"

// flockFile/unflockFile have no portable non-unix implementation in
// this module; environments on other platforms get no cross-process
// exclusion (spec.md §5 "Cross-process safety is provided by an
// exclusive file lock taken on open" — unix-only here, matching the
// pack's own flock usage, which is unix-only too).
func flockFile(f *os.File) error   { return nil }
func unflockFile(f *os.File) error { return nil }
