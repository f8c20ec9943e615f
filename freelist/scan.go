package freelist

import "math/bits"

// simpleScanThreshold mirrors the original engine's SIMPLE_SCAN_THRESHOLD:
// below this run size, a byte-at-a-time scan is cheap enough that the
// qword fast path isn't worth its setup cost (original_source/src/freelist.cc).
const simpleScanThreshold = 16

// qwordScanThreshold is where the scan switches to scanning whole
// 64-bit words for "all free" rather than bytes.
const qwordScanThreshold = 128

// findFreeRun locates the first run of n consecutive free bits (1 =
// free) in bitmap, starting the search at hint.lastOffset+hint.lastLen
// to avoid re-scanning a prefix already known to be exhausted (spec.md
// §4.3 Statistics). It picks one of three scan regimes by run size,
// each a Boyer-Moore-style skip: on hitting a used bit/byte/word, jump
// past it instead of advancing one bit at a time.
func findFreeRun(bitmap []byte, h hint, n int) (int, bool) {
	totalBits := len(bitmap) * 8
	start := h.lastOffset + h.lastLen
	if start < 0 || start >= totalBits {
		start = 0
	}

	switch {
	case n >= qwordScanThreshold:
		if bit, ok := scanQwords(bitmap, start, n); ok {
			return bit, true
		}
	case n >= simpleScanThreshold:
		if bit, ok := scanBytes(bitmap, start, n); ok {
			return bit, true
		}
	default:
		if bit, ok := scanBits(bitmap, start, n); ok {
			return bit, true
		}
	}

	// Wrap around once: the hint may have skipped free space before it.
	if start > 0 {
		switch {
		case n >= qwordScanThreshold:
			return scanQwords(bitmap, 0, n)
		case n >= simpleScanThreshold:
			return scanBytes(bitmap, 0, n)
		default:
			return scanBits(bitmap, 0, n)
		}
	}
	return 0, false
}

// scanBits is the bit-by-bit regime: correct for any n, used below the
// simple-scan threshold where setup cost for the faster regimes isn't
// worth it.
func scanBits(bitmap []byte, start, n int) (int, bool) {
	totalBits := len(bitmap) * 8
	run := 0
	runStart := 0
	for i := start; i < totalBits; i++ {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			if run == 0 {
				runStart = i
			}
			run++
			if run == n {
				return runStart, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

// scanBytes skips whole used bytes (0x00) at a time, only falling to
// bit-level precision when a byte is partially free, per the original's
// byte-regime Boyer-Moore skip.
func scanBytes(bitmap []byte, start, n int) (int, bool) {
	totalBits := len(bitmap) * 8
	run := 0
	runStart := 0
	i := start
	for i < totalBits {
		byteIdx := i / 8
		if i%8 == 0 && byteIdx < len(bitmap) {
			b := bitmap[byteIdx]
			if b == 0x00 {
				// Entire byte used: skip it and reset the run.
				run = 0
				i += 8
				continue
			}
			if b == 0xFF {
				// Entire byte free: count it as eight in one step.
				if run == 0 {
					runStart = i
				}
				run += 8
				i += 8
				if run >= n {
					return runStart, true
				}
				continue
			}
		}
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			if run == 0 {
				runStart = i
			}
			run++
			if run == n {
				return runStart, true
			}
		} else {
			run = 0
		}
		i++
	}
	return 0, false
}

// scanQwords skips whole used 64-bit words at a time for large runs,
// the original's qword regime for requests at or above the qword
// threshold; where no whole aligned word remains (an unaligned start
// or the bitmap's tail) it scans bit by bit.
func scanQwords(bitmap []byte, start, n int) (int, bool) {
	totalBits := len(bitmap) * 8
	run := 0
	runStart := 0
	i := start

	for i < totalBits {
		if i%64 == 0 && i+64 <= totalBits {
			word := loadWord(bitmap, i/8)
			if word == 0 {
				run = 0
				i += 64
				continue
			}
			if word == ^uint64(0) {
				if run == 0 {
					runStart = i
				}
				run += 64
				i += 64
				if run >= n {
					return runStart, true
				}
				continue
			}
			// Partial word: its free prefix extends the run in progress
			// and its free suffix starts a new one, both found with
			// trailing/leading zero counts rather than a byte-by-byte
			// pass. Free bits between two used bits of the word are not
			// counted.
			lead := bits.TrailingZeros64(^word)
			if lead > 0 {
				if run == 0 {
					runStart = i
				}
				run += lead
				if run >= n {
					return runStart, true
				}
			}
			run = bits.LeadingZeros64(^word)
			runStart = i + 64 - run
			if run > 0 && run >= n {
				return runStart, true
			}
			i += 64
			continue
		}
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			if run == 0 {
				runStart = i
			}
			run++
			if run == n {
				return runStart, true
			}
		} else {
			run = 0
		}
		i++
	}
	return 0, false
}

func loadWord(bitmap []byte, byteOffset int) uint64 {
	var w uint64
	for b := 0; b < 8; b++ {
		w |= uint64(bitmap[byteOffset+b]) << uint(b*8)
	}
	return w
}
