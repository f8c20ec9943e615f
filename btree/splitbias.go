package btree

// splitBiasTracker detects an append or prepend streak across recent
// inserts so the next split point can be biased toward the side that
// keeps absorbing new keys, rather than always splitting down the
// middle (spec.md §4.5 Insert "Split policy"; SPEC_FULL.md §5, grounded
// in original_source/src/btree.cc's statistics module).
type splitBiasTracker struct {
	lastKind int // -1 prepend, 0 neither, 1 append
	streak   int
}

const streakThreshold = 5

func (s *splitBiasTracker) observe(kind int) {
	if kind == s.lastKind && kind != 0 {
		s.streak++
	} else {
		s.lastKind = kind
		s.streak = 1
	}
}

// bias reports which end of a full leaf to favor when choosing a split
// point: +1 biases toward a larger left half (append streak keeps
// filling the right, so move the split right), -1 the mirror for a
// prepend streak, 0 for the default middle split.
func (s *splitBiasTracker) bias() int {
	if s.streak < streakThreshold {
		return 0
	}
	return s.lastKind
}
