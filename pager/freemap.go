package pager

import "github.com/embeddkv/embeddkv/page"

// FreePageMap tracks reclaimed page ids and their run lengths in
// memory only: it is not written to any page, so the runs it holds are
// not reused after the environment is reopened. Runs are keyed by
// starting byte offset and measured in pages of pageStride bytes each,
// so adjacent frees can be recognized and coalesced.
type FreePageMap struct {
	runs       map[page.ID]int // starting offset -> run length in pages
	pageStride page.ID
}

func newFreePageMap() *FreePageMap {
	return &FreePageMap{runs: make(map[page.ID]int)}
}

// bind records the page size once the manager knows it, so offsets and
// run lengths convert to each other consistently.
func (f *FreePageMap) bind(pageStride page.ID) {
	if f.pageStride == 0 {
		f.pageStride = pageStride
	}
}

// Add records a freed run of n consecutive pages starting at id,
// coalescing with any adjacent run already tracked on either side.
func (f *FreePageMap) Add(id page.ID, n int) {
	if f.pageStride != 0 {
		if prevLen, ok := f.findEndingAt(id); ok {
			delete(f.runs, id-page.ID(prevLen)*f.pageStride)
			id -= page.ID(prevLen) * f.pageStride
			n += prevLen
		}
		if nextLen, ok := f.runs[id+page.ID(n)*f.pageStride]; ok {
			delete(f.runs, id+page.ID(n)*f.pageStride)
			n += nextLen
		}
	}
	f.runs[id] = n
}

func (f *FreePageMap) findEndingAt(id page.ID) (int, bool) {
	for start, length := range f.runs {
		if f.pageStride != 0 && start+page.ID(length)*f.pageStride == id {
			return length, true
		}
	}
	return 0, false
}

// Take removes and returns the start of a run of at least n pages,
// preferring the smallest sufficient run (best fit), the way spec.md
// §4.3's allocator hints favor a tight match over a large remainder.
// Any surplus pages are re-added as a shorter run at the tail.
func (f *FreePageMap) Take(n int) (page.ID, bool) {
	bestID := page.InvalidID
	bestLen := 0
	for id, length := range f.runs {
		if length < n {
			continue
		}
		if bestID == page.InvalidID || length < bestLen {
			bestID, bestLen = id, length
		}
	}
	if bestID == page.InvalidID {
		return 0, false
	}

	delete(f.runs, bestID)
	if bestLen > n && f.pageStride != 0 {
		f.runs[bestID+page.ID(n)*f.pageStride] = bestLen - n
	}
	return bestID, true
}

// ReclaimTrailing returns the new end-of-file offset after dropping
// every free run flush against the current tail, walking backward one
// run at a time (spec.md §4.2 reclaim_space).
func (f *FreePageMap) ReclaimTrailing(end page.ID, stride page.ID) page.ID {
	f.bind(stride)
	for {
		length, ok := f.findEndingAt(end)
		if !ok {
			return end
		}
		delete(f.runs, end-page.ID(length)*stride)
		end -= page.ID(length) * stride
	}
}

// Len reports the number of tracked free runs, for diagnostics.
func (f *FreePageMap) Len() int { return len(f.runs) }
