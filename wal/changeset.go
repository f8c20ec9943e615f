package wal

import "github.com/embeddkv/embeddkv/page"

// Changeset tracks, for the pages logged since the log was last
// truncated, the highest lsn logged for each page id — the bookkeeping
// spec.md §4.7 calls "the set of pages dirtied between two log
// flushes".
type Changeset struct {
	latestLSN map[page.ID]uint64
}

func newChangeset() *Changeset {
	return &Changeset{latestLSN: make(map[page.ID]uint64)}
}

func (c *Changeset) track(id page.ID, lsn uint64) {
	c.latestLSN[id] = lsn
}

// Len reports how many distinct pages have been logged since the last
// truncate.
func (c *Changeset) Len() int { return len(c.latestLSN) }

// Contains reports whether id has a pending logged image.
func (c *Changeset) Contains(id page.ID) bool {
	_, ok := c.latestLSN[id]
	return ok
}
