package pager

// BudgetStats reports the cache's current byte usage against its
// configured ceiling, adapted from the teacher's ResourceLimiter
// (common/testutil/limiter.go) into a live pager diagnostic rather than
// a test-only guard.
type BudgetStats struct {
	BudgetBytes int64
	UsedBytes   int64
	CachedPages int
}

// Budget reports the cache's current usage.
func (m *Manager) Budget() BudgetStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return BudgetStats{
		BudgetBytes: m.cacheBudgetBytes,
		UsedBytes:   m.cacheUsedBytes,
		CachedPages: len(m.cache),
	}
}

// OverBudget reports whether the cache currently exceeds its
// configured byte ceiling (a zero ceiling means unbounded).
func (b BudgetStats) OverBudget() bool {
	return b.BudgetBytes > 0 && b.UsedBytes > b.BudgetBytes
}
