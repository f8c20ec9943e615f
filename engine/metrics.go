package engine

import (
	"github.com/embeddkv/embeddkv/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns a copy of the environment's counters. The counters
// are plain int64 fields, not atomics, and belong to this environment
// alone.
func (e *Environment) Metrics() common.Metrics {
	return *e.metrics
}

// gaugeFunc adapts a single counter read into a prometheus.Collector
// without needing a full custom Collector type per metric.
func gaugeFunc(name, help string, read func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "embeddkv",
		Name:      name,
		Help:      help,
	}, read)
}

// PrometheusCollectors exposes the environment's counters as
// prometheus collectors, mirroring how `cuemby/warren` and
// `nainya/treestore` surface internal storage-engine counters via
// client_golang (SPEC_FULL.md §3/§4). Registration is opt-in: the
// caller registers the returned collectors against their own
// *prometheus.Registry; the engine never starts a metrics server.
func (e *Environment) PrometheusCollectors() []prometheus.Collector {
	m := e.metrics
	return []prometheus.Collector{
		gaugeFunc("splits_total", "B+tree node splits", func() float64 { return float64(m.Splits) }),
		gaugeFunc("merges_total", "B+tree node merges", func() float64 { return float64(m.Merges) }),
		gaugeFunc("shifts_total", "B+tree sibling shifts", func() float64 { return float64(m.Shifts) }),
		gaugeFunc("page_faults_total", "pager cache misses", func() float64 { return float64(m.PageFaults) }),
		gaugeFunc("cache_hits_total", "pager cache hits", func() float64 { return float64(m.CacheHits) }),
		gaugeFunc("cache_evictions_total", "pager cache evictions", func() float64 { return float64(m.CacheEvictions) }),
		gaugeFunc("txn_conflicts_total", "transaction conflicts detected", func() float64 { return float64(m.TxnConflicts) }),
		gaugeFunc("txn_commits_total", "transactions committed", func() float64 { return float64(m.TxnCommits) }),
		gaugeFunc("txn_aborts_total", "transactions aborted", func() float64 { return float64(m.TxnAborts) }),
		gaugeFunc("blob_allocs_total", "blob manager allocations", func() float64 { return float64(m.BlobAllocs) }),
		gaugeFunc("wal_flushes_total", "write-ahead log records appended", func() float64 { return float64(m.WALFlushes) }),
		gaugeFunc("recovery_runs_total", "recovery passes performed", func() float64 { return float64(m.RecoveryRuns) }),
	}
}
