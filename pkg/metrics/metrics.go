package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level collectors, registered on the default registry and exposed
// by the HTTP server at /metrics.
var (
	BlockCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kipdb_block_cache_hits_total",
		Help: "Block zones served from the sharded LRU cache.",
	})

	BlockCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kipdb_block_cache_misses_total",
		Help: "Block zones read from disk on a cache miss.",
	})

	FlushTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kipdb_memtable_flush_total",
		Help: "Memtables flushed into level-0 tables.",
	})

	CompactionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kipdb_compaction_total",
		Help: "Completed major compactions.",
	})

	TableCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kipdb_sstables",
		Help: "Live tables per level.",
	}, []string{"level"})
)
