// Package telemetry exposes the service's Prometheus metrics. All
// functions are additive and cheap enough for hot paths; nothing here
// sits on the critical path of a query's response.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "typeahead_queries_total",
		Help: "Total suggestion queries handled",
	})
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "typeahead_cache_hits_total",
		Help: "Suggestion-cache hits",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "typeahead_cache_misses_total",
		Help: "Suggestion-cache misses (including cache bypass on outage)",
	})
	ingestOverflow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "typeahead_ingest_overflow_total",
		Help: "Events dropped by the ingestion buffer since process start",
	})
	flushFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "typeahead_flush_failures_total",
		Help: "Flush persistence attempts that failed",
	})
	deadLetteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "typeahead_dead_lettered_events_total",
		Help: "Ingestion events dropped after exhausting flush retries",
	})
	rebuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "typeahead_rebuild_duration_seconds",
		Help:    "Duration of full index rebuilds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	queryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "typeahead_query_latency_seconds",
		Help:    "Suggestion query latency",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})
	flushBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "typeahead_flush_batch_size",
		Help:    "Distribution of events per flush batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
	topKDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "typeahead_topk_recompute_depth",
		Help:    "Number of trie nodes whose top-K changed per index write",
		Buckets: []float64{1, 2, 4, 8, 16, 24, 32, 48, 64, 80},
	})
)

func init() {
	// Register eagerly; harmless if no /metrics endpoint is exposed.
	prometheus.MustRegister(
		queriesTotal, cacheHitsTotal, cacheMissesTotal, ingestOverflow,
		flushFailuresTotal, deadLetteredTotal, rebuildDuration,
		queryLatency, flushBatchSize, topKDepth,
	)
}

func IncQuery()                    { queriesTotal.Inc() }
func IncCacheHit()                 { cacheHitsTotal.Inc() }
func IncCacheMiss()                { cacheMissesTotal.Inc() }
func SetIngestOverflow(n int64)    { ingestOverflow.Set(float64(n)) }
func IncFlushFailure()             { flushFailuresTotal.Inc() }
func AddDeadLettered(n int) {
	if n > 0 {
		deadLetteredTotal.Add(float64(n))
	}
}
func ObserveRebuildDuration(d time.Duration) { rebuildDuration.Observe(d.Seconds()) }
func ObserveQueryLatency(d time.Duration)    { queryLatency.Observe(d.Seconds()) }
func ObserveFlushBatch(size int) {
	if size > 0 {
		flushBatchSize.Observe(float64(size))
	}
}
func ObserveTopKDepth(depth int) {
	if depth > 0 {
		topKDepth.Observe(float64(depth))
	}
}

// StartMetricsEndpoint serves /metrics on addr in a background
// goroutine. Best-effort; callers that already expose Prometheus can
// skip this and mount promhttp themselves.
func StartMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
