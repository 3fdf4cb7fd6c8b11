package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "intelengine"

// Metrics holds all intelligence-engine metric instruments.
type Metrics struct {
	// QueriesTotal counts every query request served by the HTTP gateway,
	// tagged with a "query" attribute.
	QueriesTotal metric.Int64Counter

	// QueriesFallback counts invocations that fell back from the indexed
	// view to the raw event scan.
	QueriesFallback metric.Int64Counter

	// QueryDuration records wall-clock time per gateway query request,
	// tagged with a "query" attribute.
	QueryDuration metric.Float64Histogram

	// NameCacheHits and NameCacheMisses track NameResolver's forward and
	// reverse LRU caches, tagged with a "direction" attribute.
	NameCacheHits   metric.Int64Counter
	NameCacheMisses metric.Int64Counter

	// PageRankCacheHits and PageRankCacheMisses track ReputationComposer's
	// shared PageRank cache.
	PageRankCacheHits   metric.Int64Counter
	PageRankCacheMisses metric.Int64Counter

	// PageRankDuration records how long a full power-iteration
	// recomputation took.
	PageRankDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.QueriesTotal, err = meter.Int64Counter("intelengine.queries.total",
		metric.WithDescription("Number of intelligence queries served"))
	if err != nil {
		return nil, err
	}

	m.QueriesFallback, err = meter.Int64Counter("intelengine.queries.fallback",
		metric.WithDescription("Number of queries that fell back to the raw event scan"))
	if err != nil {
		return nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram("intelengine.query.duration_seconds",
		metric.WithDescription("Query duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.NameCacheHits, err = meter.Int64Counter("intelengine.namecache.hits",
		metric.WithDescription("Name resolver cache hits"))
	if err != nil {
		return nil, err
	}

	m.NameCacheMisses, err = meter.Int64Counter("intelengine.namecache.misses",
		metric.WithDescription("Name resolver cache misses"))
	if err != nil {
		return nil, err
	}

	m.PageRankCacheHits, err = meter.Int64Counter("intelengine.pagerankcache.hits",
		metric.WithDescription("PageRank cache hits"))
	if err != nil {
		return nil, err
	}

	m.PageRankCacheMisses, err = meter.Int64Counter("intelengine.pagerankcache.misses",
		metric.WithDescription("PageRank cache misses"))
	if err != nil {
		return nil, err
	}

	m.PageRankDuration, err = meter.Float64Histogram("intelengine.pagerank.duration_seconds",
		metric.WithDescription("PageRank power-iteration duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
