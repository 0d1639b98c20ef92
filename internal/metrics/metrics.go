// Package metrics provides Prometheus metrics for indexing and querying.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of one mdindex process. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	IndexedDatasets prometheus.Counter
	RemovedFiles    prometheus.Counter
	Queries         prometheus.Counter

	// Catalog statement counts by operation and outcome
	CatalogOperations *prometheus.CounterVec

	PrefilterCandidates prometheus.Histogram
	PostfilterMatches   prometheus.Histogram
}

// New creates the metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	sizes := prometheus.ExponentialBuckets(1, 4, 10)

	return &Metrics{
		Registry: reg,
		IndexedDatasets: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdindex_indexed_datasets_total",
			Help: "Total number of dataset entries produced by indexing",
		}),
		RemovedFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdindex_removed_files_total",
			Help: "Total number of files removed from the catalog",
		}),
		Queries: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdindex_queries_total",
			Help: "Total number of catalog queries",
		}),
		CatalogOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdindex_catalog_operations_total",
			Help: "Total number of catalog operations",
		}, []string{"operation", "status"}),
		PrefilterCandidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdindex_prefilter_candidates",
			Help:    "Number of locations selected by the relational prefilter",
			Buckets: sizes,
		}),
		PostfilterMatches: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdindex_postfilter_matches",
			Help:    "Number of datasets left after exact filtering",
			Buckets: sizes,
		}),
	}
}

// AddIndexed counts n dataset entries produced by indexing.
func (m *Metrics) AddIndexed(n int) {
	if m == nil {
		return
	}
	m.IndexedDatasets.Add(float64(n))
}

// FileRemoved counts one removed file.
func (m *Metrics) FileRemoved() {
	if m == nil {
		return
	}
	m.RemovedFiles.Inc()
}

// ObserveQuery records the sizes seen by one two-phase query.
func (m *Metrics) ObserveQuery(candidates, matches int) {
	if m == nil {
		return
	}
	m.Queries.Inc()
	m.PrefilterCandidates.Observe(float64(candidates))
	m.PostfilterMatches.Observe(float64(matches))
}

// CatalogOp records the outcome of a catalog operation.
func (m *Metrics) CatalogOp(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CatalogOperations.WithLabelValues(op, status).Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path,
// for collection by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
