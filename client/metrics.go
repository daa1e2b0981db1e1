package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabletstore",
		Subsystem: "client",
		Name:      "flushes_total",
		Help:      "Number of completed batch flushes.",
	})
	metricFlushedMutations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabletstore",
		Subsystem: "client",
		Name:      "flushed_mutations_total",
		Help:      "Number of mutations sent in batch flushes.",
	})
	metricRowErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabletstore",
		Subsystem: "client",
		Name:      "row_errors_total",
		Help:      "Number of per-row errors reported into error collectors.",
	})
	metricScanBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabletstore",
		Subsystem: "client",
		Name:      "scan_batches_total",
		Help:      "Number of scan result batches fetched.",
	})
	metricLocationLookups = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabletstore",
		Subsystem: "client",
		Name:      "location_lookups_total",
		Help:      "Number of tablet location lookups.",
	})
	metricLocationMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabletstore",
		Subsystem: "client",
		Name:      "location_misses_total",
		Help:      "Number of tablet location lookups that went to the master.",
	})
)

func init() {
	prometheus.MustRegister(
		metricFlushes,
		metricFlushedMutations,
		metricRowErrors,
		metricScanBatches,
		metricLocationLookups,
		metricLocationMisses,
	)
}
