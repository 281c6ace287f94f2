// Package metrics defines the Prometheus collectors of readercore.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "readercore"

var (
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "books_total",
			Help:      "Total number of book imports",
		},
		[]string{"format", "status"},
	)

	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Book import duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"format"},
	)

	ChaptersDetected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "chapters",
			Help:      "Number of chapters per imported book",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"format"},
	)

	BlocksExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "blocks_total",
			Help:      "Total number of content blocks extracted",
		},
		[]string{"format"},
	)

	PagesLaidOut = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "pages",
			Help:      "Number of pages per paginated chapter",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	LengthsRefined = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "length",
			Name:      "chapters_refined_total",
			Help:      "Total number of chapters that received an exact character count",
		},
	)
)

// ObserveImport records one finished import.
func ObserveImport(format string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if format == "" {
		format = "unknown"
	}
	ImportsTotal.WithLabelValues(format, status).Inc()
	ImportDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
}
