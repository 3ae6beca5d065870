package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(libraryImportsTotal, libraryImportSeconds) }

var (
	libraryImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_imports_total",
			Help: "Library imports processed, labelled by service and status.",
		},
		[]string{"service", "result"}, // result: ok | failed
	)

	libraryImportSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_import_seconds",
			Help:    "Wall time of one library import.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)
)

func IncLibraryImport(service, result string) {
	libraryImportsTotal.WithLabelValues(norm(service), norm(result)).Inc()
}

func ObserveLibraryImport(service string, d time.Duration) {
	libraryImportSeconds.WithLabelValues(norm(service)).Observe(d.Seconds())
}
