package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "tankwatch_"

	// ResultSuccess labels a successful operation.
	ResultSuccess = "success"
	// ResultPartial labels a partially failed ingestion run.
	ResultPartial = "partial"
	// ResultError labels a failed operation.
	ResultError = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestRecords  *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	recalcRuns    *prometheus.CounterVec
	recalcLatency *prometheus.HistogramVec
	recalcAssets  *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingestion runs by result",
			},
			[]string{"result"},
		)
		ingestRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_records_total",
				Help: "Total vendor records by outcome",
			},
			[]string{"outcome"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingestion run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		recalcRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recalc_runs_total",
				Help: "Total consumption recalculation runs by result",
			},
			[]string{"result"},
		)
		recalcLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "recalc_latency_seconds",
				Help:    "Consumption recalculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		recalcAssets = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recalc_assets_total",
				Help: "Total per-asset recalculations by outcome",
			},
			[]string{"outcome"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestRecords,
			ingestLatency,
			recalcRuns,
			recalcLatency,
			recalcAssets,
			alertEventsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records one ingestion run.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestRecord counts one processed vendor record by outcome.
func IncIngestRecord(outcome string) {
	if ingestRecords != nil {
		ingestRecords.WithLabelValues(outcome).Inc()
	}
}

// ObserveRecalc records one recalculation run.
func ObserveRecalc(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if recalcRuns != nil {
		recalcRuns.WithLabelValues(result).Inc()
	}
	if recalcLatency != nil {
		recalcLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRecalcAsset counts one per-asset recalculation by outcome.
func IncRecalcAsset(outcome string) {
	if recalcAssets != nil {
		recalcAssets.WithLabelValues(outcome).Inc()
	}
}

// IncAlertEvent counts one alert lifecycle event.
func IncAlertEvent(event string) {
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}
