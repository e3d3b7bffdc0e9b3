package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "downtime_"

	resultSuccess = "success"
	resultError   = "error"
	resultEmpty   = "empty"
)

var (
	registerOnce sync.Once

	reportTotal   *prometheus.CounterVec
	reportLatency *prometheus.HistogramVec
	rowsSkipped   *prometheus.CounterVec

	cacheRefreshTotal   *prometheus.CounterVec
	cacheRefreshLatency prometheus.Histogram
	cacheRows           prometheus.Gauge
	cacheLastSuccess    prometheus.Gauge
	activeDowntimes     prometheus.Gauge

	broadcastDeliveries *prometheus.CounterVec
	recordsWritten      *prometheus.CounterVec
	chatUpdates         *prometheus.CounterVec
)

// Init registers metrics and, when db is set, audit-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		reportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reports_total",
				Help: "Total generated reports by kind and result",
			},
			[]string{"kind", "result"},
		)
		reportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_latency_seconds",
				Help:    "Report generation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		rowsSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_skipped_total",
				Help: "Worksheet rows skipped during aggregation by reason",
			},
			[]string{"reason"},
		)

		cacheRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_refresh_total",
				Help: "Total cache refreshes by result",
			},
			[]string{"result"},
		)
		cacheRefreshLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "cache_refresh_latency_seconds",
			Help:    "Cache refresh latency in seconds",
			Buckets: prometheus.DefBuckets,
		})
		cacheRows = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "cache_rows",
			Help: "Data rows held by the downtime cache",
		})
		cacheLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "cache_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cache refresh",
		})
		activeDowntimes = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "active_lines_down",
			Help: "Lines currently marked as down",
		})

		broadcastDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "broadcast_deliveries_total",
				Help: "Scheduled status deliveries by result",
			},
			[]string{"result"},
		)
		recordsWritten = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_written_total",
				Help: "Downtime records appended to the workbook by source",
			},
			[]string{"source"},
		)
		chatUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chat_updates_total",
				Help: "Chat updates handled by kind",
			},
			[]string{"kind"},
		)

		prometheus.MustRegister(
			reportTotal,
			reportLatency,
			rowsSkipped,
			cacheRefreshTotal,
			cacheRefreshLatency,
			cacheRows,
			cacheLastSuccess,
			activeDowntimes,
			broadcastDeliveries,
			recordsWritten,
			chatUpdates,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReport records report latency and outcome.
func ObserveReport(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportTotal != nil {
		reportTotal.WithLabelValues(kind, result).Inc()
	}
	if reportLatency != nil {
		reportLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncRowSkipped counts a row dropped from aggregation.
func IncRowSkipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if rowsSkipped != nil {
		rowsSkipped.WithLabelValues(reason).Inc()
	}
}

// ObserveCacheRefresh records a cache refresh.
func ObserveCacheRefresh(result string, rows int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cacheRefreshTotal != nil {
		cacheRefreshTotal.WithLabelValues(result).Inc()
	}
	if cacheRefreshLatency != nil {
		cacheRefreshLatency.Observe(duration.Seconds())
	}
	if result != resultSuccess {
		return
	}
	if cacheRows != nil {
		cacheRows.Set(float64(rows))
	}
	if cacheLastSuccess != nil {
		cacheLastSuccess.SetToCurrentTime()
	}
}

// SetActiveDowntimes sets the number of lines currently down.
func SetActiveDowntimes(count int) {
	if count < 0 {
		count = 0
	}
	if activeDowntimes != nil {
		activeDowntimes.Set(float64(count))
	}
}

// IncBroadcastDelivery counts one scheduled delivery attempt.
func IncBroadcastDelivery(result string) {
	if result == "" {
		result = resultSuccess
	}
	if broadcastDeliveries != nil {
		broadcastDeliveries.WithLabelValues(result).Inc()
	}
}

// IncRecordWritten counts a record appended to the workbook.
func IncRecordWritten(source string) {
	if source == "" {
		source = "unknown"
	}
	if recordsWritten != nil {
		recordsWritten.WithLabelValues(source).Inc()
	}
}

// IncChatUpdate counts a handled chat update.
func IncChatUpdate(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if chatUpdates != nil {
		chatUpdates.WithLabelValues(kind).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultEmpty   = resultEmpty
)
