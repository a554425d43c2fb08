package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "marketplace_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	paymentTransitions  *prometheus.CounterVec
	paymentDuplicates   *prometheus.CounterVec
	paymentEventPublish *prometheus.CounterVec

	settlementRunTotal   *prometheus.CounterVec
	settlementRunLatency *prometheus.HistogramVec
	settlementItemsTotal *prometheus.CounterVec
	settlementLockBusy   prometheus.Counter

	settlementExportTotal   *prometheus.CounterVec
	settlementExportLatency *prometheus.HistogramVec

	schedulerRetries   prometheus.Counter
	schedulerExhausted prometheus.Counter
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		paymentTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_transitions_total",
				Help: "Total payment status transitions by from, to and result",
			},
			[]string{"from", "to", "result"},
		)
		paymentDuplicates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_duplicate_transitions_total",
				Help: "Total payment transitions absorbed as duplicates by target status",
			},
			[]string{"to"},
		)
		paymentEventPublish = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_event_publish_total",
				Help: "Total payment event publish attempts by result",
			},
			[]string{"result"},
		)

		settlementRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_runs_total",
				Help: "Total settlement runs by result",
			},
			[]string{"result"},
		)
		settlementRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_run_latency_seconds",
				Help:    "Settlement run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_items_total",
				Help: "Total settlement item lines by outcome",
			},
			[]string{"outcome"},
		)
		settlementLockBusy = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_lock_contention_total",
				Help: "Total settlement runs deferred by run lock contention",
			},
		)

		settlementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_export_total",
				Help: "Total settlement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		settlementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_export_latency_seconds",
				Help:    "Settlement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		schedulerRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_scheduler_retries_total",
				Help: "Total scheduler retry attempts",
			},
		)
		schedulerExhausted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_scheduler_exhausted_total",
				Help: "Total scheduler runs that exhausted all retries",
			},
		)

		prometheus.MustRegister(
			paymentTransitions,
			paymentDuplicates,
			paymentEventPublish,
			settlementRunTotal,
			settlementRunLatency,
			settlementItemsTotal,
			settlementLockBusy,
			settlementExportTotal,
			settlementExportLatency,
			schedulerRetries,
			schedulerExhausted,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePaymentTransition counts a payment status transition attempt.
func ObservePaymentTransition(from, to, result string) {
	if result == "" {
		result = resultSuccess
	}
	if paymentTransitions != nil {
		paymentTransitions.WithLabelValues(from, to, result).Inc()
	}
}

// IncPaymentDuplicate counts a transition absorbed as a duplicate.
func IncPaymentDuplicate(to string) {
	if to == "" {
		to = "unknown"
	}
	if paymentDuplicates != nil {
		paymentDuplicates.WithLabelValues(to).Inc()
	}
}

// IncPaymentEventPublish counts a payment event publish attempt.
func IncPaymentEventPublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if paymentEventPublish != nil {
		paymentEventPublish.WithLabelValues(result).Inc()
	}
}

// ObserveSettlementRun records settlement run latency and result.
func ObserveSettlementRun(result string, seconds float64) {
	if result == "" {
		result = resultSuccess
	}
	if seconds < 0 {
		seconds = 0
	}
	if settlementRunTotal != nil {
		settlementRunTotal.WithLabelValues(result).Inc()
	}
	if settlementRunLatency != nil {
		settlementRunLatency.WithLabelValues(result).Observe(seconds)
	}
}

// IncSettlementLockContention counts a run deferred by the run lock.
func IncSettlementLockContention() {
	if settlementLockBusy != nil {
		settlementLockBusy.Inc()
	}
}

// AddSettlementItems counts item lines by outcome.
func AddSettlementItems(outcome string, n int) {
	if n <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if settlementItemsTotal != nil {
		settlementItemsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// IncSchedulerRetry counts a scheduler retry attempt.
func IncSchedulerRetry() {
	if schedulerRetries != nil {
		schedulerRetries.Inc()
	}
}

// IncSchedulerExhausted counts a scheduler run that gave up after retries.
func IncSchedulerExhausted() {
	if schedulerExhausted != nil {
		schedulerExhausted.Inc()
	}
}

// ObserveSettlementExport records export latency and result.
func ObserveSettlementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if settlementExportTotal != nil {
		settlementExportTotal.WithLabelValues(format, result).Inc()
	}
	if settlementExportLatency != nil {
		settlementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
