package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpDurationHistogram    *prometheus.HistogramVec
	holdImbalanceCounter     *prometheus.CounterVec
	idempotencyCounter       *prometheus.CounterVec
	staleProcessingGauge     prometheus.Gauge
	reconciliationCounter    *prometheus.CounterVec
	disbursementCounter      *prometheus.CounterVec
	needsReconciliationCount prometheus.Counter
	feeShortfallCounter      *prometheus.CounterVec
	rateLookupCounter        *prometheus.CounterVec
	workerRunCounter         *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		holdImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_hold_imbalance_total",
			Help: "Number of times held balances diverged from open withdrawal holds",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		staleProcessingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transactions_stale_processing",
			Help: "Processing entries found by the last reconciliation sweep",
		})

		reconciliationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_events_total",
			Help: "Webhook and sweep reconciliation outcomes",
		}, []string{"outcome"})

		disbursementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "disbursement_outcomes_total",
			Help: "Provider disbursement call outcomes",
		}, []string{"outcome"})

		needsReconciliationCount = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transactions_needs_reconciliation_total",
			Help: "Accepted disbursements whose debit could not be applied",
		})

		feeShortfallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversion_fee_shortfall_total",
			Help: "Conversions completed without collecting the fee",
		}, []string{"currency"})

		rateLookupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_lookups_total",
			Help: "Rate lookups by source",
		}, []string{"source"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			holdImbalanceCounter,
			idempotencyCounter,
			staleProcessingGauge,
			reconciliationCounter,
			disbursementCounter,
			needsReconciliationCount,
			feeShortfallCounter,
			rateLookupCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementHoldImbalance(currency string) {
	if holdImbalanceCounter == nil {
		return
	}
	holdImbalanceCounter.WithLabelValues(currency).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetStaleProcessing(size int) {
	if staleProcessingGauge == nil {
		return
	}
	staleProcessingGauge.Set(float64(size))
}

// IncrementReconciliation counts applied, noop, conflict and ignored outcomes.
func IncrementReconciliation(outcome string) {
	if reconciliationCounter == nil {
		return
	}
	reconciliationCounter.WithLabelValues(outcome).Inc()
}

func IncrementDisbursement(outcome string) {
	if disbursementCounter == nil {
		return
	}
	disbursementCounter.WithLabelValues(outcome).Inc()
}

func IncrementNeedsReconciliation() {
	if needsReconciliationCount == nil {
		return
	}
	needsReconciliationCount.Inc()
}

func IncrementFeeShortfall(currency string) {
	if feeShortfallCounter == nil {
		return
	}
	feeShortfallCounter.WithLabelValues(currency).Inc()
}

func IncrementRateLookup(source string) {
	if rateLookupCounter == nil {
		return
	}
	rateLookupCounter.WithLabelValues(source).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
