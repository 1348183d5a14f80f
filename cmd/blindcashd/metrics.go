// metrics.go - Prometheus metrics for the blindcash daemon
package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"blindcash/internal/ecash"
	"blindcash/internal/transactions/fairsign"
)

// Predefined metric names
const (
	MetricCoinsIssued       = "blindcash_coins_issued_total"
	MetricSigningBatches    = "blindcash_signing_batches_total"
	MetricBatchDuration     = "blindcash_signing_batch_duration_seconds"
	MetricSpends            = "blindcash_spends_total"
	MetricDeposits          = "blindcash_deposits_total"
	MetricDepositsThrottled = "blindcash_deposits_throttled_total"
	MetricErrors            = "blindcash_errors_total"
)

// MetricsCollector owns a private registry so tests and the daemon never
// collide on the default one.
type MetricsCollector struct {
	registry *prometheus.Registry

	coinsIssued   prometheus.Counter
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	spends        *prometheus.CounterVec
	deposits      *prometheus.CounterVec
	throttled     prometheus.Counter
	errors        *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &MetricsCollector{
		registry: reg,
		coinsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: MetricCoinsIssued,
			Help: "Coins signed by the authority.",
		}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSigningBatches,
			Help: "Cut-and-choose batches by final state.",
		}, []string{"state"}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricBatchDuration,
			Help:    "Time from batch submission to its final state.",
			Buckets: prometheus.DefBuckets,
		}),
		spends: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSpends,
			Help: "Coin acceptance attempts by merchants.",
		}, []string{"result"}),
		deposits: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDeposits,
			Help: "Deposits by outcome.",
		}, []string{"outcome"}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Name: MetricDepositsThrottled,
			Help: "Deposits refused by the per-merchant rate limiter.",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricErrors,
			Help: "Errors by type.",
		}, []string{"type"}),
	}
}

// BatchFinished implements fairsign.Observer.
func (mc *MetricsCollector) BatchFinished(state fairsign.State, size int, elapsed time.Duration) {
	mc.batches.WithLabelValues(state.String()).Inc()
	mc.batchDuration.Observe(elapsed.Seconds())
}

// RecordCoinIssued counts a coin signed by the authority.
func (mc *MetricsCollector) RecordCoinIssued() {
	mc.coinsIssued.Inc()
}

// RecordSpend counts one merchant's acceptance outcome.
func (mc *MetricsCollector) RecordSpend(err error) {
	if err != nil {
		mc.spends.WithLabelValues("rejected").Inc()
		return
	}
	mc.spends.WithLabelValues("accepted").Inc()
}

// RecordDeposit counts a deposit; a nil verdict means the coin was credited.
func (mc *MetricsCollector) RecordDeposit(v *ecash.Verdict) {
	if v == nil {
		mc.deposits.WithLabelValues("credited").Inc()
		return
	}
	mc.deposits.WithLabelValues(v.Kind.String()).Inc()
}

// RecordThrottled counts a deposit refused by the rate limiter.
func (mc *MetricsCollector) RecordThrottled() {
	mc.throttled.Inc()
}

// RecordError counts one failure under errorType.
func (mc *MetricsCollector) RecordError(errorType string) {
	mc.errors.WithLabelValues(errorType).Inc()
}

// GetMetricsSummary flattens the registry into name{labels} -> value. Histograms
// report their sample count.
func (mc *MetricsCollector) GetMetricsSummary() (map[string]float64, error) {
	families, err := mc.registry.Gather()
	if err != nil {
		return nil, err
	}
	summary := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s", lp.GetName(), lp.GetValue()))
			}
			key := mf.GetName()
			if len(labels) > 0 {
				sort.Strings(labels)
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				summary[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				summary[key] = float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				summary[key] = m.GetGauge().GetValue()
			}
		}
	}
	return summary, nil
}
