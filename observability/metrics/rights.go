package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RightsMetrics tracks the settlement engine's operational counters.
type RightsMetrics struct {
	settlements     *prometheus.CounterVec
	settlementValue *prometheus.CounterVec
	withdrawals     prometheus.Counter
	disbursements   prometheus.Counter
	rpcRequests     *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
}

var (
	rightsOnce     sync.Once
	rightsRegistry *RightsMetrics
)

// Rights returns the process-wide rights metrics, registering the collectors
// on first use.
func Rights() *RightsMetrics {
	rightsOnce.Do(func() {
		rightsRegistry = &RightsMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rights_settlements_total",
				Help: "Count of access grant settlements by outcome.",
			}, []string{"outcome"}),
			settlementValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rights_settlement_value_total",
				Help: "Total settled value by currency.",
			}, []string{"currency"}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rights_withdrawals_total",
				Help: "Count of completed ledger withdrawals.",
			}),
			disbursements: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rights_disbursements_total",
				Help: "Count of completed treasury disbursements.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rights_rpc_requests_total",
				Help: "Count of RPC requests by method and status.",
			}, []string{"method", "status"}),
			rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rights_rpc_duration_seconds",
				Help:    "RPC request latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			rightsRegistry.settlements,
			rightsRegistry.settlementValue,
			rightsRegistry.withdrawals,
			rightsRegistry.disbursements,
			rightsRegistry.rpcRequests,
			rightsRegistry.rpcDuration,
		)
	})
	return rightsRegistry
}

// ObserveSettlement records a grant attempt outcome and, when settled, the
// value moved in the currency.
func (m *RightsMetrics) ObserveSettlement(outcome, currency string, value float64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.settlements.WithLabelValues(outcome).Inc()
	if value > 0 && currency != "" {
		m.settlementValue.WithLabelValues(currency).Add(value)
	}
}

// ObserveWithdrawal records a completed withdrawal.
func (m *RightsMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// ObserveDisbursement records a completed treasury disbursement.
func (m *RightsMetrics) ObserveDisbursement() {
	if m == nil {
		return
	}
	m.disbursements.Inc()
}

// ObserveRPC records an RPC request with its latency.
func (m *RightsMetrics) ObserveRPC(method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
