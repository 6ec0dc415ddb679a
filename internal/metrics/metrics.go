package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the portal's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	OrdersCreated       prometheus.Counter
	OrderAmount         prometheus.Counter
	PaymentsVerified    *prometheus.CounterVec
	CheckIns            *prometheus.CounterVec
	RateLimitDenied     *prometheus.CounterVec
	RateLimitStoreError *prometheus.CounterVec
	PassFailures        prometheus.Counter
	JobsProcessed       *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "festpass_orders_created_total",
			Help: "Pending registrations created with a gateway order",
		}),
		OrderAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "festpass_order_amount_paise_total",
			Help: "Sum of authoritative order totals in minor units",
		}),
		PaymentsVerified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "festpass_payment_verifications_total",
			Help: "Payment callbacks by outcome",
		}, []string{"outcome"}),
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "festpass_check_ins_total",
			Help: "Check-in attempts by outcome",
		}, []string{"outcome"}),
		RateLimitDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "festpass_rate_limit_denied_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"endpoint"}),
		RateLimitStoreError: f.NewCounterVec(prometheus.CounterOpts{
			Name: "festpass_rate_limit_store_errors_total",
			Help: "Rate limiter backend failures by applied policy",
		}, []string{"policy"}),
		PassFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "festpass_pass_generation_failures_total",
			Help: "Entry pass encodings or writes that failed",
		}),
		JobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "festpass_jobs_processed_total",
			Help: "Background jobs by kind and result",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) OrderCreated(amount int64) {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
	m.OrderAmount.Add(float64(amount))
}

func (m *Metrics) PaymentVerification(outcome string) {
	if m == nil {
		return
	}
	m.PaymentsVerified.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CheckIn(outcome string) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitDenied.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RateLimitBackendError(policy string) {
	if m == nil {
		return
	}
	m.RateLimitStoreError.WithLabelValues(policy).Inc()
}

func (m *Metrics) PassFailed() {
	if m == nil {
		return
	}
	m.PassFailures.Inc()
}

func (m *Metrics) Job(kind, result string) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(kind, result).Inc()
}
