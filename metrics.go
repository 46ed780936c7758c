package claimsx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for verification and claims access.
// A nil *Metrics records nothing.
type Metrics struct {
	Verifications *prometheus.CounterVec
	ClaimsOps     *prometheus.CounterVec
	ClaimsLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimsx_token_verifications_total",
				Help: "Total number of token verifications by result and halting stage.",
			},
			[]string{"result", "stage"},
		),
		ClaimsOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimsx_claims_operations_total",
				Help: "Total number of claims repository operations.",
			},
			[]string{"op", "result"},
		),
		ClaimsLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claimsx_claims_operation_seconds",
				Help:    "Latency of claims repository operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Verifications, m.ClaimsOps, m.ClaimsLatency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeVerification(stage Stage, ok bool) {
	if m == nil {
		return
	}
	result := "deny"
	if ok {
		result = "allow"
	}
	m.Verifications.WithLabelValues(result, stage.String()).Inc()
}

func (m *Metrics) observeClaimsOp(op string, code ErrorCode, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if code != "" {
		result = string(code)
	}
	m.ClaimsOps.WithLabelValues(op, result).Inc()
	m.ClaimsLatency.WithLabelValues(op).Observe(d.Seconds())
}
