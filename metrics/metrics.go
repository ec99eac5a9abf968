package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides observability for the membership core. A nil
// *Collector is valid and records nothing.
type Collector struct {
	// Registrations by outcome: "ok", "conflict", "invalid", "error"
	Registrations *prometheus.CounterVec

	// Login attempts by outcome: "success", "failure"
	Logins *prometheus.CounterVec

	// Token verifications by result: "ok", "expired", "signature", "malformed"
	TokenVerifications *prometheus.CounterVec

	// Audit appends by result: "ok", "failed"
	AuditAppends *prometheus.CounterVec

	ExportDuration *prometheus.HistogramVec
}

// New registers all membership metrics with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_registrations_total",
			Help: "Total registration attempts by outcome",
		}, []string{"outcome"}),

		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_logins_total",
			Help: "Total login attempts by outcome",
		}, []string{"outcome"}),

		TokenVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_token_verifications_total",
			Help: "Total session token verifications by result",
		}, []string{"result"}),

		AuditAppends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_audit_appends_total",
			Help: "Total audit appends by result",
		}, []string{"result"}),

		ExportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "membership_audit_export_duration_seconds",
			Help:    "Duration of audit exports by format",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"format"}),
	}
}

// Registration records a registration outcome.
func (c *Collector) Registration(outcome string) {
	if c != nil {
		c.Registrations.WithLabelValues(outcome).Inc()
	}
}

// Login records a login outcome.
func (c *Collector) Login(success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.Logins.WithLabelValues(outcome).Inc()
}

// TokenVerified records a token verification result.
func (c *Collector) TokenVerified(result string) {
	if c != nil {
		c.TokenVerifications.WithLabelValues(result).Inc()
	}
}

// AuditAppended records whether an audit append reached storage.
func (c *Collector) AuditAppended(ok bool) {
	if c == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	c.AuditAppends.WithLabelValues(result).Inc()
}

// ObserveExport records how long an export took.
func (c *Collector) ObserveExport(format string, d time.Duration) {
	if c != nil {
		c.ExportDuration.WithLabelValues(format).Observe(d.Seconds())
	}
}
