package metrics_test

import (
	"testing"

	"github.com/goliatone/go-membership/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.Login(true)
	c.Login(false)
	c.Login(false)
	c.AuditAppended(false)
	c.TokenVerified("expired")
	c.Registration("conflict")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Logins.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Logins.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AuditAppends.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TokenVerifications.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Registrations.WithLabelValues("conflict")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *metrics.Collector

	assert.NotPanics(t, func() {
		c.Login(true)
		c.AuditAppended(true)
		c.TokenVerified("ok")
		c.Registration("ok")
		c.ObserveExport("csv", 0)
	})
}
