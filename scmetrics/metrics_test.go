package scmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	require.NotNil(t, m.SessionsActive)
	require.NotNil(t, m.BreakerState)
	require.NotNil(t, m.AuthCacheHitsTotal)

	// Should not panic.
	m.SessionsActive.Set(3)
	m.SessionsCreatedTotal.Inc()
	m.RecordSessionClosed(1.5)
	m.RecordBreakerTransition("auth_service", "closed", "open")
	m.RecordBreakerCall("auth_service", "rejected_open")
	m.AuthCacheHitsTotal.Inc()
}

func TestRecordBreakerStateEncodesStateAsNumber(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordBreakerState("auth_service", "open")

	metric := &dto.Metric{}
	gauge, err := m.BreakerState.GetMetricWithLabelValues("auth_service")
	require.NoError(t, err)
	require.NoError(t, gauge.Write(metric))
	require.Equal(t, float64(1), metric.GetGauge().GetValue())
}
