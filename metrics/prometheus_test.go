package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	labels := map[string]string{"network": "sepolia", "status": "confirmed"}
	rec.IncCounter(MintTransitions, labels)
	rec.IncCounter(MintTransitions, labels)
	rec.SetGauge(TotalSupply, 42, labels)
	rec.ObserveLatency(MintLatency, 3*time.Second, labels)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(MintTransitions, "sepolia", "confirmed")))
	assert.Equal(t, 42.0, testutil.ToFloat64(rec.gauges.WithLabelValues(TotalSupply, "sepolia")))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "registering twice on one registry must fail")
}
