package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	Register(r)
	assert.Equal(t, prometheus.Registerer(r), GetRegisterer())

	DeliveriesTotal.WithLabelValues(KindBroadcast, ResultSuccess).Inc()
	EvictionsTotal.Inc()
	Participants.Set(3)
	LoggingRatedDropped.WithLabelValues("warn").Inc()

	families, err := r.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	var participants float64
	for _, f := range families {
		names[f.GetName()] = true
		if f.GetName() == "danmu_chat_participants" {
			participants = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.True(t, names["danmu_chat_deliveries_total"])
	assert.True(t, names["danmu_chat_evictions_total"])
	assert.True(t, names["danmu_chat_participants"])
	assert.True(t, names["danmu_chat_logging_rated_dropped_total"])
	assert.Equal(t, float64(3), participants)
}
