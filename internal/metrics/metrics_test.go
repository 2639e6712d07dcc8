package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everest-core/manager/internal/schema"
)

func TestMustRegisterRegistersAllCollectors(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestObserveSchemaRecordsFeedsHistogram(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)

	m.ObserveSchemaRecords([]schema.ValidationRecord{
		{Schema: "config", Duration: 5 * time.Millisecond},
		{Schema: "manifest", Duration: 2 * time.Millisecond},
	})

	metric := &dto.Metric{}
	observer := m.SchemaValidationDuration.WithLabelValues("config")
	histogram, ok := observer.(prometheus.Histogram)
	require.True(t, ok)
	require.NoError(t, histogram.Write(metric))
	assert.EqualValues(t, 1, metric.GetHistogram().GetSampleCount())
}

func TestSetLiveWorkersUpdatesGauge(t *testing.T) {
	m := New()
	m.SetLiveWorkers(3)

	metric := &dto.Metric{}
	require.NoError(t, m.LiveWorkers.Write(metric))
	assert.Equal(t, float64(3), metric.GetGauge().GetValue())
}

func TestIncBootFailureIncrementsCounter(t *testing.T) {
	m := New()
	m.IncBootFailure("load_config")
	m.IncBootFailure("load_config")

	metric := &dto.Metric{}
	require.NoError(t, m.BootFailures.WithLabelValues("load_config").Write(metric))
	assert.Equal(t, float64(2), metric.GetCounter().GetValue())
}
