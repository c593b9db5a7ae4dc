package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery(ModeMaterialized, OutcomeOK, time.Millisecond)
		m.FileOpened()
		m.RecordEmitted(ModeIncremental)
		m.RecordSkipped(SkipInvalidUTF8)
		m.CacheLookup("hit")
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveQuery(ModeMaterialized, OutcomeOK, 20*time.Millisecond)
	m.ObserveQuery(ModeMaterialized, OutcomeOK, 30*time.Millisecond)
	m.FileOpened()
	m.RecordSkipped(SkipInvalidTimestamp)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues(ModeMaterialized, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesDecoded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues(SkipInvalidTimestamp)))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordEmitted(ModeIncremental)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mdds_records_emitted_total{mode="incremental"} 1`)
}
