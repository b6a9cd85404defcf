package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()
	require.NotNil(t, m)
	require.NotNil(t, m.Registry())
}

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordTransition("ghost")
	m.RecordTransition("ghost")
	m.RecordSubmission(TransportLocal, "ok")
	m.SetQueueDepth(3)
	m.ObserveAPIRequest(http.MethodPost, 201, 20*time.Millisecond)
	m.RecordStorageError("session", "write")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("ghost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues(TransportLocal, "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LocalQueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrorsTotal.WithLabelValues("session", "write")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransition("ghost")
		m.RecordSubmission(TransportRemote, "error")
		m.SetQueueDepth(1)
		m.ObserveAPIRequest(http.MethodGet, 0, time.Second)
		m.RecordStorageError("submit", "read")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordTransition("authenticated")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "synapse_session_transitions_total"))
}
