package monitoring

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.SessionStarted("interactive")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SessionsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SessionsActive))
}

func TestSessionLifecycleCounters(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted("headless")
	m.SessionStarted("headless")
	m.SessionEnded("headless", "exited", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted.WithLabelValues("headless")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("headless", "exited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
}

func TestSuppressedIgnoresZero(t *testing.T) {
	m := NewMetrics()
	m.Suppressed("blank", 0)
	m.Suppressed("blank", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesSuppressed.WithLabelValues("blank")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted("interactive")
		m.Dropped("timeout")
		m.WSMessage("in", "input")
		m.TeardownStepFailed("kill")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.Dropped("schedule_timeout")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentio_records_dropped_total{reason="schedule_timeout"} 1`)
	assert.Contains(t, string(body), "agentio_uptime_seconds")
}
