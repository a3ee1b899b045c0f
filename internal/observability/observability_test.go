package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		logger, err := NewLogger("info", "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
		_ = logger.Sync()
	})

	t.Run("console logger", func(t *testing.T) {
		logger, err := NewLogger("DEBUG", "console")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger("loud", "json")
		assert.Error(t, err)
	})
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics()

	m.ObserveOperation("nats", "auth.login", "ok", 10*time.Millisecond)
	m.ObserveOperation("nats", "auth.login", "invalid_credentials", 5*time.Millisecond)
	m.ObserveOperation("nats", "auth.login", "ok", time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, m.operationsTotal.WithLabelValues("nats", "auth.login", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.operationsTotal.WithLabelValues("nats", "auth.login", "invalid_credentials")))
}

func TestMetrics_Events(t *testing.T) {
	m := NewMetrics()

	m.EventPublished("auth.user.created")
	m.EventDropped("auth.user.created")
	m.EventDropped("auth.user.created")
	m.EventFailed("auth.user.created")

	assert.Equal(t, 1.0, counterValue(t, m.eventsTotal.WithLabelValues("auth.user.created", "published")))
	assert.Equal(t, 2.0, counterValue(t, m.eventsTotal.WithLabelValues("auth.user.created", "dropped")))
	assert.Equal(t, 1.0, counterValue(t, m.eventsTotal.WithLabelValues("auth.user.created", "failed")))
}

func TestMetrics_NATSSaturated(t *testing.T) {
	m := NewMetrics()

	m.NATSSaturated("auth.login")
	m.NATSSaturated("auth.login")

	assert.Equal(t, 2.0, counterValue(t, m.natsSaturated.WithLabelValues("auth.login")))
	assert.Equal(t, 0.0, counterValue(t, m.natsSaturated.WithLabelValues("auth.verify")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("http", "login", "ok", time.Second)
		m.EventDropped("x")
		m.NATSSaturated("x")
	})
}

func TestMetrics_HandlerAndInstrument(t *testing.T) {
	m := NewMetrics()

	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, 1.0, counterValue(t, m.httpRequestsTotal.WithLabelValues("GET", "418")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}
