package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameIn("message")
	m.OutboxDepth(3)
	m.Connected(true)
}

func TestCounters(t *testing.T) {
	m := New()
	m.FrameIn("message")
	m.FrameIn("message")
	m.FrameOut("typing")
	m.FrameDropped("typing")
	m.OutboxDepth(4)
	m.Connected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesIn.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("typing")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.outboxDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connection))
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.Reconnect()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatsync_reconnects_total 1")
}
