package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsScrape(t *testing.T) {
	p, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)

	p.DispatchStarted("ping")
	p.DispatchFinished("ping", "ok", 5*time.Millisecond)
	p.DispatchFinished("tools/call", "cancelled", 40*time.Millisecond)
	p.CancellationRequested(true)
	p.NotificationDelivered("notifications/progress")
	p.NotificationDropped("notifications/message", "no_stream")
	p.StreamOpened()

	require.NoError(t, p.RegisterSessionCount(func() int { return 3 }))
	require.NoError(t, p.RegisterInFlight(func() int { return 2 }))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `agentwire_dispatch_total{method="ping",outcome="ok"} 1`)
	assert.Contains(t, body, `agentwire_cancellation_total{honored="true"} 1`)
	assert.Contains(t, body, `agentwire_notifications_delivered_total{method="notifications/progress"} 1`)
	assert.Contains(t, body, `agentwire_notifications_dropped_total{method="notifications/message",reason="no_stream"} 1`)
	assert.Contains(t, body, "agentwire_active_streams 1")
	assert.Contains(t, body, "agentwire_active_sessions 3")
	assert.Contains(t, body, "agentwire_requests_in_flight 2")
}

func TestMetricsProvidersAreIsolated(t *testing.T) {
	first, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)
	second, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)

	// Each provider owns its registry, so gauge registration never
	// collides across providers.
	require.NoError(t, first.RegisterSessionCount(func() int { return 1 }))
	require.NoError(t, second.RegisterSessionCount(func() int { return 1 }))
}

func TestNoopTracingProvider(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{
		ServiceName:  "test",
		ExporterType: ExporterTypeNoop,
	})
	require.NoError(t, err)

	ctx, span := tp.StartDispatchSpan(context.Background(), "ping", "session-1")
	tp.AddEvent(ctx, "dispatching")
	tp.RecordError(ctx, fmt.Errorf("boom"))
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestTracingRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "zipkin"})
	require.Error(t, err)
}

func TestHTTPMiddleware(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{ExporterType: ExporterTypeNoop})
	require.NoError(t, err)

	var sawFlusher bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawFlusher = w.(http.Flusher)
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	NewHTTPMiddleware(tp).Wrap(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	// Flush must keep working through the wrapper or SSE streams stall.
	assert.True(t, sawFlusher)
}

func TestNilTracerMiddlewareIsPassThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	NewHTTPMiddleware(nil).Wrap(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	assert.True(t, called)
}
