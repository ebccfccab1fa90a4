package observability

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware wraps an http.Handler with request tracing. Inbound trace
// context is honored, so engine spans join the caller's trace when the client
// propagates one.
type HTTPMiddleware struct {
	tracer *TracingProvider
}

// NewHTTPMiddleware creates tracing middleware over the given provider. A nil
// provider yields a pass-through middleware.
func NewHTTPMiddleware(tracer *TracingProvider) *HTTPMiddleware {
	return &HTTPMiddleware{tracer: tracer}
}

// Wrap instruments next with one span per request.
func (m *HTTPMiddleware) Wrap(next http.Handler) http.Handler {
	if m.tracer == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := m.tracer.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := m.tracer.tracer.Start(ctx, "http "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
		}
	})
}

// statusRecorder captures the response status for the span. Flush is
// forwarded so SSE streaming keeps working through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
