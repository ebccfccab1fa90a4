// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the engine. The metrics provider satisfies the observer interfaces of
// the engine, broadcast and streamhttp packages, so wiring it in is a matter
// of passing one value to each constructor.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	MetricsPath string // HTTP path for the scrape endpoint (default: /metrics)
	MetricsPort int    // port for the scrape server (default: 9090)

	Namespace        string    // Prometheus namespace (default: agentwire)
	HistogramBuckets []float64 // latency buckets in milliseconds

	ConstLabels prometheus.Labels
}

// MetricsProvider records engine activity and serves the scrape endpoint.
type MetricsProvider struct {
	config MetricsConfig
	server *http.Server

	registry *prometheus.Registry

	dispatchDuration *prometheus.HistogramVec
	dispatchTotal    *prometheus.CounterVec

	cancellationTotal *prometheus.CounterVec

	notificationsDelivered *prometheus.CounterVec
	notificationsDropped   *prometheus.CounterVec

	activeStreams prometheus.Gauge
}

// NewMetricsProvider creates a metrics provider with its own registry, so
// tests can create providers freely without collector name collisions.
func NewMetricsProvider(config MetricsConfig) (*MetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "agentwire"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		config.ConstLabels["environment"] = config.Environment
	}

	p := &MetricsProvider{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	p.initializeMetrics()
	if err := p.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return p, nil
}

func (p *MetricsProvider) initializeMetrics() {
	p.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Name:        "dispatch_duration_milliseconds",
			Help:        "Duration of request dispatches in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "outcome"},
	)

	p.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "dispatch_total",
			Help:        "Total number of dispatched requests",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "outcome"},
	)

	p.cancellationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "cancellation_total",
			Help:        "Total number of cancellation notifications received",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"honored"},
	)

	p.notificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "notifications_delivered_total",
			Help:        "Total number of notifications delivered to event streams",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method"},
	)

	p.notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "notifications_dropped_total",
			Help:        "Total number of notifications dropped instead of delivered",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "reason"},
	)

	p.activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Name:        "active_streams",
			Help:        "Number of open event streams",
			ConstLabels: p.config.ConstLabels,
		},
	)
}

func (p *MetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.dispatchDuration,
		p.dispatchTotal,
		p.cancellationTotal,
		p.notificationsDelivered,
		p.notificationsDropped,
		p.activeStreams,
	}
	for _, collector := range collectors {
		if err := p.registry.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// RegisterSessionCount exposes a live session count gauge backed by fn.
func (p *MetricsProvider) RegisterSessionCount(fn func() int) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Name:        "active_sessions",
			Help:        "Number of live sessions",
			ConstLabels: p.config.ConstLabels,
		},
		func() float64 { return float64(fn()) },
	)
	return p.registry.Register(gauge)
}

// RegisterInFlight exposes an in-flight request gauge backed by fn.
func (p *MetricsProvider) RegisterInFlight(fn func() int) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Name:        "requests_in_flight",
			Help:        "Number of requests currently being dispatched",
			ConstLabels: p.config.ConstLabels,
		},
		func() float64 { return float64(fn()) },
	)
	return p.registry.Register(gauge)
}

// DispatchStarted is part of the engine observer interface. Starts are
// implied by the finish counter, so nothing is recorded here.
func (p *MetricsProvider) DispatchStarted(method string) {}

// DispatchFinished records one finished dispatch.
func (p *MetricsProvider) DispatchFinished(method, outcome string, elapsed time.Duration) {
	ms := float64(elapsed.Milliseconds())
	p.dispatchDuration.WithLabelValues(method, outcome).Observe(ms)
	p.dispatchTotal.WithLabelValues(method, outcome).Inc()
}

// CancellationRequested records one cancellation notification.
func (p *MetricsProvider) CancellationRequested(honored bool) {
	p.cancellationTotal.WithLabelValues(fmt.Sprintf("%t", honored)).Inc()
}

// NotificationDelivered records one delivered notification.
func (p *MetricsProvider) NotificationDelivered(method string) {
	p.notificationsDelivered.WithLabelValues(method).Inc()
}

// NotificationDropped records one dropped notification.
func (p *MetricsProvider) NotificationDropped(method, reason string) {
	p.notificationsDropped.WithLabelValues(method, reason).Inc()
}

// StreamOpened records an event stream opening.
func (p *MetricsProvider) StreamOpened() {
	p.activeStreams.Inc()
}

// StreamClosed records an event stream closing.
func (p *MetricsProvider) StreamClosed() {
	p.activeStreams.Dec()
}

// Handler returns the scrape handler, for callers that mount it themselves.
func (p *MetricsProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Start serves the scrape endpoint on the configured port.
func (p *MetricsProvider) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, p.Handler())

	p.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", p.config.MetricsPort),
		Handler: mux,
	}
	go func() {
		_ = p.server.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the scrape server.
func (p *MetricsProvider) Shutdown(ctx context.Context) error {
	if p.server != nil {
		return p.server.Shutdown(ctx)
	}
	return nil
}
