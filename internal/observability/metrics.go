package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// MetricsConfig holds configuration for metrics collection.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Metrics provides Prometheus metrics for the routing core and the HTTP
// surface.
type Metrics struct {
	config   MetricsConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	exporter *otelprometheus.Exporter
	provider *metric.MeterProvider

	// HTTP surface
	requestsTotal    *prometheus.CounterVec
	requestsDuration *prometheus.HistogramVec
	requestsErrors   *prometheus.CounterVec

	// Backend calls
	providerHealth  *prometheus.GaugeVec
	providerLatency *prometheus.HistogramVec
	providerErrors  *prometheus.CounterVec

	// Routing
	routingDecisions *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	costTotal        *prometheus.CounterVec

	// Response cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance.
func NewMetrics(config MetricsConfig, logger *zap.Logger) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New()
	if err != nil {
		return nil, err
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))

	m := &Metrics{
		config:   config,
		logger:   logger,
		registry: registry,
		exporter: exporter,
		provider: provider,
	}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.requestsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindroute_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	m.requestsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_request_errors_total",
			Help: "Total number of request errors",
		},
		[]string{"method", "endpoint", "error_type"},
	)

	m.providerHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mindroute_provider_health",
			Help: "Provider health status (1 = healthy, 0 = unhealthy)",
		},
		[]string{"provider_name"},
	)

	m.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindroute_provider_latency_seconds",
			Help:    "Provider response latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider_name", "model"},
	)

	m.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_provider_errors_total",
			Help: "Total number of provider errors",
		},
		[]string{"provider_name", "error_type"},
	)

	m.routingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_routing_decisions_total",
			Help: "Total number of routing decisions made",
		},
		[]string{"provider_name", "model"},
	)

	m.fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_fallbacks_total",
			Help: "Total number of requests served by a fallback backend",
		},
		[]string{"provider_name"},
	)

	m.costTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_cost_total",
			Help: "Cumulative estimated spend per provider",
		},
		[]string{"provider_name"},
	)

	m.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	m.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindroute_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestsDuration,
		m.requestsErrors,
		m.providerHealth,
		m.providerLatency,
		m.providerErrors,
		m.routingDecisions,
		m.fallbacksTotal,
		m.costTotal,
		m.cacheHits,
		m.cacheMisses,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordRequest records metrics for an HTTP request.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	m.requestsDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRequestError records metrics for a request error.
func (m *Metrics) RecordRequestError(method, endpoint, errorType string) {
	m.requestsErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// RecordProviderHealth updates the health status of a provider.
func (m *Metrics) RecordProviderHealth(providerName string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.providerHealth.WithLabelValues(providerName).Set(value)
}

// RecordProviderLatency records the response latency of a provider.
func (m *Metrics) RecordProviderLatency(providerName, model string, duration time.Duration) {
	m.providerLatency.WithLabelValues(providerName, model).Observe(duration.Seconds())
}

// RecordProviderError records an error from a provider.
func (m *Metrics) RecordProviderError(providerName, errorType string) {
	m.providerErrors.WithLabelValues(providerName, errorType).Inc()
}

// RecordRoutingDecision records the top-ranked backend chosen for a request.
func (m *Metrics) RecordRoutingDecision(providerName, model string) {
	m.routingDecisions.WithLabelValues(providerName, model).Inc()
}

// RecordFallback records a request served by a backend other than the
// top-ranked one.
func (m *Metrics) RecordFallback(providerName string) {
	m.fallbacksTotal.WithLabelValues(providerName).Inc()
}

// RecordCost adds to the cumulative spend counter for a provider.
func (m *Metrics) RecordCost(providerName string, amount float64) {
	if amount <= 0 {
		return
	}
	m.costTotal.WithLabelValues(providerName).Add(amount)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.cacheMisses.WithLabelValues(cacheType).Inc()
}

// GetRegistry returns the Prometheus registry.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// GetMeterProvider returns the OpenTelemetry meter provider.
func (m *Metrics) GetMeterProvider() *metric.MeterProvider {
	return m.provider
}

// StartMetricsServer starts the metrics HTTP server and blocks until the
// context is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(m.config.Port),
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	m.logger.Info("metrics server started",
		zap.Int("port", m.config.Port),
		zap.String("path", m.config.Path))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("error shutting down metrics server", zap.Error(err))
	}
	return nil
}
