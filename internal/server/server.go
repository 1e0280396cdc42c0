// Package server exposes the routing core over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/observability"
	"github.com/mindnote/mindroute/internal/perf"
	"github.com/mindnote/mindroute/internal/providers"
	"github.com/mindnote/mindroute/internal/registry"
	"github.com/mindnote/mindroute/internal/router"
)

// Router is the routing surface the HTTP handlers depend on.
type Router interface {
	Route(ctx context.Context, req models.Request) (*models.Response, error)
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Moderate(ctx context.Context, texts []string) ([]bool, error)
	Backends() []models.ServiceDescriptor
	EnableBackend(key string) error
	DisableBackend(key string) error
	HealthSnapshot() map[string]models.ServiceHealth
	PerformanceSnapshot() map[string]perf.Summary
	CostSnapshot() map[string]float64
	TotalCost() float64
	ResetCosts()
	ForceHealthCheck()
}

// Config holds the full service configuration.
type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Backends    []models.ServiceDescriptor  `mapstructure:"backends"`
	Credentials map[string]string           `mapstructure:"credentials"`
	Providers   map[string]providers.Config `mapstructure:"providers"`
	Routing     router.Config               `mapstructure:"routing"`

	Observability struct {
		Logging observability.LoggerConfig  `mapstructure:"logging"`
		Metrics observability.MetricsConfig `mapstructure:"metrics"`
		Tracing observability.TracingConfig `mapstructure:"tracing"`
	} `mapstructure:"observability"`
}

// Server is the HTTP front end over the orchestrator.
type Server struct {
	config  *Config
	mux     *chi.Mux
	orch    Router
	closer  func() error
	logger  *zap.Logger
	metrics *observability.Metrics
	tracing *observability.Tracing
	server  *http.Server
	started time.Time
}

// NewServer wires the full service from configuration: logger, metrics,
// tracing, provider adapters, backend registry, and the orchestrator.
func NewServer(config *Config) (*Server, error) {
	logger, err := observability.NewLogger(config.Observability.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := observability.NewMetrics(config.Observability.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	tracing := observability.NewTracing(config.Observability.Tracing, logger)

	reg, err := registry.New(config.Backends, config.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend registry: %w", err)
	}

	adapters, err := initializeAdapters(config.Providers, config.Credentials, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	orch, err := router.New(config.Routing, reg, adapters, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	s := newWithRouter(config, orch, logger, metrics, tracing)
	s.closer = orch.Close
	return s, nil
}

// newWithRouter assembles the HTTP layer over an existing router. Split out
// so handler tests can inject a fake.
func newWithRouter(config *Config, orch Router, logger *zap.Logger,
	metrics *observability.Metrics, tracing *observability.Tracing) *Server {

	s := &Server{
		config:  config,
		mux:     chi.NewRouter(),
		orch:    orch,
		logger:  logger,
		metrics: metrics,
		tracing: tracing,
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures the HTTP routes and middleware.
func (s *Server) setupRoutes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(s.observabilityMiddleware)
	s.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.mux.Get("/health", s.handleServiceHealth)

	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/embeddings", s.handleEmbeddings)
		r.Post("/moderations", s.handleModerations)
		r.Get("/health", s.handleBackendHealth)
		r.Get("/performance", s.handlePerformance)
		r.Get("/costs", s.handleCosts)
	})

	s.mux.Route("/admin", func(r chi.Router) {
		r.Get("/backends", s.handleListBackends)
		r.Post("/backends/{provider}/{model}/enable", s.handleEnableBackend)
		r.Post("/backends/{provider}/{model}/disable", s.handleDisableBackend)
		r.Post("/health-check", s.handleForceHealthCheck)
		r.Post("/costs/reset", s.handleResetCosts)
	})
}

// observabilityMiddleware records request metrics and a span per request.
func (s *Server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := s.tracing.StartSpan(r.Context(), "http_request")
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start begins accepting requests and launches background health checks.
func (s *Server) Start() error {
	if starter, ok := s.orch.(interface{ Start() }); ok {
		starter.Start()
	}

	if s.config.Observability.Metrics.Enabled {
		metricsCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := s.metrics.StartMetricsServer(metricsCtx); err != nil {
				s.logger.Error("failed to start metrics server", zap.Error(err))
			}
		}()
	}

	s.logger.Info("starting server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("backends", len(s.orch.Backends())))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the server and the routing core.
func (s *Server) Stop() error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", zap.Error(err))
		return err
	}

	if s.closer != nil {
		if err := s.closer(); err != nil {
			s.logger.Error("error closing routing core", zap.Error(err))
		}
	}

	observability.SyncLogger(s.logger)
	s.logger.Info("server stopped")
	return nil
}

// WaitForShutdown blocks until an interrupt signal arrives, then stops the
// server.
func (s *Server) WaitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	s.logger.Info("received shutdown signal")
	s.Stop()
}

// Handler returns the underlying chi router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// initializeAdapters builds one adapter per enabled provider family.
// Credential entries override any api_key set inline in the provider block.
func initializeAdapters(configs map[string]providers.Config, creds map[string]string,
	logger *zap.Logger) (map[string]providers.Adapter, error) {

	adapters := make(map[string]providers.Adapter)
	for name, config := range configs {
		if !config.Enabled {
			continue
		}
		config.Name = name
		if key, ok := creds[name]; ok && key != "" {
			config.APIKey = key
		}

		var adapter providers.Adapter
		switch name {
		case "openai":
			adapter = providers.NewOpenAIAdapter(config, logger)
		case "anthropic":
			adapter = providers.NewAnthropicAdapter(config, logger)
		case "local":
			adapter = providers.NewLocalAdapter(config, logger)
		case "qwen":
			adapter = providers.NewQwenAdapter(config, logger)
		default:
			return nil, models.NewConfigurationError(
				fmt.Sprintf("unknown provider family %q", name), nil)
		}

		adapters[name] = adapter
		logger.Info("initialized provider", zap.String("name", name))
	}
	return adapters, nil
}
