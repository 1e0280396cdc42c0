package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/cost"
	"github.com/mindnote/mindroute/internal/health"
	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/observability"
	"github.com/mindnote/mindroute/internal/perf"
	"github.com/mindnote/mindroute/internal/providers"
	"github.com/mindnote/mindroute/internal/registry"
)

// Config holds orchestrator tuning knobs. Zero values fall back to the
// documented defaults; a zero DailyBudget disables budget enforcement.
type Config struct {
	DailyBudget    float64       `mapstructure:"daily_budget"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	PerfWindowSize int           `mapstructure:"perf_window_size"`
}

// Orchestrator coordinates selection, ranking, budget enforcement, and
// sequential fallback across backends. It owns the health monitor and the
// per-backend performance and cost ledgers.
type Orchestrator struct {
	config   Config
	registry *registry.Registry
	adapters map[string]providers.Adapter
	health   *health.Store
	monitor  *health.Monitor
	perf     *perf.Tracker
	costs    *cost.Accountant
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New wires an orchestrator over the given registry and adapter set. Every
// registered descriptor must map to an adapter by provider name so a request
// can never fail mid-flight on a missing adapter; metrics may be nil.
func New(config Config, reg *registry.Registry, adapters map[string]providers.Adapter,
	logger *zap.Logger, metrics *observability.Metrics) (*Orchestrator, error) {

	for _, desc := range reg.List() {
		if _, ok := adapters[desc.Provider]; !ok {
			return nil, models.NewConfigurationError(
				fmt.Sprintf("no adapter for provider %q (backend %s)", desc.Provider, desc.Key()), nil)
		}
	}

	healthStore := health.NewStore()
	o := &Orchestrator{
		config:   config,
		registry: reg,
		adapters: adapters,
		health:   healthStore,
		perf:     perf.NewTracker(config.PerfWindowSize),
		costs:    cost.NewAccountant(logger),
		logger:   logger,
		metrics:  metrics,
	}
	o.monitor = health.NewMonitor(healthStore, reg.List, adapters,
		config.HealthInterval, config.ProbeTimeout, logger)
	return o, nil
}

// Start launches background health monitoring.
func (o *Orchestrator) Start() {
	o.monitor.Start()
}

// Close stops the health monitor and releases adapter transports.
func (o *Orchestrator) Close() error {
	o.monitor.Stop()
	for _, adapter := range o.adapters {
		if err := adapter.Close(); err != nil {
			o.logger.Warn("adapter close failed",
				zap.String("provider", adapter.Name()), zap.Error(err))
		}
	}
	return nil
}

// Route executes one generation request: select candidates, rank them, then
// try each in order until one succeeds. The returned response is always
// populated; on failure Success is false and the error carries the typed
// failure kind. Budget exhaustion aborts the walk immediately rather than
// advancing to a cheaper backend.
func (o *Orchestrator) Route(ctx context.Context, req models.Request) (*models.Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	candidates := SelectCandidates(req, o.registry.List(), o.health)
	if len(candidates) == 0 {
		err := models.NewServiceUnavailable("no backend satisfies the request constraints")
		return o.failedResponse(req, nil, err), err
	}

	ranked := Rank(candidates, req.Preferences, o.perf)
	if o.metrics != nil {
		o.metrics.RecordRoutingDecision(ranked[0].Provider, ranked[0].Model)
	}

	var (
		chain   []string
		lastErr error
	)
	for i, desc := range ranked {
		if !cost.WithinBudget(o.costs.TotalAll(), o.config.DailyBudget) {
			err := models.NewQuotaExceeded(
				fmt.Sprintf("daily budget %.4f exhausted (spent %.4f)", o.config.DailyBudget, o.costs.TotalAll()))
			o.logger.Warn("budget exhausted, aborting fallback walk",
				zap.String("request_id", req.RequestID),
				zap.Float64("budget", o.config.DailyBudget),
				zap.Float64("spent", o.costs.TotalAll()))
			return o.failedResponse(req, chain, err), err
		}
		if ctx.Err() != nil {
			err := models.NewTimeout(desc.Key(), ctx.Err())
			return o.failedResponse(req, chain, err), err
		}

		chain = append(chain, desc.Key())
		adapter := o.adapters[desc.Provider]

		resp, err := adapter.GenerateText(ctx, desc, req)
		if err != nil {
			lastErr = err
			o.health.MarkFailure(desc.Key(), 0, err)
			if o.metrics != nil {
				o.metrics.RecordProviderError(desc.Provider, string(models.KindOf(err)))
			}
			o.logger.Warn("backend attempt failed",
				zap.String("request_id", req.RequestID),
				zap.String("backend", desc.Key()),
				zap.Int("attempt", i+1),
				zap.Error(err))
			continue
		}

		o.recordSuccess(desc, resp)
		if i > 0 && o.metrics != nil {
			o.metrics.RecordFallback(desc.Provider)
		}
		resp.RequestID = req.RequestID
		resp.Metadata.FallbackUsed = i > 0
		resp.Metadata.FallbackChain = chain
		resp.Metadata.EstimatedQuality = desc.QualityScore
		o.logger.Info("request routed",
			zap.String("request_id", req.RequestID),
			zap.String("backend", desc.Key()),
			zap.Bool("fallback_used", resp.Metadata.FallbackUsed),
			zap.Duration("latency", resp.Latency),
			zap.Float64("cost", resp.Cost))
		return resp, nil
	}

	err := models.NewAllProvidersFailed(len(chain), lastErr)
	o.logger.Error("all backends exhausted",
		zap.String("request_id", req.RequestID),
		zap.Strings("chain", chain),
		zap.Error(lastErr))
	return o.failedResponse(req, chain, err), err
}

// recordSuccess updates the health, performance, and cost ledgers after a
// successful attempt. Cache hits skip the performance and cost bookkeeping
// since no backend call happened and the spend was already recorded.
func (o *Orchestrator) recordSuccess(desc models.ServiceDescriptor, resp *models.Response) {
	latencyMs := float64(resp.Latency) / float64(time.Millisecond)
	o.health.MarkSuccess(desc.Key(), latencyMs)
	if o.metrics != nil {
		o.metrics.RecordProviderHealth(desc.Provider, true)
	}
	if resp.Metadata.Cached {
		return
	}
	o.perf.RecordLatency(desc.Key(), latencyMs)
	if resp.Cost > 0 {
		o.costs.RecordCost(desc.Key(), resp.Cost)
	}
	if o.metrics != nil {
		o.metrics.RecordProviderLatency(desc.Provider, desc.Model, resp.Latency)
		o.metrics.RecordCost(desc.Provider, resp.Cost)
	}
}

func (o *Orchestrator) failedResponse(req models.Request, chain []string, err error) *models.Response {
	return &models.Response{
		RequestID: req.RequestID,
		Success:   false,
		Error:     err.Error(),
		Metadata: models.ResponseMetadata{
			FallbackUsed:  len(chain) > 1,
			FallbackChain: chain,
		},
	}
}

// Embed returns embedding vectors from the first registered provider family
// that supports embedding generation.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	var lastErr error
	for _, name := range o.registry.Providers() {
		adapter, ok := o.adapters[name]
		if !ok {
			continue
		}
		vectors, err := adapter.GenerateEmbedding(ctx, texts)
		if err != nil {
			if errors.Is(err, models.ErrNotSupported) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return vectors, nil
	}
	if lastErr == nil {
		lastErr = models.NewNotSupported("", "embedding generation")
	}
	return nil, lastErr
}

// Moderate returns per-text verdicts from the first registered provider
// family that supports content moderation.
func (o *Orchestrator) Moderate(ctx context.Context, texts []string) ([]bool, error) {
	var lastErr error
	for _, name := range o.registry.Providers() {
		adapter, ok := o.adapters[name]
		if !ok {
			continue
		}
		verdicts, err := adapter.ModerateContent(ctx, texts)
		if err != nil {
			if errors.Is(err, models.ErrNotSupported) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return verdicts, nil
	}
	if lastErr == nil {
		lastErr = models.NewNotSupported("", "content moderation")
	}
	return nil, lastErr
}

// Backends returns the registered descriptors in registration order.
func (o *Orchestrator) Backends() []models.ServiceDescriptor {
	return o.registry.List()
}

// EnableBackend marks a backend eligible for selection.
func (o *Orchestrator) EnableBackend(key string) error {
	return o.registry.Enable(key)
}

// DisableBackend removes a backend from selection without forgetting its
// configuration or ledgers.
func (o *Orchestrator) DisableBackend(key string) error {
	return o.registry.Disable(key)
}

// HealthSnapshot returns a copy of the latest per-backend health.
func (o *Orchestrator) HealthSnapshot() map[string]models.ServiceHealth {
	return o.health.Snapshot()
}

// PerformanceSnapshot returns per-backend latency window summaries.
func (o *Orchestrator) PerformanceSnapshot() map[string]perf.Summary {
	return o.perf.Snapshot()
}

// CostSnapshot returns per-backend cumulative spend.
func (o *Orchestrator) CostSnapshot() map[string]float64 {
	return o.costs.Snapshot()
}

// TotalCost returns cumulative spend across all backends.
func (o *Orchestrator) TotalCost() float64 {
	return o.costs.TotalAll()
}

// ResetCosts zeroes the spend ledger. Operator action, typically at the
// daily budget boundary.
func (o *Orchestrator) ResetCosts() {
	o.costs.Reset()
	o.logger.Info("cost ledger reset")
}

// ForceHealthCheck runs an immediate probe pass outside the monitor
// schedule.
func (o *Orchestrator) ForceHealthCheck() {
	o.monitor.ForceCheck()
}
