package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/providers"
	"github.com/mindnote/mindroute/internal/registry"
)

// scriptedAdapter serves scripted outcomes per backend key and records the
// order of attempts.
type scriptedAdapter struct {
	name       string
	outcomes   map[string]func() (*models.Response, error)
	calls      []string
	embedFn    func(texts []string) ([][]float64, error)
	moderateFn func(texts []string) ([]bool, error)
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error) {
	a.calls = append(a.calls, desc.Key())
	if fn, ok := a.outcomes[desc.Key()]; ok {
		return fn()
	}
	return nil, models.NewBackendError(desc.Key(), "no scripted outcome", 500, true, nil)
}

func (a *scriptedAdapter) GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	if a.embedFn != nil {
		return a.embedFn(texts)
	}
	return nil, models.NewNotSupported(a.name, "embedding")
}

func (a *scriptedAdapter) ModerateContent(ctx context.Context, texts []string) ([]bool, error) {
	if a.moderateFn != nil {
		return a.moderateFn(texts)
	}
	return nil, models.NewNotSupported(a.name, "moderation")
}

func (a *scriptedAdapter) HealthCheck(ctx context.Context) error { return nil }

func (a *scriptedAdapter) Close() error { return nil }

func succeedWith(desc models.ServiceDescriptor, costAmount float64) func() (*models.Response, error) {
	return func() (*models.Response, error) {
		return &models.Response{
			Provider:     desc.Provider,
			Model:        desc.Model,
			Content:      "generated text",
			Cost:         costAmount,
			Latency:      150 * time.Millisecond,
			FinishReason: models.FinishStop,
			Success:      true,
		}, nil
	}
}

func failWith(key string) func() (*models.Response, error) {
	return func() (*models.Response, error) {
		return nil, models.NewBackendError(key, "internal error", 500, true, nil)
	}
}

func chainDescriptors() []models.ServiceDescriptor {
	return []models.ServiceDescriptor{
		{Provider: "local", Model: "primary", Enabled: true, Priority: 1, QualityScore: 9},
		{Provider: "local", Model: "secondary", Enabled: true, Priority: 2, QualityScore: 7},
		{Provider: "local", Model: "tertiary", Enabled: true, Priority: 3, QualityScore: 5},
	}
}

func newTestOrchestrator(t *testing.T, config Config, adapter *scriptedAdapter) *Orchestrator {
	t.Helper()
	reg, err := registry.New(chainDescriptors(), nil)
	require.NoError(t, err)

	orch, err := New(config, reg, map[string]providers.Adapter{"local": adapter}, zap.NewNop(), nil)
	require.NoError(t, err)
	return orch
}

func TestNewRejectsMissingAdapter(t *testing.T) {
	reg, err := registry.New(chainDescriptors(), nil)
	require.NoError(t, err)

	_, err = New(Config{}, reg, map[string]providers.Adapter{}, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestRoutePrimarySucceeds(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "primary"}, 0.01),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	resp, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.False(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, []string{"local/primary"}, resp.Metadata.FallbackChain)
	assert.Equal(t, 9, resp.Metadata.EstimatedQuality)
	assert.Equal(t, []string{"local/primary"}, adapter.calls)
}

func TestRouteFallsBackToSecondBackend(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary":   failWith("local/primary"),
		"local/secondary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "secondary"}, 0.02),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	resp, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "secondary", resp.Model)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, []string{"local/primary", "local/secondary"}, resp.Metadata.FallbackChain)
	assert.Equal(t, 7, resp.Metadata.EstimatedQuality)
}

func TestRouteAllBackendsExhausted(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary":   failWith("local/primary"),
		"local/secondary": failWith("local/secondary"),
		"local/tertiary":  failWith("local/tertiary"),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	resp, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, models.KindAllProvidersFailed, models.KindOf(err))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, []string{"local/primary", "local/secondary", "local/tertiary"}, resp.Metadata.FallbackChain)
	assert.Equal(t, []string{"local/primary", "local/secondary", "local/tertiary"}, adapter.calls)
}

func TestRouteNoCandidates(t *testing.T) {
	adapter := &scriptedAdapter{name: "local"}
	orch := newTestOrchestrator(t, Config{}, adapter)

	req := models.Request{
		Prompt:      "hello",
		Constraints: &models.Constraints{AllowedBackends: []string{"local/nonexistent"}},
	}
	resp, err := orch.Route(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, models.KindServiceUnavailable, models.KindOf(err))
	assert.False(t, resp.Success)
	assert.Empty(t, adapter.calls)
}

func TestRouteBudgetExhaustedHaltsBeforeCall(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "primary"}, 1.5),
	}}
	orch := newTestOrchestrator(t, Config{DailyBudget: 1.0}, adapter)

	// First request fits under the untouched budget and spends past it.
	_, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.NoError(t, err)

	// Second request must be rejected before any backend is attempted.
	resp, err := orch.Route(context.Background(), models.Request{Prompt: "hello again"})
	require.Error(t, err)
	assert.Equal(t, models.KindQuotaExceeded, models.KindOf(err))
	assert.False(t, resp.Success)
	assert.Equal(t, []string{"local/primary"}, adapter.calls)
}

func TestRouteSkipsBackendMarkedUnavailable(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary":   failWith("local/primary"),
		"local/secondary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "secondary"}, 0.01),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	// The first request fails over and marks primary unavailable.
	_, err := orch.Route(context.Background(), models.Request{Prompt: "one"})
	require.NoError(t, err)

	// The second request never attempts the unhealthy backend.
	resp, err := orch.Route(context.Background(), models.Request{Prompt: "two"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", resp.Model)
	assert.False(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, []string{"local/primary", "local/secondary", "local/secondary"}, adapter.calls)
}

func TestRouteRecordsLedgers(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "primary"}, 0.25),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	_, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.NoError(t, err)

	costs := orch.CostSnapshot()
	assert.InDelta(t, 0.25, costs["local/primary"], 1e-9)
	assert.InDelta(t, 0.25, orch.TotalCost(), 1e-9)

	perfSnap := orch.PerformanceSnapshot()
	require.Contains(t, perfSnap, "local/primary")
	assert.Equal(t, 1, perfSnap["local/primary"].Samples)
	assert.InDelta(t, 150, perfSnap["local/primary"].AverageMs, 0.001)

	healthSnap := orch.HealthSnapshot()
	require.Contains(t, healthSnap, "local/primary")
	assert.True(t, healthSnap["local/primary"].Available)
}

func TestRouteCachedResponseSkipsSpendAndLatency(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary": func() (*models.Response, error) {
			return &models.Response{
				Provider: "local",
				Model:    "primary",
				Content:  "cached",
				Cost:     0.1,
				Success:  true,
				Metadata: models.ResponseMetadata{Cached: true},
			}, nil
		},
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	resp, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Metadata.Cached)
	assert.Equal(t, 0.0, orch.TotalCost())
	assert.Empty(t, orch.PerformanceSnapshot())
}

func TestRoutePreservesCallerRequestID(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "primary"}, 0),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	resp, err := orch.Route(context.Background(), models.Request{RequestID: "req-42", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestResetCosts(t *testing.T) {
	adapter := &scriptedAdapter{name: "local", outcomes: map[string]func() (*models.Response, error){
		"local/primary": succeedWith(models.ServiceDescriptor{Provider: "local", Model: "primary"}, 0.5),
	}}
	orch := newTestOrchestrator(t, Config{}, adapter)

	_, err := orch.Route(context.Background(), models.Request{Prompt: "hello"})
	require.NoError(t, err)
	require.Greater(t, orch.TotalCost(), 0.0)

	orch.ResetCosts()
	assert.Equal(t, 0.0, orch.TotalCost())
}

func newTwoFamilyOrchestrator(t *testing.T, local, openai *scriptedAdapter) *Orchestrator {
	t.Helper()
	descs := []models.ServiceDescriptor{
		{Provider: "local", Model: "llama3", Enabled: true, Priority: 1, QualityScore: 6},
		{Provider: "openai", Model: "gpt-4", Enabled: true, Priority: 2, QualityScore: 9},
	}
	reg, err := registry.New(descs, registry.Credentials{"openai": "sk-test-0000000000000000000000"})
	require.NoError(t, err)

	orch, err := New(Config{}, reg, map[string]providers.Adapter{"local": local, "openai": openai}, zap.NewNop(), nil)
	require.NoError(t, err)
	return orch
}

func TestEmbedSkipsUnsupportedFamilies(t *testing.T) {
	local := &scriptedAdapter{name: "local"}
	openai := &scriptedAdapter{name: "openai", embedFn: func(texts []string) ([][]float64, error) {
		vectors := make([][]float64, len(texts))
		for i := range texts {
			vectors[i] = []float64{0.1, 0.2}
		}
		return vectors, nil
	}}
	orch := newTwoFamilyOrchestrator(t, local, openai)

	vectors, err := orch.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vectors[0])
}

func TestEmbedPropagatesBackendError(t *testing.T) {
	local := &scriptedAdapter{name: "local"}
	openai := &scriptedAdapter{name: "openai", embedFn: func(texts []string) ([][]float64, error) {
		return nil, models.NewBackendError("openai/gpt-4", "upstream unavailable", 503, true, nil)
	}}
	orch := newTwoFamilyOrchestrator(t, local, openai)

	_, err := orch.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.Equal(t, models.KindBackend, models.KindOf(err))
}

func TestEmbedNoCapableFamily(t *testing.T) {
	adapter := &scriptedAdapter{name: "local"}
	orch := newTestOrchestrator(t, Config{}, adapter)

	_, err := orch.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.Equal(t, models.KindNotSupported, models.KindOf(err))
}

func TestModerateFirstCapableFamily(t *testing.T) {
	local := &scriptedAdapter{name: "local"}
	openai := &scriptedAdapter{name: "openai", moderateFn: func(texts []string) ([]bool, error) {
		verdicts := make([]bool, len(texts))
		verdicts[0] = true
		return verdicts, nil
	}}
	orch := newTwoFamilyOrchestrator(t, local, openai)

	verdicts, err := orch.Moderate(context.Background(), []string{"bad text", "fine text"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, verdicts)
}
