package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/providers"
)

// probeAdapter is a stub adapter whose health outcome is scripted.
type probeAdapter struct {
	name   string
	err    error
	probes int64
}

func (p *probeAdapter) Name() string { return p.name }

func (p *probeAdapter) GenerateText(ctx context.Context, desc models.ServiceDescriptor, req models.Request) (*models.Response, error) {
	return nil, models.NewNotSupported(p.name, "generate")
}

func (p *probeAdapter) GenerateEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, models.NewNotSupported(p.name, "embedding")
}

func (p *probeAdapter) ModerateContent(ctx context.Context, texts []string) ([]bool, error) {
	return nil, models.NewNotSupported(p.name, "moderation")
}

func (p *probeAdapter) HealthCheck(ctx context.Context) error {
	atomic.AddInt64(&p.probes, 1)
	return p.err
}

func (p *probeAdapter) Close() error { return nil }

func testDescriptors() []models.ServiceDescriptor {
	return []models.ServiceDescriptor{
		{Provider: "local", Model: "llama3", Enabled: true},
		{Provider: "openai", Model: "gpt-4", Enabled: true},
		{Provider: "openai", Model: "gpt-3.5", Enabled: false},
	}
}

func TestForceCheckMarksOutcomes(t *testing.T) {
	store := NewStore()
	localAdapter := &probeAdapter{name: "local"}
	openaiAdapter := &probeAdapter{name: "openai", err: context.DeadlineExceeded}

	m := NewMonitor(store, testDescriptors, map[string]providers.Adapter{
		"local":  localAdapter,
		"openai": openaiAdapter,
	}, time.Hour, time.Second, zap.NewNop())

	m.ForceCheck()

	h, ok := store.Get("local/llama3")
	require.True(t, ok)
	assert.True(t, h.Available)

	h, ok = store.Get("openai/gpt-4")
	require.True(t, ok)
	assert.False(t, h.Available)
	assert.NotEmpty(t, h.LastError)

	// Disabled descriptors are never probed.
	_, ok = store.Get("openai/gpt-3.5")
	assert.False(t, ok)
}

func TestStartRunsImmediatePassAndStops(t *testing.T) {
	store := NewStore()
	adapter := &probeAdapter{name: "local"}

	m := NewMonitor(store, func() []models.ServiceDescriptor {
		return []models.ServiceDescriptor{{Provider: "local", Model: "llama3", Enabled: true}}
	}, map[string]providers.Adapter{"local": adapter}, time.Hour, time.Second, zap.NewNop())

	m.Start()

	require.Eventually(t, func() bool {
		_, ok := store.Get("local/llama3")
		return ok
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop() // second call is a no-op

	assert.EqualValues(t, 1, atomic.LoadInt64(&adapter.probes))
}

func TestProbeSkipsUnknownProvider(t *testing.T) {
	store := NewStore()
	m := NewMonitor(store, func() []models.ServiceDescriptor {
		return []models.ServiceDescriptor{{Provider: "ghost", Model: "m", Enabled: true}}
	}, map[string]providers.Adapter{}, time.Hour, time.Second, zap.NewNop())

	m.ForceCheck()

	_, ok := store.Get("ghost/m")
	assert.False(t, ok)
}
