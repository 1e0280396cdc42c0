package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/providers"
)

// Monitor probes every enabled backend on a periodic schedule, plus one
// immediate pass at startup. Probe failures are converted into
// available=false entries; they never propagate and never stop the loop.
type Monitor struct {
	store        *Store
	descriptors  func() []models.ServiceDescriptor
	adapters     map[string]providers.Adapter
	interval     time.Duration
	probeTimeout time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *zap.Logger
}

// NewMonitor creates a monitor over the given descriptor source and adapter
// set. descriptors is called on every pass so enable/disable and reloads
// take effect without restarting the monitor.
func NewMonitor(store *Store, descriptors func() []models.ServiceDescriptor, adapters map[string]providers.Adapter,
	interval, probeTimeout time.Duration, logger *zap.Logger) *Monitor {

	if interval <= 0 {
		interval = 30 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &Monitor{
		store:        store,
		descriptors:  descriptors,
		adapters:     adapters,
		interval:     interval,
		probeTimeout: probeTimeout,
		stopChan:     make(chan struct{}),
		logger:       logger,
	}
}

// Start launches the probe loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.logger.Info("health monitor started", zap.Duration("interval", m.interval))
}

// Stop cancels the loop and waits for in-flight probes to finish. Safe to
// call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkAll()

	for {
		select {
		case <-ticker.C:
			m.checkAll()
		case <-m.stopChan:
			return
		}
	}
}

// checkAll probes every enabled backend in parallel. Each probe writes only
// its own key, so per-key atomicity holds without a shared lock.
func (m *Monitor) checkAll() {
	var wg sync.WaitGroup
	for _, desc := range m.descriptors() {
		if !desc.Enabled {
			continue
		}
		adapter, ok := m.adapters[desc.Provider]
		if !ok {
			continue
		}

		wg.Add(1)
		go func(d models.ServiceDescriptor, a providers.Adapter) {
			defer wg.Done()
			m.probe(d, a)
		}(desc, adapter)
	}
	wg.Wait()
}

func (m *Monitor) probe(desc models.ServiceDescriptor, adapter providers.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	start := time.Now()
	err := adapter.HealthCheck(ctx)
	elapsedMs := float64(time.Since(start).Milliseconds())

	key := desc.Key()
	if err != nil {
		m.store.MarkFailure(key, elapsedMs, err)
		m.logger.Warn("health probe failed",
			zap.String("backend", key),
			zap.Float64("elapsed_ms", elapsedMs),
			zap.Error(err))
		return
	}

	m.store.MarkSuccess(key, elapsedMs)
	m.logger.Debug("health probe succeeded",
		zap.String("backend", key),
		zap.Float64("elapsed_ms", elapsedMs))
}

// ForceCheck runs one probe pass immediately, outside the schedule.
func (m *Monitor) ForceCheck() {
	m.checkAll()
}
