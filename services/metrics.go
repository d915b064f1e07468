package services

import (
	"sync"
	"sync/atomic"
	"time"
)

// VisionMetrics tracks per-provider call statistics for the gateway. It is
// process-lifetime state: counters reset on restart and races between
// concurrent increments only ever make counts approximate, which is fine.
// Construct one and hand it to NewVisionGateway; there is no global instance.
type VisionMetrics struct {
	mu        sync.RWMutex
	providers map[string]*providerCounters

	lastProvider  atomic.Value // string
	lastOutcome   atomic.Value // string: "success", "fallback-default"
	lastLatencyNs atomic.Int64
}

type providerCounters struct {
	calls         atomic.Int64
	errors        atomic.Int64
	lastLatencyNs atomic.Int64
}

type ProviderStats struct {
	Calls         int64   `json:"calls"`
	Errors        int64   `json:"errors"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

type VisionMetricsSnapshot struct {
	Providers     map[string]ProviderStats `json:"providers"`
	LastProvider  string                   `json:"last_provider"`
	LastOutcome   string                   `json:"last_outcome"`
	LastLatencyMs float64                  `json:"last_latency_ms"`
}

func NewVisionMetrics() *VisionMetrics {
	return &VisionMetrics{providers: map[string]*providerCounters{}}
}

func (m *VisionMetrics) counters(provider string) *providerCounters {
	m.mu.RLock()
	c, ok := m.providers[provider]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.providers[provider]; ok {
		return c
	}
	c = &providerCounters{}
	m.providers[provider] = c
	return c
}

func (m *VisionMetrics) RecordCall(provider string, latency time.Duration, err error) {
	c := m.counters(provider)
	c.calls.Add(1)
	c.lastLatencyNs.Store(int64(latency))
	if err != nil {
		c.errors.Add(1)
	}
}

func (m *VisionMetrics) RecordOutcome(provider, outcome string, latency time.Duration) {
	m.lastProvider.Store(provider)
	m.lastOutcome.Store(outcome)
	m.lastLatencyNs.Store(int64(latency))
}

func (m *VisionMetrics) Snapshot() VisionMetricsSnapshot {
	snap := VisionMetricsSnapshot{Providers: map[string]ProviderStats{}}
	m.mu.RLock()
	for name, c := range m.providers {
		snap.Providers[name] = ProviderStats{
			Calls:         c.calls.Load(),
			Errors:        c.errors.Load(),
			LastLatencyMs: float64(c.lastLatencyNs.Load()) / float64(time.Millisecond),
		}
	}
	m.mu.RUnlock()
	if v, ok := m.lastProvider.Load().(string); ok {
		snap.LastProvider = v
	}
	if v, ok := m.lastOutcome.Load().(string); ok {
		snap.LastOutcome = v
	}
	snap.LastLatencyMs = float64(m.lastLatencyNs.Load()) / float64(time.Millisecond)
	return snap
}
