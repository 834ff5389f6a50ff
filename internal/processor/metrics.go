package processor

import (
	"sync/atomic"
	"time"
)

type ServiceMetrics struct {
	processed  atomic.Int64
	failed     atomic.Int64
	durationNs atomic.Int64
	startedNs  atomic.Int64
}

type ServiceStats struct {
	Processed     int64   `json:"processed"`
	Failed        int64   `json:"failed"`
	RatePerSecond float64 `json:"rate_per_second"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.startedNs.Store(time.Now().UnixNano())
	return m
}

func (m *ServiceMetrics) RecordSuccess(d time.Duration) {
	m.processed.Add(1)
	m.durationNs.Add(int64(d))
}

func (m *ServiceMetrics) RecordFailure() {
	m.failed.Add(1)
}

func (m *ServiceMetrics) Stats() ServiceStats {
	processed := m.processed.Load()
	elapsed := time.Since(time.Unix(0, m.startedNs.Load())).Seconds()

	s := ServiceStats{
		Processed:     processed,
		Failed:        m.failed.Load(),
		UptimeSeconds: elapsed,
	}
	if elapsed > 0 {
		s.RatePerSecond = float64(processed) / elapsed
	}
	if processed > 0 {
		s.AvgDurationMs = time.Duration(m.durationNs.Load() / processed).Milliseconds()
	}
	return s
}
