package gateway

import (
	"slices"
	"sync"
	"time"
)

const latencyWindow = 100

// UpstreamMetrics keeps call outcomes of one upstream API for the health
// endpoint. Latencies of the last latencyWindow successful calls are kept for
// the p95.
type UpstreamMetrics struct {
	mu          sync.Mutex
	total       int64
	failed      int64
	latencySum  int64
	consecutive int32
	lastError   time.Time
	lastSuccess time.Time
	window      []int64
	next        int
}

func NewUpstreamMetrics() *UpstreamMetrics {
	return &UpstreamMetrics{window: make([]int64, 0, latencyWindow)}
}

func (m *UpstreamMetrics) RecordSuccess(latencyMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latencySum += latencyMs
	m.consecutive = 0
	m.lastSuccess = time.Now()

	if len(m.window) < latencyWindow {
		m.window = append(m.window, latencyMs)
		return
	}
	m.window[m.next] = latencyMs
	m.next = (m.next + 1) % latencyWindow
}

func (m *UpstreamMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.failed++
	m.consecutive++
	m.lastError = time.Now()
}

// UpstreamStats is a point-in-time copy of UpstreamMetrics.
type UpstreamStats struct {
	Name             string     `json:"name"`
	TotalRequests    int64      `json:"total_requests"`
	FailedReqs       int64      `json:"failed_requests"`
	SuccessRate      float64    `json:"success_rate"`
	AvgLatencyMs     int64      `json:"avg_latency_ms"`
	P95LatencyMs     int64      `json:"p95_latency_ms"`
	ConsecutiveFails int32      `json:"consecutive_fails"`
	LastError        *time.Time `json:"last_error,omitempty"`
}

func (m *UpstreamMetrics) Snapshot(name string) UpstreamStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := UpstreamStats{
		Name:             name,
		TotalRequests:    m.total,
		FailedReqs:       m.failed,
		SuccessRate:      1,
		ConsecutiveFails: m.consecutive,
	}
	if m.total > 0 {
		s.SuccessRate = float64(m.total-m.failed) / float64(m.total)
	}
	if ok := m.total - m.failed; ok > 0 {
		s.AvgLatencyMs = m.latencySum / ok
	}
	if len(m.window) > 0 {
		sorted := slices.Clone(m.window)
		slices.Sort(sorted)
		s.P95LatencyMs = sorted[min(len(sorted)*95/100, len(sorted)-1)]
	}
	if !m.lastError.IsZero() {
		t := m.lastError
		s.LastError = &t
	}
	return s
}
