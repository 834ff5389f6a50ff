package services

import (
	"context"
	"time"

	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/queue"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type UpstreamReporter interface {
	Stats() gateway.UpstreamStats
}

type QueueReporter interface {
	GetStats(ctx context.Context) (*queue.QueueStats, error)
}

type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Upstreams  []gateway.UpstreamStats    `json:"upstreams,omitempty"`
	Queue      *queue.QueueStats          `json:"queue,omitempty"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

func (r *HealthReport) Healthy() bool {
	return r.Status == "ok"
}

// HealthService checks the stores the API depends on. Upstream and queue
// figures are informational and never fail the check.
type HealthService struct {
	deps      map[string]Pinger
	upstreams []UpstreamReporter
	queue     QueueReporter
	timeout   time.Duration
}

func NewHealthService(deps map[string]Pinger, upstreams []UpstreamReporter, q QueueReporter) *HealthService {
	return &HealthService{
		deps:      deps,
		upstreams: upstreams,
		queue:     q,
		timeout:   2 * time.Second,
	}
}

func (s *HealthService) Check(ctx context.Context) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := &HealthReport{
		Status:     "ok",
		Components: make(map[string]ComponentHealth, len(s.deps)),
		CheckedAt:  time.Now().UTC(),
	}
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			report.Status = "degraded"
			report.Components[name] = ComponentHealth{Status: "down", Error: err.Error()}
			continue
		}
		report.Components[name] = ComponentHealth{Status: "up"}
	}
	for _, u := range s.upstreams {
		report.Upstreams = append(report.Upstreams, u.Stats())
	}
	if s.queue != nil {
		if stats, err := s.queue.GetStats(ctx); err == nil {
			report.Queue = stats
		}
	}
	return report
}
