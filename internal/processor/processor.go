// Package processor consumes transaction events and sends payer receipts and
// the admin approval digest.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kryos/kryos-api/internal/queue"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/prom"
	"github.com/kryos/kryos-api/pkg/redis"
	"github.com/kryos/kryos-api/pkg/worker"
	"github.com/robfig/cron/v3"
)

const (
	ProcessingTimeout = 30 * time.Second
	HealthInterval    = 30 * time.Second
	ShutdownTimeout   = time.Minute
	laggingThreshold  = 1000
)

// Processor handles one decoded queue message.
type Processor interface {
	Process(ctx context.Context, msg *queue.Message) error
	GetType() string
}

type Options struct {
	Queue          queue.QueueConfig
	Consumers      int
	Workers        int
	BufferSize     int
	DigestSchedule string
}

// ProcessorService fans stream messages out to a worker pool. A consumer
// blocks on each message until a worker reports back, so acks only happen
// after processing.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	opts      Options
	queues    []*queue.Queue
	processor Processor
	digest    *DigestJob
	cron      *cron.Cron
	metrics   *ServiceMetrics
	worker    *worker.WorkerManager
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewProcessorService(adapter redis.RedisAdapter, opts Options) *ProcessorService {
	if opts.Consumers <= 0 {
		opts.Consumers = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		opts:    opts,
		metrics: NewServiceMetrics(),
		worker:  worker.NewWorkerManager(opts.BufferSize, opts.Workers, nil),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processor = p
	logger.Info("[processor] registered", "type", p.GetType())
}

// RegisterDigest schedules job on the configured cron spec at Start.
func (s *ProcessorService) RegisterDigest(job *DigestJob) {
	s.digest = job
}

func (s *ProcessorService) Metrics() ServiceStats {
	return s.metrics.Stats()
}

func (s *ProcessorService) Start() error {
	if s.processor == nil {
		return errors.New("no processor registered")
	}
	logger.Info("[processor] starting", "consumers", s.opts.Consumers, "workers", s.opts.Workers)

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(s.ctx); err != nil && !errors.Is(err, worker.ErrWorkersTerminated) {
			logger.Error("[processor] worker manager stopped", "error", err)
		}
	}()

	for i := 0; i < s.opts.Consumers; i++ {
		cfg := s.opts.Queue
		cfg.ConsumerName = fmt.Sprintf("%s-%d", cfg.ConsumerName, i)

		q, err := queue.NewQueue(s.ctx, s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("create consumer %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	if s.digest != nil && s.opts.DigestSchedule != "" {
		s.cron = cron.New()
		if _, err := s.digest.Schedule(s.cron, s.opts.DigestSchedule); err != nil {
			return fmt.Errorf("schedule digest %q: %w", s.opts.DigestSchedule, err)
		}
		s.cron.Start()
		logger.Info("[processor] digest scheduled", "spec", s.opts.DigestSchedule)
	}

	s.wg.Add(1)
	go s.monitor()

	return nil
}

// monitor logs throughput and warns on Redis or queue trouble.
func (s *ProcessorService) monitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
			s.checkHealth()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	st := s.metrics.Stats()
	logger.Info("[processor] metrics",
		"processed", st.Processed,
		"failed", st.Failed,
		"rate_per_second", st.RatePerSecond,
		"avg_duration_ms", st.AvgDurationMs,
		"buffered", s.worker.GetUnreadCount())
}

func (s *ProcessorService) checkHealth() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("[processor] redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	stats, err := s.queues[0].GetStats(ctx)
	if err != nil {
		logger.Warn("[processor] queue stats unavailable", "error", err)
		return
	}
	prom.SetQueueBacklog(stats.PendingMessages, stats.DeadLetters)
	if stats.PendingMessages > laggingThreshold {
		logger.Warn("[processor] queue lagging", "pending", stats.PendingMessages, "dead_letters", stats.DeadLetters)
	}
}

func (s *ProcessorService) Stop() {
	logger.Info("[processor] shutting down")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	var qwg sync.WaitGroup
	for i, q := range s.queues {
		qwg.Add(1)
		go func(index int, q *queue.Queue) {
			defer qwg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("[processor] consumer stop failed", "consumer", index, "error", err)
			}
		}(i, q)
	}
	qwg.Wait()

	s.cancel()
	s.worker.Exit()
	s.wg.Wait()

	s.reportMetrics()
	logger.Info("[processor] stopped")
}

type job struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	jctx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	j := &job{ctx: jctx, msg: msg, result: make(chan error, 1)}
	if err := s.worker.Enqueue(jctx, j); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.ID, err)
	}

	select {
	case err := <-j.result:
		return err
	case <-jctx.Done():
		return fmt.Errorf("waiting for worker on %s: %w", msg.ID, jctx.Err())
	}
}

func (s *ProcessorService) workerHandler(_ context.Context, workerIndex int, v interface{}) {
	j, ok := v.(*job)
	if !ok {
		logger.Error("[processor] unexpected job type", "worker", workerIndex)
		return
	}
	if j.ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Warn("[processor] process failed", "worker", workerIndex, "id", j.msg.ID, "attempts", j.msg.Attempts, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// buffered, never blocks
	j.result <- err
}
