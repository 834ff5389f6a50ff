package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/kryos/kryos-api/pkg/logger"
)

type WorkerHandler = func(ctx context.Context, workerIndex int, job interface{})

var ErrWorkersTerminated = errors.New("workers terminated")

type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	do             WorkerHandler
	quit           chan struct{}
	quitOnce       sync.Once
	waiter         *sync.WaitGroup
}

// NewWorkerManager is a job manager based on goroutines. Jobs published with
// Enqueue are distributed among numberOfWorkers goroutines. A caller-owned
// jobChannel is never closed by the manager.
func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}

	return &WorkerManager{
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue publishes a job, blocking while the buffer is full. It gives up
// when ctx is done or the manager is exiting.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	select {
	case <-w.quit:
		return ErrWorkersTerminated
	default:
	}
	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrWorkersTerminated
	}
}

// Start runs the workers and blocks until ctx is cancelled or Exit is called.
// A job already picked up is always finished.
func (w *WorkerManager) Start(ctx context.Context) error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.run(ctx, index, job)
				case <-ctx.Done():
					return
				case <-w.quit:
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return ErrWorkersTerminated
}

func (w *WorkerManager) run(ctx context.Context, index int, job interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[worker] job panicked", "worker", index, "panic", r)
		}
	}()
	w.do(ctx, index, job)
}

// Exit stops all workers after their current job.
func (w *WorkerManager) Exit() {
	w.quitOnce.Do(func() {
		logger.Info("[worker] exit requested, shutting down worker manager")
		close(w.quit)
	})
}
