package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManager_ProcessesJobs(t *testing.T) {
	wm := NewWorkerManager(10, 3, nil)

	var processed int64
	var wg sync.WaitGroup
	wg.Add(5)
	wm.SetWorker(func(ctx context.Context, workerIndex int, job interface{}) {
		atomic.AddInt64(&processed, int64(job.(int)))
		wg.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- wm.Start(ctx) }()

	for i := 1; i <= 5; i++ {
		require.NoError(t, wm.Enqueue(ctx, i))
	}
	wg.Wait()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrWorkersTerminated)
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
	assert.Equal(t, int64(15), atomic.LoadInt64(&processed))
}

func TestWorkerManager_ExitStopsWorkers(t *testing.T) {
	wm := NewWorkerManager(1, 2, nil)
	wm.SetWorker(func(ctx context.Context, workerIndex int, job interface{}) {})

	done := make(chan error, 1)
	go func() { done <- wm.Start(context.Background()) }()

	wm.Exit()
	wm.Exit()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrWorkersTerminated)
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}

	assert.ErrorIs(t, wm.Enqueue(context.Background(), 1), ErrWorkersTerminated)
}

func TestWorkerManager_RecoversPanics(t *testing.T) {
	wm := NewWorkerManager(4, 1, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	var ok int64
	wm.SetWorker(func(ctx context.Context, workerIndex int, job interface{}) {
		defer wg.Done()
		if job.(string) == "boom" {
			panic("boom")
		}
		atomic.AddInt64(&ok, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = wm.Start(ctx) }()

	require.NoError(t, wm.Enqueue(ctx, "boom"))
	require.NoError(t, wm.Enqueue(ctx, "fine"))
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&ok))
}

func TestWorkerManager_StartWithoutHandler(t *testing.T) {
	wm := NewWorkerManager(1, 1, nil)
	assert.Error(t, wm.Start(context.Background()))
}
