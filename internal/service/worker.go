package service

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

// WorkerPool runs one background unit of work per job. At most `workers`
// units run at once; the rest wait for a slot without blocking the caller.
type WorkerPool struct {
	sem     *semaphore.Weighted
	workers int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	jobs   map[string]*jobHandle
	closed bool
	wg     sync.WaitGroup
}

type jobHandle struct {
	cancel context.CancelFunc
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*jobHandle),
	}
}

// Submit schedules fn and returns immediately. fn runs exactly once; if the
// job is cancelled while still queued, fn receives an already-cancelled
// context so it can record the outcome.
func (wp *WorkerPool) Submit(jobID string, fn func(ctx context.Context)) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return ErrPoolClosed
	}
	ctx, cancel := context.WithCancel(wp.ctx)
	h := &jobHandle{cancel: cancel}
	wp.jobs[jobID] = h
	wp.wg.Add(1)
	wp.mu.Unlock()

	go wp.run(ctx, jobID, h, fn)
	return nil
}

func (wp *WorkerPool) run(ctx context.Context, jobID string, h *jobHandle, fn func(ctx context.Context)) {
	defer wp.wg.Done()
	defer wp.forget(jobID, h)
	defer h.cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Job(jobID).Error("worker panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := wp.sem.Acquire(ctx, 1); err != nil {
		fn(ctx)
		return
	}
	defer wp.sem.Release(1)

	logger.Job(jobID).Debug("worker slot acquired")
	fn(ctx)
}

func (wp *WorkerPool) forget(jobID string, h *jobHandle) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.jobs[jobID] == h {
		delete(wp.jobs, jobID)
	}
}

// Cancel signals the unit of work for jobID. It reports false when no such
// unit is queued or running.
func (wp *WorkerPool) Cancel(jobID string) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	h, ok := wp.jobs[jobID]
	if ok {
		h.cancel()
	}
	return ok
}

func (wp *WorkerPool) InFlight() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.jobs)
}

func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Shutdown stops accepting work and waits for running units. If ctx expires
// first, every unit is cancelled and Shutdown waits for them to unwind.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	wp.closed = true
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-ctx.Done():
		logger.Named("worker").Warn("shutdown deadline reached, cancelling jobs", zap.Int("in_flight", wp.InFlight()))
		wp.cancel()
		<-done
		return ctx.Err()
	}
}
