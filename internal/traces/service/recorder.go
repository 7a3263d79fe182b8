package service

import (
	"context"
	"slotkeeper/internal/traces/repository"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder writes resolution runs from a bounded queue on a fixed set of workers.
// Record never blocks the evaluation path.
type Recorder struct {
	repo    repository.RunRepository
	log     *logger.Logger
	timeout time.Duration
	queue   chan *model.AvailabilityResolutionRun

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewRecorder(repo repository.RunRepository, cfg *config.Config) *Recorder {
	r := &Recorder{
		repo:    repo,
		log:     cfg.Log.Component("trace_recorder"),
		timeout: cfg.TraceWriteTimeout,
		queue:   make(chan *model.AvailabilityResolutionRun, max(cfg.TraceBufferSize, 1)),
	}
	if r.timeout <= 0 {
		r.timeout = cfg.WriteTimeout
	}

	workers := max(cfg.TraceWorkers, 1)
	r.wg.Add(workers)
	for range workers {
		go r.work()
	}
	return r
}

// Record queues run for writing. A full queue drops the run.
func (r *Recorder) Record(run *model.AvailabilityResolutionRun) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.log.Warn("Resolution run offered after shutdown", "run_id", run.ID, "calendar_id", run.CalendarID)
		return
	}
	select {
	case r.queue <- run:
	default:
		dropped := r.dropped.Add(1)
		r.log.Warn("Trace queue full, dropping resolution run",
			"run_id", run.ID,
			"tenant_id", run.TenantID,
			"calendar_id", run.CalendarID,
			"dropped_total", dropped,
		)
	}
}

func (r *Recorder) work() {
	defer r.wg.Done()
	for run := range r.queue {
		r.write(run)
	}
}

func (r *Recorder) write(run *model.AvailabilityResolutionRun) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.repo.Insert(ctx, run); err != nil {
		r.failed.Add(1)
		r.log.Error("Failed to write resolution run",
			"run_id", run.ID,
			"tenant_id", run.TenantID,
			"calendar_id", run.CalendarID,
			"error", err,
		)
	}
}

// Close stops accepting runs and waits for the queue to drain or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("Trace recorder drained", "dropped", r.dropped.Load(), "failed", r.failed.Load())
		return nil
	case <-ctx.Done():
		r.log.Warn("Trace recorder drain timed out", "pending", len(r.queue), "error", ctx.Err())
		return ctx.Err()
	}
}

func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) Failed() int64 { return r.failed.Load() }
