package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slotkeeper/internal/traces/repository"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"testing"
	"time"
)

const tenant = "tenant-1"

var created = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func testConfig(buffer, workers int) *config.Config {
	return &config.Config{
		Log:               logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		TraceBufferSize:   buffer,
		TraceWorkers:      workers,
		TraceWriteTimeout: time.Second,
	}
}

func newRun(i int) *model.AvailabilityResolutionRun {
	return &model.AvailabilityResolutionRun{
		ID:         fmt.Sprintf("run-%03d", i),
		TenantID:   tenant,
		CalendarID: "cal-1",
		Status:     model.RunComplete,
		CreatedAt:  created.Add(time.Duration(i) * time.Second),
	}
}

// gatedRepository blocks every insert until the gate opens.
type gatedRepository struct {
	*repository.MemoryRunRepository
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedRepository() *gatedRepository {
	return &gatedRepository{
		MemoryRunRepository: repository.NewMemoryRunRepository(),
		started:             make(chan struct{}, 100),
		gate:                make(chan struct{}),
	}
}

func (g *gatedRepository) Insert(ctx context.Context, run *model.AvailabilityResolutionRun) error {
	g.started <- struct{}{}
	<-g.gate
	return g.MemoryRunRepository.Insert(ctx, run)
}

func (g *gatedRepository) open() { g.once.Do(func() { close(g.gate) }) }

func TestRecorder_WritesEveryRunBeforeClose(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	rec := NewRecorder(repo, testConfig(64, 4))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(newRun(i))
		}()
	}
	wg.Wait()

	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if repo.Count() != 50 {
		t.Errorf("expected 50 runs written, got %d", repo.Count())
	}
	if rec.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", rec.Dropped())
	}
}

func TestRecorder_DropsWhenQueueIsFull(t *testing.T) {
	repo := newGatedRepository()
	rec := NewRecorder(repo, testConfig(2, 1))
	defer repo.open()

	rec.Record(newRun(0))
	<-repo.started

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			rec.Record(newRun(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	if rec.Dropped() != 3 {
		t.Errorf("expected 3 dropped runs, got %d", rec.Dropped())
	}

	repo.open()
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if repo.Count() != 3 {
		t.Errorf("expected 3 runs written, got %d", repo.Count())
	}
}

func TestRecorder_CloseTimesOut(t *testing.T) {
	repo := newGatedRepository()
	rec := NewRecorder(repo, testConfig(4, 1))
	defer repo.open()

	rec.Record(newRun(0))
	<-repo.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rec.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// runs offered after close are ignored
	rec.Record(newRun(1))
	if err := rec.Close(context.Background()); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}
}

func TestRecorder_CountsWriteFailures(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	repo.Err = errors.New("not primary")
	rec := NewRecorder(repo, testConfig(8, 2))

	for i := range 3 {
		rec.Record(newRun(i))
	}
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if rec.Failed() != 3 {
		t.Errorf("expected 3 failed writes, got %d", rec.Failed())
	}
}
