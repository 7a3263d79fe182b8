package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{TTL: time.Second, RetryAttempts: 3, RetryBackoff: 5 * time.Millisecond}
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker(Options{RetryAttempts: 50, RetryBackoff: 20 * time.Millisecond})

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), "pool:p1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder at a time, saw %d", maxInside)
	}
	if len(l.entries) != 0 {
		t.Errorf("expected entries to be cleaned up, got %d", len(l.entries))
	}
}

func TestMemoryLocker_Contention(t *testing.T) {
	l := NewMemoryLocker(testOptions())

	unlock, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unlock()

	_, err = l.Acquire(context.Background(), "k")
	if !errors.Is(err, ErrLockContention) {
		t.Errorf("expected ErrLockContention, got %v", err)
	}
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	l := NewMemoryLocker(Options{RetryAttempts: 100, RetryBackoff: 100 * time.Millisecond})

	unlock, _ := l.Acquire(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewMemoryLocker(testOptions())

	unlock, _ := l.Acquire(context.Background(), "k")
	unlock()
	unlock()

	again, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected re-acquire to succeed, got %v", err)
	}
	again()
}

type recordingLocker struct {
	mu    sync.Mutex
	order []string
	fail  string
}

func (r *recordingLocker) Acquire(_ context.Context, key string) (Unlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == r.fail {
		return nil, ErrLockContention
	}
	r.order = append(r.order, "+"+key)
	return func() {
		r.mu.Lock()
		r.order = append(r.order, "-"+key)
		r.mu.Unlock()
	}, nil
}

func TestAcquireAll_SortsAndDedupes(t *testing.T) {
	r := &recordingLocker{}

	unlock, err := AcquireAll(context.Background(), r, "target:b", "", "owner:a", "target:b", "pool:c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unlock()

	want := []string{"+owner:a", "+pool:c", "+target:b", "-target:b", "-pool:c", "-owner:a"}
	if len(r.order) != len(want) {
		t.Fatalf("expected %v, got %v", want, r.order)
	}
	for i := range want {
		if r.order[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], r.order[i])
		}
	}
}

func TestAcquireAll_ReleasesOnFailure(t *testing.T) {
	r := &recordingLocker{fail: "pool:c"}

	_, err := AcquireAll(context.Background(), r, "target:b", "owner:a", "pool:c")
	if !errors.Is(err, ErrLockContention) {
		t.Fatalf("expected ErrLockContention, got %v", err)
	}

	want := []string{"+owner:a", "-owner:a"}
	if len(r.order) != len(want) || r.order[0] != want[0] || r.order[1] != want[1] {
		t.Errorf("expected %v, got %v", want, r.order)
	}
}

type flakyBackend struct {
	freeAfter int
	calls     int
	err       error
}

func (f *flakyBackend) tryAcquire(context.Context, string, string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.calls > f.freeAfter, nil
}

func (f *flakyBackend) release(context.Context, string, string) error { return nil }

func TestAcquireWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		backend   *flakyBackend
		wantErr   error
		wantCalls int
	}{
		{name: "free immediately", backend: &flakyBackend{}, wantCalls: 1},
		{name: "free on last attempt", backend: &flakyBackend{freeAfter: 2}, wantCalls: 3},
		{name: "never free", backend: &flakyBackend{freeAfter: 10}, wantErr: ErrLockContention, wantCalls: 3},
		{name: "backend error", backend: &flakyBackend{err: errors.New("boom")}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := acquireWithRetry(context.Background(), tt.backend, "k", "tok", testOptions())
			if tt.backend.err != nil {
				if err == nil {
					t.Errorf("expected backend error")
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.backend.calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, tt.backend.calls)
			}
		})
	}
}
