package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ditatrack/internal/progress"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (progress.Update, error)
}

func (f *fakeFetcher) FetchStatus(ctx context.Context, jobID string) (progress.Update, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.fn == nil {
		return progress.Update{JobID: jobID}, nil
	}
	return f.fn(ctx, n)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDone(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StopsOnTerminal(t *testing.T) {
	f := &fakeFetcher{}
	var sunk atomic.Int32
	sink := func(ctx context.Context, u progress.Update) bool {
		return sunk.Add(1) == 3
	}
	s := New(f, sink, WithInterval(5*time.Millisecond), WithLogger(quietLogger()))
	if err := s.Start(context.Background(), "j1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, s)

	if got := f.Calls(); got != 3 {
		t.Fatalf("fetches = %d, want 3", got)
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", s.State())
	}
	time.Sleep(20 * time.Millisecond)
	if got := f.Calls(); got != 3 {
		t.Fatalf("fetched after terminal: %d calls", got)
	}
}

func TestScheduler_FetchErrorsKeepPolling(t *testing.T) {
	f := &fakeFetcher{fn: func(ctx context.Context, call int) (progress.Update, error) {
		if call < 3 {
			return progress.Update{}, errors.New("connection refused")
		}
		return progress.Update{JobID: "j1"}, nil
	}}
	var sunk atomic.Int32
	s := New(f, func(context.Context, progress.Update) bool {
		sunk.Add(1)
		return true
	}, WithInterval(time.Millisecond), WithLogger(quietLogger()))
	if err := s.Start(context.Background(), "j1"); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)
	if sunk.Load() != 1 {
		t.Fatalf("sink calls = %d, want 1", sunk.Load())
	}
	if f.Calls() != 3 {
		t.Fatalf("fetches = %d, want 3", f.Calls())
	}
}

func TestScheduler_NoFetchAfterStop(t *testing.T) {
	f := &fakeFetcher{}
	s := New(f, func(context.Context, progress.Update) bool { return false },
		WithInterval(time.Millisecond), WithLogger(quietLogger()))
	if err := s.Start(context.Background(), "j1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	after := f.Calls()
	time.Sleep(20 * time.Millisecond)
	if f.Calls() != after {
		t.Fatalf("fetches continued after Stop: %d -> %d", after, f.Calls())
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s", s.State())
	}
}

func TestScheduler_StopCancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	f := &fakeFetcher{fn: func(ctx context.Context, call int) (progress.Update, error) {
		close(started)
		<-ctx.Done()
		return progress.Update{JobID: "j1", Progress: progress.Int(80)}, nil
	}}
	var sunk atomic.Int32
	s := New(f, func(context.Context, progress.Update) bool {
		sunk.Add(1)
		return false
	}, WithLogger(quietLogger()))
	if err := s.Start(context.Background(), "j1"); err != nil {
		t.Fatal(err)
	}
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on in-flight fetch")
	}
	if sunk.Load() != 0 {
		t.Fatal("late result was delivered after Stop")
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := New(&fakeFetcher{}, func(context.Context, progress.Update) bool { return true }, WithLogger(quietLogger()))
	if s.State() != StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
	if err := s.Start(context.Background(), ""); err == nil {
		t.Fatal("empty job id accepted")
	}

	s.Stop()
	s.Stop()
	if s.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", s.State())
	}
	if err := s.Start(context.Background(), "j1"); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("Start after Stop: err = %v, want ErrNotIdle", err)
	}
	waitDone(t, s)
}

func TestScheduler_ContextCancel(t *testing.T) {
	f := &fakeFetcher{}
	s := New(f, func(context.Context, progress.Update) bool { return false },
		WithInterval(time.Millisecond), WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx, "j1"); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("second Start: err = %v, want ErrNotIdle", err)
	}
	cancel()
	waitDone(t, s)
	s.Stop()
}
