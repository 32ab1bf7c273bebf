// Package poller drives periodic status fetches for one job until the job
// reaches a terminal state or the scheduler is stopped.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ditatrack/internal/progress"
)

// DefaultInterval is the pause between two fetches.
const DefaultInterval = time.Second

// ErrNotIdle is returned by Start on a scheduler that already ran.
var ErrNotIdle = errors.New("poller: scheduler is not idle")

// Fetcher is the part of the status client the scheduler needs.
type Fetcher interface {
	FetchStatus(ctx context.Context, jobID string) (progress.Update, error)
}

// Sink receives each fetched update and reports whether the job is now
// terminal. It is called from the scheduler goroutine and must not call
// Stop.
type Sink func(ctx context.Context, u progress.Update) (terminal bool)

type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

type Option func(*Scheduler)

// WithInterval overrides DefaultInterval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler runs at most one fetch at a time; a slow fetch delays the next
// tick rather than overlapping it.
type Scheduler struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetcher Fetcher, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:  fetcher,
		sink:     sink,
		interval: DefaultInterval,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start moves Idle to Polling: one fetch immediately, then one per interval.
func (s *Scheduler) Start(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("poller: empty job id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrNotIdle
	}
	ctx, cancel := context.WithCancel(ctx)
	s.state = StatePolling
	s.cancel = cancel
	go s.loop(ctx, jobID)
	return nil
}

// Stop cancels any in-flight fetch and waits for the loop to exit. It is
// idempotent and safe in every state; no fetch starts after it returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateStopped
		close(s.done)
		s.mu.Unlock()
		return
	case StatePolling:
		s.cancel()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the scheduler reaches Stopped.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) loop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		s.state = StateStopped
		s.cancel()
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		if s.tick(ctx, jobID) {
			s.logger.Debug("polling finished", "job_id", jobID)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick reports whether polling should end.
func (s *Scheduler) tick(ctx context.Context, jobID string) bool {
	u, err := s.fetcher.FetchStatus(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		s.logger.Warn("status fetch failed", "job_id", jobID, "error", err)
		return false
	}
	return s.sink(ctx, u)
}
