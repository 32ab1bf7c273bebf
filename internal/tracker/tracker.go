// Package tracker follows one conversion job: it polls the worker, listens
// to the push channel when one exists, folds every update into a single
// progress.Job and hands each changed frame to a Reporter.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ditatrack/internal/events"
	"ditatrack/internal/poller"
	"ditatrack/internal/progress"
	"ditatrack/internal/render"
	"ditatrack/internal/stagedetail"
)

var (
	ErrMissingJobID = errors.New("tracker: missing job id")
	ErrNoFetcher    = errors.New("tracker: no status fetcher configured")
	ErrNoLoader     = errors.New("tracker: no stage detail loader configured")
)

// Reporter draws frames. Render is called with the tracker lock released,
// at most once per accepted change, in merge order.
type Reporter interface {
	Render(f render.Frame)
}

// Notifier shows a transient message outside the frame.
type Notifier interface {
	Notify(msg string, level render.Level)
}

// DetailLoader fetches the payload behind one completed stage.
type DetailLoader interface {
	Load(ctx context.Context, jobID string, idx progress.StageIndex) (stagedetail.Detail, error)
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(render.Frame)

func (f ReporterFunc) Render(fr render.Frame) { f(fr) }

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(string, render.Level)

func (f NotifierFunc) Notify(msg string, level render.Level) { f(msg, level) }

type discardReporter struct{}

func (discardReporter) Render(render.Frame) {}

type discardNotifier struct{}

func (discardNotifier) Notify(string, render.Level) {}

type Option func(*Tracker)

func WithFetcher(f poller.Fetcher) Option { return func(t *Tracker) { t.fetcher = f } }

// WithEvents sets the push channel. A nil channel means polling only.
func WithEvents(ch events.Channel) Option {
	return func(t *Tracker) {
		if ch != nil {
			t.events = ch
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(t *Tracker) {
		if r != nil {
			t.reporter = r
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		if n != nil {
			t.notifier = n
		}
	}
}

func WithDetailLoader(l DetailLoader) Option { return func(t *Tracker) { t.loader = l } }

func WithReconciler(r progress.Reconciler) Option { return func(t *Tracker) { t.reconciler = r } }

func WithPollInterval(d time.Duration) Option { return func(t *Tracker) { t.interval = d } }

func WithLinks(l render.Links) Option { return func(t *Tracker) { t.links = l } }

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker owns the job state. All merges go through Submit and are
// serialised, so updates from the poller and the push channel are applied
// in arrival order.
type Tracker struct {
	jobID      string
	fetcher    poller.Fetcher
	events     events.Channel
	reporter   Reporter
	notifier   Notifier
	loader     DetailLoader
	reconciler progress.Reconciler
	interval   time.Duration
	links      render.Links
	logger     *slog.Logger

	mu       sync.Mutex
	job      progress.Job
	frame    render.Frame
	terminal chan struct{}
	once     sync.Once

	// renderMu keeps Render calls in merge order without holding mu.
	renderMu sync.Mutex
}

func New(jobID string, opts ...Option) (*Tracker, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}
	t := &Tracker{
		jobID:    jobID,
		events:   events.Absent{},
		reporter: discardReporter{},
		notifier: discardNotifier{},
		interval: poller.DefaultInterval,
		logger:   slog.Default(),
		job:      progress.NewJob(jobID),
		terminal: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("job_id", jobID)
	t.frame = render.Project(t.job, t.links)
	return t, nil
}

// Snapshot returns the current job state.
func (t *Tracker) Snapshot() progress.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// Frame returns the most recently projected frame.
func (t *Tracker) Frame() render.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}

// Done is closed once the job reaches a terminal state.
func (t *Tracker) Done() <-chan struct{} { return t.terminal }

// Run tracks the job until it is terminal or ctx ends. The poller and the
// subscription are torn down on every exit path.
func (t *Tracker) Run(ctx context.Context) (progress.Job, error) {
	if t.fetcher == nil {
		return t.Snapshot(), ErrNoFetcher
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.renderFrame(t.Frame())

	sched := poller.New(t.fetcher, func(ctx context.Context, u progress.Update) bool {
		terminal, err := t.Submit(ctx, u)
		if err != nil {
			t.logger.Debug("poll update dropped", "error", err)
		}
		return terminal
	}, poller.WithInterval(t.interval), poller.WithLogger(t.logger))
	if err := sched.Start(ctx, t.jobID); err != nil {
		return t.Snapshot(), fmt.Errorf("start poller: %w", err)
	}
	defer sched.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	updates, err := t.events.Subscribe(ctx, t.jobID)
	switch {
	case err != nil:
		t.logger.Info("push channel unavailable, polling only", "error", err)
	default:
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.consume(ctx, updates)
		}()
	}

	select {
	case <-t.terminal:
		job := t.Snapshot()
		t.logger.Info("job finished", "status", job.Status.String(), "progress", job.Progress)
		return job, nil
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

func (t *Tracker) consume(ctx context.Context, updates <-chan progress.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				t.logger.Debug("push channel closed")
				return
			}
			terminal, err := t.Submit(ctx, u)
			if err != nil {
				t.logger.Debug("push update dropped", "error", err)
			}
			if terminal {
				return
			}
		}
	}
}

// Submit merges one update and reports whether the job is terminal
// afterwards. Updates arriving after ctx ended are discarded.
func (t *Tracker) Submit(ctx context.Context, u progress.Update) (bool, error) {
	if err := ctx.Err(); err != nil {
		return t.Snapshot().Terminal(), err
	}

	t.renderMu.Lock()
	defer t.renderMu.Unlock()

	t.mu.Lock()
	next, out := t.reconciler.Merge(t.job, u)
	for _, d := range out.Discrepancies {
		t.logger.Debug("update discrepancy", "detail", d.String())
	}
	if !out.Changed {
		terminal := t.job.Terminal()
		t.mu.Unlock()
		return terminal, nil
	}
	t.job = next
	t.frame = render.Project(next, t.links)
	frame := t.frame
	terminal := next.Terminal()
	t.mu.Unlock()

	t.reporter.Render(frame)
	if terminal {
		t.once.Do(func() { close(t.terminal) })
	}
	return terminal, nil
}

// InspectStage loads the detail of a completed stage and attaches its
// summary to the job. It is allowed after the job has finished. Failures
// are reported through the Notifier and returned.
func (t *Tracker) InspectStage(ctx context.Context, idx progress.StageIndex) (stagedetail.Detail, error) {
	if t.loader == nil {
		t.notifier.Notify("Stage details are not available.", render.LevelError)
		return stagedetail.Detail{}, ErrNoLoader
	}
	if !idx.Valid() {
		err := fmt.Errorf("invalid stage %d", idx)
		t.notifier.Notify(err.Error(), render.LevelError)
		return stagedetail.Detail{}, err
	}
	if st := t.Snapshot().Stage(idx); st.Status != progress.StatusCompleted {
		err := fmt.Errorf("%s has not completed", idx.Title())
		t.notifier.Notify(err.Error(), render.LevelError)
		return stagedetail.Detail{}, err
	}

	d, err := t.loader.Load(ctx, t.jobID, idx)
	if err != nil {
		t.logger.Warn("stage detail failed", "stage", idx.Key(), "error", err)
		t.notifier.Notify(fmt.Sprintf("Could not load %s details: %v", idx.Title(), err), render.LevelError)
		return stagedetail.Detail{}, err
	}

	t.renderMu.Lock()
	defer t.renderMu.Unlock()
	t.mu.Lock()
	next := t.job.WithStageDetail(idx, progress.StageDetailRef{Summary: d.Summary()})
	changed := !next.Equal(t.job)
	t.job = next
	t.frame = render.Project(next, t.links)
	frame := t.frame
	t.mu.Unlock()

	if changed {
		t.reporter.Render(frame)
	}
	return d, nil
}

func (t *Tracker) renderFrame(f render.Frame) {
	t.renderMu.Lock()
	defer t.renderMu.Unlock()
	t.reporter.Render(f)
}
