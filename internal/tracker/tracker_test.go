package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"ditatrack/internal/events"
	"ditatrack/internal/progress"
	"ditatrack/internal/render"
	"ditatrack/internal/stagedetail"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	updates []progress.Update
	err     error
	calls   int
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, jobID string) (progress.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return progress.Update{}, f.err
	}
	i := min(f.calls-1, len(f.updates)-1)
	u := f.updates[i]
	u.JobID = jobID
	return u, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingReporter struct {
	mu     sync.Mutex
	frames []render.Frame
}

func (r *recordingReporter) Render(f render.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recordingReporter) last() render.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type notice struct {
	msg   string
	level render.Level
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(msg string, level render.Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{msg, level})
}

type fakeChannel struct {
	updates    chan progress.Update
	err        error
	subscribed chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{updates: make(chan progress.Update, 4), subscribed: make(chan struct{})}
}

func (f *fakeChannel) Subscribe(ctx context.Context, jobID string) (<-chan progress.Update, error) {
	if f.err != nil {
		return nil, f.err
	}
	close(f.subscribed)
	return f.updates, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeLoader struct {
	detail stagedetail.Detail
	err    error
}

func (f fakeLoader) Load(ctx context.Context, jobID string, idx progress.StageIndex) (stagedetail.Detail, error) {
	if f.err != nil {
		return stagedetail.Detail{}, f.err
	}
	d := f.detail
	d.JobID, d.Stage, d.Title = jobID, idx, idx.Title()
	return d, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func running(p int) progress.Update {
	return progress.Update{Progress: progress.Int(p), Status: progress.StatusPtr(progress.StatusRunning)}
}

func completed() progress.Update {
	return progress.Update{Progress: progress.Int(100), Status: progress.StatusPtr(progress.StatusCompleted), Message: progress.String("Conversion complete")}
}

func newTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithPollInterval(5 * time.Millisecond)}, opts...)
	tr, err := New("j1", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNew_MissingJobID(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrMissingJobID) {
		t.Fatalf("err = %v, want ErrMissingJobID", err)
	}
}

func TestRun_PollsToCompletion(t *testing.T) {
	f := &scriptedFetcher{updates: []progress.Update{running(0), running(55), running(85), completed()}}
	rep := &recordingReporter{}
	tr := newTracker(t,
		WithFetcher(f),
		WithReporter(rep),
		WithLinks(render.Links{Result: "http://w/api/download/result/j1"}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := tr.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != progress.StatusCompleted || job.Progress != 100 {
		t.Fatalf("job = %s %d", job.Status, job.Progress)
	}

	// initial frame plus one per changed snapshot
	if got := rep.count(); got != 5 {
		t.Errorf("frames = %d, want 5", got)
	}
	last := rep.last()
	if !last.Terminal || !last.Actions.ShowDownload || last.DownloadURL == "" {
		t.Errorf("last frame = %+v", last)
	}

	calls := f.callCount()
	time.Sleep(20 * time.Millisecond)
	if f.callCount() != calls {
		t.Error("fetcher called after Run returned")
	}
}

func TestRun_PushCompletesJob(t *testing.T) {
	f := &scriptedFetcher{updates: []progress.Update{running(10)}}
	ch := newFakeChannel()
	tr := newTracker(t, WithFetcher(f), WithEvents(ch))

	go func() {
		<-ch.subscribed
		ch.updates <- progress.Update{JobID: "j1", Progress: progress.Int(45), Status: progress.StatusPtr(progress.StatusRunning)}
		ch.updates <- progress.Update{JobID: "j1", Status: progress.StatusPtr(progress.StatusCompleted), Progress: progress.Int(100)}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := tr.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != progress.StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestRun_SubscribeFailureFallsBackToPolling(t *testing.T) {
	f := &scriptedFetcher{updates: []progress.Update{running(30), completed()}}
	ch := newFakeChannel()
	ch.err = events.ErrUnavailable
	tr := newTracker(t, WithFetcher(f), WithEvents(ch))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := tr.Run(ctx)
	if err != nil || job.Status != progress.StatusCompleted {
		t.Fatalf("Run = %s, %v", job.Status, err)
	}
}

func TestRun_ContextCancelTearsDown(t *testing.T) {
	f := &scriptedFetcher{updates: []progress.Update{running(20)}}
	tr := newTracker(t, WithFetcher(f), WithEvents(newFakeChannel()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	job, err := tr.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if job.Terminal() {
		t.Errorf("job unexpectedly terminal: %s", job.Status)
	}

	calls := f.callCount()
	time.Sleep(30 * time.Millisecond)
	if f.callCount() != calls {
		t.Error("fetcher called after Run returned")
	}
	if _, err := tr.Submit(ctx, completed()); err == nil {
		t.Error("Submit after cancel should fail")
	}
	if tr.Snapshot().Terminal() {
		t.Error("update applied after cancel")
	}
}

func TestRun_FetchErrorsKeepPolling(t *testing.T) {
	f := &scriptedFetcher{err: errors.New("connection refused")}
	tr := newTracker(t, WithFetcher(f))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if _, err := tr.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if f.callCount() < 2 {
		t.Errorf("calls = %d, want retries", f.callCount())
	}
}

func TestRun_NoFetcher(t *testing.T) {
	tr := newTracker(t)
	if _, err := tr.Run(context.Background()); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("err = %v", err)
	}
}

// A first poll, a push that reports stage 1 done at 100 overall, then a
// failure event naming stage 3.
func TestSubmit_MixedSourcesScenario(t *testing.T) {
	rep := &recordingReporter{}
	tr := newTracker(t, WithReporter(rep))
	ctx := context.Background()

	steps := []struct {
		name      string
		update    progress.Update
		wantJob   progress.Status
		wantPct   int
		wantStage [progress.StageCount]progress.Status
	}{
		{
			name:      "first poll",
			update:    progress.Update{JobID: "j1", Progress: progress.Int(0), Status: progress.StatusPtr(progress.StatusRunning)},
			wantJob:   progress.StatusRunning,
			wantPct:   0,
			wantStage: [4]progress.Status{progress.StatusPending, progress.StatusPending, progress.StatusPending, progress.StatusPending},
		},
		{
			name: "push with stage 1 complete",
			update: progress.Update{JobID: "j1", Progress: progress.Int(100), Stages: map[progress.StageIndex]progress.StageUpdate{
				1: {Status: progress.StatusPtr(progress.StatusCompleted)},
			}},
			wantJob:   progress.StatusRunning,
			wantPct:   99,
			wantStage: [4]progress.Status{progress.StatusCompleted, progress.StatusPending, progress.StatusPending, progress.StatusPending},
		},
		{
			name: "failure in stage 3",
			update: progress.Update{JobID: "j1", Status: progress.StatusPtr(progress.StatusFailed),
				FailedStage: 3, Error: progress.String("topic conversion failed")},
			wantJob:   progress.StatusFailed,
			wantPct:   99,
			wantStage: [4]progress.Status{progress.StatusCompleted, progress.StatusCompleted, progress.StatusFailed, progress.StatusPending},
		},
	}
	for _, step := range steps {
		terminal, err := tr.Submit(ctx, step.update)
		if err != nil {
			t.Fatalf("%s: Submit: %v", step.name, err)
		}
		job := tr.Snapshot()
		if job.Status != step.wantJob || job.Progress != step.wantPct {
			t.Errorf("%s: job = %s %d, want %s %d", step.name, job.Status, job.Progress, step.wantJob, step.wantPct)
		}
		for i, st := range job.Stages {
			if st.Status != step.wantStage[i] {
				t.Errorf("%s: stage %d = %s, want %s", step.name, i+1, st.Status, step.wantStage[i])
			}
		}
		if terminal != job.Terminal() {
			t.Errorf("%s: terminal = %v", step.name, terminal)
		}
	}

	f := tr.Frame()
	if !f.Actions.ShowRetryHint || f.Message.Level != render.LevelError {
		t.Errorf("frame = %+v", f)
	}
	select {
	case <-tr.Done():
	default:
		t.Error("Done not closed after failure")
	}

	before := rep.count()
	if _, err := tr.Submit(ctx, completed()); err != nil {
		t.Fatal(err)
	}
	if rep.count() != before || tr.Snapshot().Status != progress.StatusFailed {
		t.Error("terminal job changed after failure")
	}
}

func TestSubmit_WorkerLayerEvents(t *testing.T) {
	tests := []struct {
		name         string
		payloads     []string
		wantTerminal bool
		wantPct      int
		wantStage1   progress.Status
	}{
		{
			name:       "finished layer",
			payloads:   []string{`{"event":"progress_update","session_id":"j1","stage":"layer1","progress":100}`},
			wantPct:    40,
			wantStage1: progress.StatusCompleted,
		},
		{
			name:       "layer underway",
			payloads:   []string{`{"session_id":"j1","stage":"layer1","progress":60,"message":"parsing"}`},
			wantPct:    32,
			wantStage1: progress.StatusRunning,
		},
		{
			name: "error tag",
			payloads: []string{
				`{"event":"progress_update","session_id":"j1","stage":"layer1","progress":100}`,
				`{"event":"progress_update","session_id":"j1","stage":"error","progress":0,"error":"dita-ot exited 1"}`,
			},
			wantTerminal: true,
			wantPct:      40,
			wantStage1:   progress.StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t)
			var terminal bool
			for _, p := range tt.payloads {
				u, err := events.Normalize([]byte(p))
				if err != nil {
					t.Fatalf("Normalize: %v", err)
				}
				if terminal, err = tr.Submit(context.Background(), u); err != nil {
					t.Fatalf("Submit: %v", err)
				}
			}
			job := tr.Snapshot()
			if terminal != tt.wantTerminal {
				t.Errorf("terminal = %v, want %v (status %s)", terminal, tt.wantTerminal, job.Status)
			}
			if job.Progress != tt.wantPct {
				t.Errorf("progress = %d, want %d", job.Progress, tt.wantPct)
			}
			if got := job.Stage(1).Status; got != tt.wantStage1 {
				t.Errorf("stage 1 = %s, want %s", got, tt.wantStage1)
			}
		})
	}
}

func TestSubmit_UnchangedDoesNotRender(t *testing.T) {
	rep := &recordingReporter{}
	tr := newTracker(t, WithReporter(rep))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tr.Submit(ctx, running(40)); err != nil {
			t.Fatal(err)
		}
	}
	if rep.count() != 1 {
		t.Fatalf("frames = %d, want 1", rep.count())
	}
	if _, err := tr.Submit(ctx, progress.Update{JobID: "other", Progress: progress.Int(90)}); err != nil {
		t.Fatal(err)
	}
	if rep.count() != 1 || tr.Snapshot().Progress != 40 {
		t.Error("foreign update applied")
	}
}

func TestInspectStage(t *testing.T) {
	ctx := context.Background()

	t.Run("pending stage", func(t *testing.T) {
		n := &recordingNotifier{}
		tr := newTracker(t, WithNotifier(n), WithDetailLoader(fakeLoader{}))
		if _, err := tr.InspectStage(ctx, 2); err == nil {
			t.Fatal("expected error")
		}
		if len(n.notices) != 1 || n.notices[0].level != render.LevelError {
			t.Fatalf("notices = %+v", n.notices)
		}
	})

	t.Run("loader failure", func(t *testing.T) {
		n := &recordingNotifier{}
		tr := newTracker(t, WithNotifier(n), WithDetailLoader(fakeLoader{err: errors.New("stage not finished")}))
		_, _ = tr.Submit(ctx, completed())
		if _, err := tr.InspectStage(ctx, 1); err == nil {
			t.Fatal("expected error")
		}
		if len(n.notices) != 1 || !strings.Contains(n.notices[0].msg, "stage not finished") {
			t.Fatalf("notices = %+v", n.notices)
		}
	})

	t.Run("no loader", func(t *testing.T) {
		n := &recordingNotifier{}
		tr := newTracker(t, WithNotifier(n))
		if _, err := tr.InspectStage(ctx, 1); !errors.Is(err, ErrNoLoader) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("attaches summary after completion", func(t *testing.T) {
		rep := &recordingReporter{}
		loader := fakeLoader{detail: stagedetail.Detail{Semantic: &stagedetail.ChunkList{TotalChunks: 14}}}
		tr := newTracker(t, WithReporter(rep), WithDetailLoader(loader))
		_, _ = tr.Submit(ctx, completed())

		d, err := tr.InspectStage(ctx, 2)
		if err != nil {
			t.Fatalf("InspectStage: %v", err)
		}
		if d.Stage != 2 || d.JobID != "j1" {
			t.Errorf("detail = %+v", d)
		}
		ref := tr.Snapshot().Stage(2).Detail
		if ref == nil || ref.Summary != d.Summary() {
			t.Fatalf("detail ref = %+v", ref)
		}
		if got := rep.last().Stages[1].Detail; got != d.Summary() {
			t.Errorf("frame detail = %q", got)
		}
		if tr.Snapshot().Status != progress.StatusCompleted {
			t.Error("status changed by detail load")
		}
	})
}
