package workersim

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ditatrack/internal/events"
	"ditatrack/internal/progress"
	"ditatrack/internal/stagedetail"
	"ditatrack/internal/status"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSim(t *testing.T, cfg Config) (*Server, *status.Client) {
	t.Helper()
	cfg.Logger = quietLogger()
	s := New(cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	c, err := status.New(status.Config{
		BaseURL:           srv.URL,
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		Logger:            quietLogger(),
	})
	if err != nil {
		t.Fatalf("status.New: %v", err)
	}
	return s, c
}

// drive advances id to a terminal state, reconciling every snapshot.
func drive(t *testing.T, s *Server, c *status.Client, id string) progress.Job {
	t.Helper()
	ctx := context.Background()
	r := progress.Reconciler{}
	job := progress.NewJob(id)
	last := -1
	for i := 0; i < 50; i++ {
		u, err := c.FetchStatus(ctx, id)
		if err != nil {
			t.Fatalf("FetchStatus: %v", err)
		}
		job, _ = r.Merge(job, u)
		if job.Progress < last {
			t.Fatalf("progress went backwards: %d -> %d", last, job.Progress)
		}
		last = job.Progress
		if job.Terminal() {
			return job
		}
		if _, err := s.Advance(ctx, id); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	t.Fatal("session never finished")
	return job
}

func TestSession_CompletesThroughAllStages(t *testing.T) {
	for _, reportStages := range []bool{false, true} {
		name := "overall only"
		if reportStages {
			name = "with stages"
		}
		t.Run(name, func(t *testing.T) {
			pub := &recordingPublisher{}
			s, c := newSim(t, Config{ReportStages: reportStages, Publisher: pub})
			id := s.CreateSession("manual.pdf")
			if err := c.StartJob(context.Background(), id); err != nil {
				t.Fatalf("StartJob: %v", err)
			}

			job := drive(t, s, c, id)
			if job.Status != progress.StatusCompleted || job.Progress != 100 {
				t.Fatalf("job = %s %d", job.Status, job.Progress)
			}
			for _, st := range job.Stages {
				if st.Status != progress.StatusCompleted {
					t.Errorf("stage %d = %s", st.Index, st.Status)
				}
			}
			if job.Filename != "manual.pdf" {
				t.Errorf("filename = %q", job.Filename)
			}
			kinds := pub.kinds()
			if len(kinds) == 0 || kinds[len(kinds)-1] != events.KindComplete {
				t.Errorf("events = %v", kinds)
			}
		})
	}
}

func TestSession_OverallStaysBelowCompleteUntilDone(t *testing.T) {
	s, _ := newSim(t, Config{})
	ctx := context.Background()
	id := s.CreateSession("a.docx")
	if err := s.Start(ctx, id); err != nil {
		t.Fatal(err)
	}
	for {
		done, err := s.Advance(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		sess, _ := s.snapshot(id)
		if done {
			if sess.Progress != 100 || sess.State != StateCompleted {
				t.Fatalf("final = %s %d", sess.State, sess.Progress)
			}
			return
		}
		if sess.Progress > 99 {
			t.Fatalf("progress %d before completion", sess.Progress)
		}
	}
}

func TestSession_FailAt(t *testing.T) {
	pub := &recordingPublisher{}
	s, c := newSim(t, Config{FailAt: 3, ReportStages: true, Publisher: pub})
	id := s.CreateSession("broken.pdf")
	if err := s.Start(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	job := drive(t, s, c, id)
	if job.Status != progress.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	want := []progress.Status{progress.StatusCompleted, progress.StatusCompleted, progress.StatusFailed, progress.StatusPending}
	for i, st := range job.Stages {
		if st.Status != want[i] {
			t.Errorf("stage %d = %s, want %s", i+1, st.Status, want[i])
		}
	}
	if !strings.Contains(job.Message, "Format conversion") {
		t.Errorf("message = %q", job.Message)
	}

	pub.mu.Lock()
	last := pub.events[len(pub.events)-1]
	pub.mu.Unlock()
	if last.Kind != events.KindError || last.Stage != "layer3" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestPublishedEvents_Normalize(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newSim(t, Config{Publisher: pub})
	ctx := context.Background()
	id := s.CreateSession("a.pdf")
	_ = s.Start(ctx, id)
	for {
		done, _ := s.Advance(ctx, id)
		if done {
			break
		}
	}

	r := progress.Reconciler{}
	job := progress.NewJob(id)
	pub.mu.Lock()
	evs := append([]events.Event(nil), pub.events...)
	pub.mu.Unlock()
	for _, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		u, err := events.Normalize(payload)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", payload, err)
		}
		job, _ = r.Merge(job, u)
	}
	if job.Status != progress.StatusCompleted {
		t.Fatalf("status = %s after %d events", job.Status, len(evs))
	}
}

func TestHTTP_LayerAndDownload(t *testing.T) {
	s, c := newSim(t, Config{})
	ctx := context.Background()
	id := s.CreateSession("guide.pdf")

	if _, err := c.StageDetailRaw(ctx, id, 1); !status.IsKind(err, status.KindHTTP) {
		t.Fatalf("stage before start: err = %v", err)
	}
	var buf bytes.Buffer
	if _, _, err := c.Download(ctx, c.ResultURL(id), &buf); !status.IsKind(err, status.KindHTTP) {
		t.Fatalf("download before completion: err = %v", err)
	}

	_ = s.Start(ctx, id)
	for {
		done, _ := s.Advance(ctx, id)
		if done {
			break
		}
	}

	loader := stagedetail.Loader{Source: c, Logger: quietLogger()}
	for i := 1; i <= progress.StageCount; i++ {
		idx := progress.StageIndex(i)
		d, err := loader.Load(ctx, id, idx)
		if err != nil {
			t.Fatalf("Load(%s): %v", idx.Layer(), err)
		}
		if d.Summary() == "" {
			t.Errorf("%s: empty summary", idx.Layer())
		}
	}

	buf.Reset()
	n, name, err := c.Download(ctx, c.ResultURL(id), &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if name != "converted_guide.pdf.zip" || n == 0 {
		t.Errorf("download = %d bytes, %q", n, name)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("zip entries = %d", len(zr.File))
	}
}

func TestHTTP_Errors(t *testing.T) {
	s, c := newSim(t, Config{})
	ctx := context.Background()

	if _, err := c.FetchStatus(ctx, "missing"); !status.IsKind(err, status.KindHTTP) {
		t.Errorf("unknown session: err = %v", err)
	}
	if err := c.StartJob(ctx, "missing"); !status.IsKind(err, status.KindHTTP) {
		t.Errorf("start unknown: err = %v", err)
	}
	if err := c.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/api/upload", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("upload without filename = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
}

func TestRun_AutoAdvances(t *testing.T) {
	s := New(Config{Step: 5 * time.Millisecond, Logger: quietLogger()})
	id := s.CreateSession("a.pdf")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Start(ctx, id)

	go s.Run(ctx)
	for {
		if sess, _ := s.snapshot(id); sess.State == StateCompleted {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("session never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
