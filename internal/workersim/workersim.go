// Package workersim is an in-memory stand-in for the conversion worker. It
// serves the worker's HTTP API, advances sessions through the four stages
// on demand or on a timer, and optionally publishes push events.
package workersim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ditatrack/internal/events"
	"ditatrack/internal/progress"
)

// Session states, in the worker's vocabulary.
const (
	StateUploaded   = "uploaded"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateError      = "error"
)

// StageStep is how far one Advance moves the running stage.
const StageStep = 25

type Config struct {
	// Step enables auto-advance in Run; zero means sessions only move on
	// explicit Advance calls.
	Step time.Duration
	// ReportStages adds the per-stage map to status responses. Without it
	// clients only see overall progress.
	ReportStages bool
	// FailAt makes sessions fail halfway through the given stage.
	FailAt    progress.StageIndex
	Publisher events.Publisher
	Logger    *slog.Logger
}

type session struct {
	ID            string
	Filename      string
	State         string
	Progress      int
	Message       string
	Stage         progress.StageIndex
	StageProgress int
	Error         string
	Created       time.Time
}

// Server holds every session in memory.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger, sessions: make(map[string]*session)}
}

// CreateSession registers an uploaded file and returns its session id.
func (s *Server) CreateSession(filename string) string {
	id := uuid.NewString()
	s.AddSession(id, filename)
	return id
}

// AddSession registers a session under a caller-chosen id.
func (s *Server) AddSession(id, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{
		ID:       id,
		Filename: filename,
		State:    StateUploaded,
		Message:  "File uploaded",
		Created:  time.Now(),
	}
}

// Start moves an uploaded session to processing. Starting a session that
// already left uploaded is a no-op.
func (s *Server) Start(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s not found", id)
	}
	if sess.State != StateUploaded {
		s.mu.Unlock()
		return nil
	}
	sess.State = StateProcessing
	sess.Progress = 10
	sess.Message = "Initializing conversion"
	ev := events.Event{Kind: events.KindProgress, SessionID: id, Progress: progress.Int(sess.Progress), Message: sess.Message}
	s.mu.Unlock()

	s.publish(ctx, ev)
	return nil
}

// Advance moves a processing session one step forward and reports whether
// it is now finished.
func (s *Server) Advance(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("session %s not found", id)
	}
	if sess.State != StateProcessing {
		done := sess.State == StateCompleted || sess.State == StateError
		s.mu.Unlock()
		return done, nil
	}
	ev := s.step(sess)
	done := sess.State != StateProcessing
	s.mu.Unlock()

	s.publish(ctx, ev)
	return done, nil
}

// step mutates sess and returns the event describing the change.
func (s *Server) step(sess *session) events.Event {
	bp := progress.DefaultBreakpoints
	switch {
	case sess.Stage == 0:
		sess.Stage = 1
		sess.StageProgress = 0
	case sess.StageProgress >= 100 && sess.Stage == progress.StageCount:
		sess.State = StateCompleted
		sess.Progress = 100
		sess.Message = "Conversion complete"
		return events.Event{Kind: events.KindComplete, SessionID: sess.ID, OutputDir: "output/" + sess.ID}
	case sess.StageProgress >= 100:
		sess.Stage++
		sess.StageProgress = 0
	default:
		sess.StageProgress += StageStep
	}

	if s.cfg.FailAt.Valid() && sess.Stage == s.cfg.FailAt && sess.StageProgress >= 50 {
		sess.State = StateError
		sess.Error = "simulated failure in " + sess.Stage.Title()
		sess.Message = "Conversion failed: " + sess.Error
		return events.Event{Kind: events.KindError, SessionID: sess.ID, Stage: sess.Stage.Layer(), Errors: []string{sess.Error}}
	}

	lo, hi := bp[sess.Stage-1], bp[sess.Stage]
	sess.Progress = max(sess.Progress, min(99, lo+sess.StageProgress*(hi-lo)/100))
	sess.Message = fmt.Sprintf("%s: %d%%", sess.Stage.Title(), sess.StageProgress)
	return events.Event{
		Kind:          events.KindProgress,
		SessionID:     sess.ID,
		Stage:         sess.Stage.Layer(),
		Progress:      progress.Int(sess.Progress),
		StageProgress: progress.Int(sess.StageProgress),
		Message:       sess.Message,
	}
}

// Run advances every processing session once per Step until ctx ends.
func (s *Server) Run(ctx context.Context) {
	if s.cfg.Step <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.cfg.Step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.processing() {
				if _, err := s.Advance(ctx, id); err != nil {
					s.logger.Warn("advance failed", "session_id", id, "error", err)
				}
			}
		}
	}
}

func (s *Server) processing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.State == StateProcessing {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) snapshot(id string) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session{}, false
	}
	return *sess, true
}

func (s *Server) publish(ctx context.Context, ev events.Event) {
	if s.cfg.Publisher == nil {
		return
	}
	if err := s.cfg.Publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish failed", "event", ev.Kind, "session_id", ev.SessionID, "error", err)
	}
}

// stageState reports the worker-side status of stage idx.
func (sess session) stageState(idx progress.StageIndex) (string, int) {
	switch {
	case sess.State == StateCompleted:
		return StateCompleted, 100
	case sess.Stage == 0 || idx > sess.Stage:
		return "pending", 0
	case idx < sess.Stage:
		return StateCompleted, 100
	case sess.State == StateError:
		return StateError, sess.StageProgress
	default:
		return StateProcessing, sess.StageProgress
	}
}
