// Package events adapts the worker's push channel into progress.Update
// values. The channel is optional: when it is absent the tracker runs on
// polling alone.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ditatrack/internal/progress"
	"ditatrack/internal/status"
)

// ErrUnavailable is returned by Subscribe when no push channel exists.
var ErrUnavailable = errors.New("events: push channel unavailable")

// ErrUnknownEvent marks payloads whose event kind is not recognised.
var ErrUnknownEvent = errors.New("events: unknown event kind")

// Kind is the worker's event name.
type Kind string

const (
	KindProgress Kind = "progress_update"
	KindComplete Kind = "conversion_complete"
	KindError    Kind = "conversion_error"
)

// Channel delivers normalised updates for one job. The returned channel is
// closed when ctx ends or Close is called.
type Channel interface {
	Subscribe(ctx context.Context, jobID string) (<-chan progress.Update, error)
	Close() error
}

// Publisher emits worker events; used by the simulated worker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Absent is the Channel used when no push transport is configured.
type Absent struct{}

func (Absent) Subscribe(context.Context, string) (<-chan progress.Update, error) {
	return nil, ErrUnavailable
}

func (Absent) Close() error { return nil }

// Event is the wire shape of a worker push message.
type Event struct {
	Kind          Kind     `json:"event"`
	SessionID     string   `json:"session_id"`
	Progress      *int     `json:"progress,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	StageProgress *int     `json:"stage_progress,omitempty"`
	Message       string   `json:"message,omitempty"`
	Errors        []string `json:"error,omitempty"`
	OutputDir     string   `json:"output_dir,omitempty"`
}

type inbound struct {
	Event json.RawMessage `json:"event"`
	status.Envelope
}

// Normalize decodes a push payload into the same Update shape the status
// fetcher produces. Malformed fields are dropped; only an undecodable
// payload or an unknown event kind is an error.
func Normalize(payload []byte) (progress.Update, error) {
	var in inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		return progress.Update{}, fmt.Errorf("decode event: %w", err)
	}
	kind := ""
	if k := status.Text(in.Event); k != nil {
		kind = strings.ToLower(*k)
	}
	// The worker's socket messages name only the stage.
	if kind == "" && status.Text(in.Stage) != nil {
		kind = string(KindProgress)
	}

	u := in.Envelope.Update("")
	switch Kind(kind) {
	case KindProgress:
		if u.Status == nil {
			u.Status = progress.StatusPtr(progress.StatusRunning)
		}
	case KindComplete:
		u.Status = progress.StatusPtr(progress.StatusCompleted)
		u.Progress = progress.Int(100)
		u.Error = nil
	case KindError:
		u.Status = progress.StatusPtr(progress.StatusFailed)
		if u.Error == nil {
			u.Error = progress.String("conversion failed")
		}
		if s := status.Text(in.Stage); s != nil {
			if idx, ok := progress.ParseStageKey(*s); ok {
				u.FailedStage = idx
			}
		}
	default:
		return progress.Update{}, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
	return u, nil
}
