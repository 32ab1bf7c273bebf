package status

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"ditatrack/internal/progress"
)

// Envelope is the loosely-typed body shared by status snapshots and push
// messages. Every field is kept raw and decoded on demand so a malformed
// field is dropped on its own instead of failing the whole payload.
type Envelope struct {
	Success       json.RawMessage `json:"success"`
	SessionID     json.RawMessage `json:"session_id"`
	Status        json.RawMessage `json:"status"`
	Progress      json.RawMessage `json:"progress"`
	Message       json.RawMessage `json:"message"`
	Filename      json.RawMessage `json:"filename"`
	Error         json.RawMessage `json:"error"`
	Stage         json.RawMessage `json:"stage"`
	StageProgress json.RawMessage `json:"stage_progress"`
	Stages        json.RawMessage `json:"stages"`

	// Layers is the worker's own name for the per-stage map.
	Layers json.RawMessage `json:"layers"`
}

// Stage tags that name the whole job rather than one layer.
const (
	stageTagComplete = "complete"
	stageTagError    = "error"
)

// Update normalises the envelope. fallbackID is used when the payload does
// not name its session.
func (e Envelope) Update(fallbackID string) progress.Update {
	u := progress.Update{
		JobID:    fallbackID,
		Status:   StatusField(e.Status),
		Progress: Percent(e.Progress),
		Message:  Text(e.Message),
		Error:    ErrorText(e.Error),
		Filename: Text(e.Filename),
		Stages:   Stages(e.Stages),
	}
	if u.Stages == nil {
		u.Stages = Stages(e.Layers)
	}
	if id := Text(e.SessionID); id != nil {
		u.JobID = *id
	}
	if s := Text(e.Stage); s != nil {
		e.applyStageTag(&u, strings.ToLower(*s))
	}
	return u
}

// applyStageTag interprets the stage field of a push message. A layer tag
// without stage_progress means progress is that layer's own percentage,
// not the job's.
func (e Envelope) applyStageTag(u *progress.Update, tag string) {
	switch tag {
	case stageTagComplete:
		u.Status = progress.StatusPtr(progress.StatusCompleted)
		u.Progress = progress.Int(100)
		u.Error = nil
		return
	case stageTagError:
		u.Status = progress.StatusPtr(progress.StatusFailed)
		u.Progress = nil
		if u.Error == nil {
			u.Error = u.Message
		}
		if u.Error == nil {
			u.Error = progress.String("conversion failed")
		}
		return
	}

	idx, ok := progress.ParseStageKey(tag)
	if !ok {
		return
	}
	if u.Status != nil && *u.Status == progress.StatusFailed {
		u.FailedStage = idx
	}

	su := progress.StageUpdate{Progress: Percent(e.StageProgress), Message: u.Message}
	if su.Progress == nil && u.Progress != nil {
		su.Progress, u.Progress = u.Progress, nil
		st := progress.StatusRunning
		if *su.Progress >= 100 {
			st = progress.StatusCompleted
		}
		su.Status = &st
	}
	if su.Progress == nil {
		return
	}
	if u.Stages == nil {
		u.Stages = make(map[progress.StageIndex]progress.StageUpdate, 1)
	}
	if _, exists := u.Stages[idx]; !exists {
		u.Stages[idx] = su
	}
}

// Rejected reports an explicit success:false. Some stage payloads reuse the
// success key for a count, so anything but a literal false is accepted.
func (e Envelope) Rejected() bool {
	return bytes.Equal(bytes.TrimSpace(e.Success), []byte("false"))
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Percent decodes an int, float or numeric string into 0..100. Anything
// else is absent.
func Percent(raw json.RawMessage) *int {
	if isNull(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(x), "%")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(math.Floor(min(max(f, 0), 100)))
	return &n
}

// Text decodes a non-empty string; numbers are accepted and formatted.
func Text(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// ErrorText accepts a string, a list of strings, or an object carrying a
// message field.
func ErrorText(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	if s := Text(raw); s != nil {
		return s
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		if len(parts) == 0 {
			return nil
		}
		joined := strings.Join(parts, "; ")
		return &joined
	}
	var obj struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if s := Text(obj.Message); s != nil {
			return s
		}
		return Text(obj.Error)
	}
	return nil
}

// StatusField decodes a worker status string; unknown values are absent.
func StatusField(raw json.RawMessage) *progress.Status {
	s := Text(raw)
	if s == nil {
		return nil
	}
	st, ok := progress.ParseStatus(*s)
	if !ok {
		return nil
	}
	return &st
}

type stageBody struct {
	Status   json.RawMessage `json:"status"`
	Progress json.RawMessage `json:"progress"`
	Message  json.RawMessage `json:"message"`
}

// Stages decodes a map keyed by stageN or layerN. A value is either an
// object with status, progress and message, or a bare percentage.
// Unknown keys and unusable entries are skipped.
func Stages(raw json.RawMessage) map[progress.StageIndex]progress.StageUpdate {
	if isNull(raw) {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := make(map[progress.StageIndex]progress.StageUpdate, len(m))
	for key, val := range m {
		idx, ok := progress.ParseStageKey(key)
		if !ok {
			continue
		}
		var su progress.StageUpdate
		var body stageBody
		if err := json.Unmarshal(val, &body); err == nil {
			su = progress.StageUpdate{
				Status:   StatusField(body.Status),
				Progress: Percent(body.Progress),
				Message:  Text(body.Message),
			}
		} else {
			su.Progress = Percent(val)
		}
		if su.Status == nil && su.Progress == nil && su.Message == nil {
			continue
		}
		out[idx] = su
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
