// Package progress holds the authoritative model of one conversion job and
// the reconciliation rules that fold status updates into it.
package progress

import (
	"strconv"
	"strings"
)

// Status is the lifecycle state of a job or of one of its stages.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Terminal reports whether no further progress is accepted in this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus maps the worker's status vocabulary onto Status.
// ok is false for anything unrecognised; callers treat that as absent.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "uploaded", "queued", "waiting":
		return StatusPending, true
	case "running", "processing", "converting", "in_progress":
		return StatusRunning, true
	case "completed", "complete", "done", "success":
		return StatusCompleted, true
	case "error", "failed", "failure":
		return StatusFailed, true
	}
	return StatusPending, false
}

// StageCount is the fixed number of pipeline stages.
const StageCount = 4

// StageIndex identifies a stage, 1..StageCount.
type StageIndex int

var stageTitles = [StageCount]string{
	"Preprocessing",
	"Semantic analysis",
	"Format conversion",
	"Quality assurance",
}

// Valid reports whether i names one of the pipeline stages.
func (i StageIndex) Valid() bool {
	return i >= 1 && i <= StageCount
}

// Title is the human-readable stage name.
func (i StageIndex) Title() string {
	if !i.Valid() {
		return "Unknown stage"
	}
	return stageTitles[i-1]
}

// Key is the wire identifier used in stage maps ("stage1".."stage4").
func (i StageIndex) Key() string {
	return "stage" + strconv.Itoa(int(i))
}

// Layer is the worker's name for the stage ("layer1".."layer4").
func (i StageIndex) Layer() string {
	return "layer" + strconv.Itoa(int(i))
}

// ParseStageKey accepts "stageN", "layerN" or a bare "N".
func ParseStageKey(raw string) (StageIndex, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "stage")
	s = strings.TrimPrefix(s, "layer")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	idx := StageIndex(n)
	if !idx.Valid() {
		return 0, false
	}
	return idx, true
}

// StageDetailRef records that a stage's detail payload was loaded.
// The payload itself lives with the loader; the job only keeps a summary.
type StageDetailRef struct {
	Summary string
}

// Stage is one pipeline phase.
type Stage struct {
	Index    StageIndex
	Status   Status
	Progress int // 0..100
	Message  string
	// Derived marks values produced from overall progress rather than
	// reported by the worker; explicit stage data may overwrite them.
	Derived bool
	Detail  *StageDetailRef
}

// Job is one conversion run. It is a value type: copying a Job copies its
// stages, so a merge never aliases the state it started from.
type Job struct {
	ID       string
	Status   Status
	Progress int // 0..100, never decreases across merges
	Message  string
	Filename string

	// Started is set once the worker reports the job running.
	Started bool
	// ExplicitStages is set once any per-stage data arrived; from then on
	// overall-only updates no longer derive stage state.
	ExplicitStages bool

	Stages [StageCount]Stage
}

// NewJob returns the Pending job for id with four Pending stages.
func NewJob(id string) Job {
	j := Job{ID: id}
	for i := range j.Stages {
		j.Stages[i].Index = StageIndex(i + 1)
	}
	return j
}

// Terminal reports whether the job reached Completed or Failed.
func (j Job) Terminal() bool {
	return j.Status.Terminal()
}

// Stage returns the stage at idx (1-based).
func (j Job) Stage(idx StageIndex) Stage {
	if !idx.Valid() {
		return Stage{}
	}
	return j.Stages[idx-1]
}

// ActiveStage returns the first stage that is not terminal, or 0 when every
// stage is terminal.
func (j Job) ActiveStage() StageIndex {
	for _, st := range j.Stages {
		if !st.Status.Terminal() {
			return st.Index
		}
	}
	return 0
}

// WithStageDetail attaches a loaded detail reference. Detail loads are the
// one mutation still allowed after the job is terminal.
func (j Job) WithStageDetail(idx StageIndex, ref StageDetailRef) Job {
	if !idx.Valid() {
		return j
	}
	r := ref
	j.Stages[idx-1].Detail = &r
	return j
}

// Equal reports whether j and o are observably identical.
func (j Job) Equal(o Job) bool {
	if j.ID != o.ID || j.Status != o.Status || j.Progress != o.Progress ||
		j.Message != o.Message || j.Filename != o.Filename ||
		j.Started != o.Started || j.ExplicitStages != o.ExplicitStages {
		return false
	}
	for i := range j.Stages {
		if !j.Stages[i].equal(o.Stages[i]) {
			return false
		}
	}
	return true
}

func (s Stage) equal(o Stage) bool {
	if s.Index != o.Index || s.Status != o.Status || s.Progress != o.Progress ||
		s.Message != o.Message || s.Derived != o.Derived {
		return false
	}
	switch {
	case s.Detail == nil && o.Detail == nil:
		return true
	case s.Detail == nil || o.Detail == nil:
		return false
	default:
		return *s.Detail == *o.Detail
	}
}

// StageUpdate is the per-stage part of an Update. Nil fields are absent.
type StageUpdate struct {
	Status   *Status
	Progress *int
	Message  *string
}

// Update is the normalised shape produced by both the status fetcher and the
// push channel. Nil pointers mean the field was absent or unusable.
type Update struct {
	JobID    string
	Progress *int
	Status   *Status
	Message  *string
	Error    *string
	Filename *string
	// FailedStage optionally names the stage a failure belongs to.
	FailedStage StageIndex
	Stages      map[StageIndex]StageUpdate
}

// Empty reports whether u carries nothing to merge.
func (u Update) Empty() bool {
	return u.Progress == nil && u.Status == nil && u.Message == nil &&
		u.Error == nil && u.Filename == nil && len(u.Stages) == 0
}

// Int returns a pointer to v, for building updates.
func Int(v int) *int { return &v }

// String returns a pointer to v, for building updates.
func String(v string) *string { return &v }

// StatusPtr returns a pointer to v, for building updates.
func StatusPtr(v Status) *Status { return &v }

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
