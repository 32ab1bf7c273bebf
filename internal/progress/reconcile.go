package progress

import (
	"fmt"
	"strconv"
)

// DiscrepancyKind classifies an update that was not applied as sent.
type DiscrepancyKind string

const (
	DiscrepancyForeignJob       DiscrepancyKind = "foreign-job"
	DiscrepancyStaleProgress    DiscrepancyKind = "stale-progress"
	DiscrepancyTerminalConflict DiscrepancyKind = "terminal-conflict"
)

// Discrepancy describes an incoming value that lost against the current
// state. Stage is 0 for job-level values.
type Discrepancy struct {
	Stage    StageIndex
	Kind     DiscrepancyKind
	Current  string
	Incoming string
}

func (d Discrepancy) String() string {
	where := "job"
	if d.Stage.Valid() {
		where = d.Stage.Key()
	}
	return fmt.Sprintf("%s %s: current=%s incoming=%s", where, d.Kind, d.Current, d.Incoming)
}

// Outcome reports what a merge did.
type Outcome struct {
	Changed       bool
	Discrepancies []Discrepancy
}

func (o *Outcome) add(d Discrepancy) {
	o.Discrepancies = append(o.Discrepancies, d)
}

// Reconciler folds updates into a Job. The zero value uses
// DefaultBreakpoints.
type Reconciler struct {
	Breakpoints Breakpoints
}

// Merge returns the job that results from applying u to job. It is pure:
// job is not modified and the same inputs always give the same result.
//
// Progress never decreases, terminal states are never left, and a later
// stage is never further along than an earlier one. Values that lose
// against the current state are reported in the outcome.
func (r Reconciler) Merge(job Job, u Update) (Job, Outcome) {
	var out Outcome

	if u.JobID != "" && u.JobID != job.ID {
		out.add(Discrepancy{Kind: DiscrepancyForeignJob, Current: job.ID, Incoming: u.JobID})
		return job, out
	}
	if job.Terminal() {
		if u.Status != nil && u.Status.Terminal() && *u.Status != job.Status {
			out.add(Discrepancy{Kind: DiscrepancyTerminalConflict, Current: job.Status.String(), Incoming: u.Status.String()})
		}
		return job, out
	}

	bp := r.Breakpoints.orDefault()
	next := job

	if u.Filename != nil && *u.Filename != "" && next.Filename == "" {
		next.Filename = *u.Filename
	}
	if u.Status != nil && *u.Status == StatusRunning {
		next.Started = true
	}

	switch {
	case len(u.Stages) > 0:
		if !next.ExplicitStages {
			// The first explicit breakdown replaces everything derived so far.
			for i := range next.Stages {
				if next.Stages[i].Derived {
					resetStage(&next.Stages[i])
				}
			}
		}
		next.ExplicitStages = true
		for i := range next.Stages {
			idx := StageIndex(i + 1)
			if su, ok := u.Stages[idx]; ok {
				applyStage(&next.Stages[i], su, &out)
			}
		}
	case u.Progress != nil && !next.ExplicitStages:
		applyDerived(&next.Stages, bp.DeriveStages(*u.Progress))
	}

	completed := u.Status != nil && *u.Status == StatusCompleted
	hasError := u.Error != nil && *u.Error != ""
	failed := (u.Status != nil && *u.Status == StatusFailed) ||
		(hasError && !completed)

	switch {
	case completed:
		for i := range next.Stages {
			st := &next.Stages[i]
			if st.Status == StatusFailed {
				out.add(Discrepancy{Stage: st.Index, Kind: DiscrepancyTerminalConflict, Current: st.Status.String(), Incoming: StatusCompleted.String()})
				continue
			}
			completeStage(st)
		}
	case failed && !anyFailed(next.Stages):
		idx := u.FailedStage
		if !idx.Valid() || next.Stage(idx).Status.Terminal() {
			idx = next.ActiveStage()
		}
		if idx.Valid() {
			st := &next.Stages[idx-1]
			st.Status = StatusFailed
			st.Derived = false
			if hasError {
				st.Message = *u.Error
			}
		} else {
			out.add(Discrepancy{Kind: DiscrepancyTerminalConflict, Current: "all stages terminal", Incoming: StatusFailed.String()})
		}
	}

	sequence(&next.Stages)

	allDone := allCompleted(next.Stages)
	if !failed && u.Progress != nil && clampPercent(*u.Progress) < job.Progress {
		out.add(Discrepancy{
			Kind:     DiscrepancyStaleProgress,
			Current:  strconv.Itoa(job.Progress),
			Incoming: strconv.Itoa(clampPercent(*u.Progress)),
		})
	}
	candidate := bp.Floor(next.Stages)
	if u.Progress != nil {
		candidate = max(candidate, clampPercent(*u.Progress))
	}
	if allDone {
		candidate = 100
	} else {
		candidate = min(candidate, 99)
	}
	next.Progress = max(next.Progress, candidate)

	switch {
	case allDone:
		next.Status = StatusCompleted
	case anyFailed(next.Stages):
		next.Status = StatusFailed
	case next.Started || next.Progress > 0 || anyStarted(next.Stages):
		next.Status = StatusRunning
	default:
		next.Status = StatusPending
	}

	if u.Message != nil && *u.Message != "" {
		next.Message = *u.Message
	}
	if next.Status == StatusFailed && hasError {
		next.Message = *u.Error
	}

	out.Changed = !next.Equal(job)
	return next, out
}

func applyStage(st *Stage, su StageUpdate, out *Outcome) {
	if st.Derived {
		resetStage(st)
	}
	if st.Status.Terminal() {
		if su.Status != nil && *su.Status != st.Status {
			out.add(Discrepancy{Stage: st.Index, Kind: DiscrepancyTerminalConflict, Current: st.Status.String(), Incoming: su.Status.String()})
		}
		return
	}
	if su.Message != nil && *su.Message != "" {
		st.Message = *su.Message
	}

	if su.Status != nil {
		switch *su.Status {
		case StatusFailed:
			st.Status = StatusFailed
			st.Derived = false
			if su.Progress != nil {
				st.Progress = max(st.Progress, clampPercent(*su.Progress))
			}
			return
		case StatusCompleted:
			completeStage(st)
			st.Derived = false
			return
		}
	}

	if su.Progress != nil {
		p := clampPercent(*su.Progress)
		if p < st.Progress && !st.Derived {
			out.add(Discrepancy{
				Stage:    st.Index,
				Kind:     DiscrepancyStaleProgress,
				Current:  strconv.Itoa(st.Progress),
				Incoming: strconv.Itoa(p),
			})
			return
		}
		st.Progress = p
		st.Derived = false
	}
	if su.Status != nil && *su.Status == StatusRunning {
		st.Status = StatusRunning
		st.Derived = false
	}
	if st.Status == StatusPending && st.Progress > 0 {
		st.Status = StatusRunning
	}
}

// applyDerived moves stages forward to the derived set. It never lowers
// progress or reopens a terminal stage.
func applyDerived(stages *[StageCount]Stage, derived [StageCount]Stage) {
	for i, d := range derived {
		st := &stages[i]
		if st.Status.Terminal() {
			continue
		}
		switch d.Status {
		case StatusCompleted:
			completeStage(st)
			st.Derived = true
		case StatusRunning:
			if st.Status == StatusPending || d.Progress > st.Progress {
				st.Status = StatusRunning
				st.Progress = max(st.Progress, d.Progress)
				st.Derived = true
			}
		}
	}
}

// sequence completes every non-terminal stage that precedes a started one.
func sequence(stages *[StageCount]Stage) {
	last := -1
	for i, st := range stages {
		if st.Status != StatusPending {
			last = i
		}
	}
	for i := 0; i < last; i++ {
		if !stages[i].Status.Terminal() {
			completeStage(&stages[i])
		}
	}
}

// resetStage drops derived values so explicit data starts from scratch.
func resetStage(st *Stage) {
	*st = Stage{Index: st.Index, Status: StatusPending, Detail: st.Detail}
}

func completeStage(st *Stage) {
	if st.Status.Terminal() {
		return
	}
	st.Status = StatusCompleted
	st.Progress = 100
}

func allCompleted(stages [StageCount]Stage) bool {
	for _, st := range stages {
		if st.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func anyFailed(stages [StageCount]Stage) bool {
	for _, st := range stages {
		if st.Status == StatusFailed {
			return true
		}
	}
	return false
}

func anyStarted(stages [StageCount]Stage) bool {
	for _, st := range stages {
		if st.Status != StatusPending {
			return true
		}
	}
	return false
}
