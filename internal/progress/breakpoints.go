package progress

import (
	"errors"
	"fmt"
)

// Breakpoints are cumulative overall-progress marks used when the worker
// reports only an overall percentage. Stage i spans [B[i-1], B[i]); the
// region below B[0] is job start-up, during which stage 1 is running at 0%.
type Breakpoints [StageCount + 1]int

// DefaultBreakpoints mirrors the nominal stage weights of the worker.
var DefaultBreakpoints = Breakpoints{20, 40, 70, 90, 100}

// Validate checks that the marks are strictly increasing, within 0..100,
// and end at 100.
func (b Breakpoints) Validate() error {
	prev := -1
	for i, v := range b {
		if v < 0 || v > 100 {
			return fmt.Errorf("breakpoint %d out of range: %d", i, v)
		}
		if v <= prev {
			return fmt.Errorf("breakpoints must increase strictly: %v", [StageCount + 1]int(b))
		}
		prev = v
	}
	if b[StageCount] != 100 {
		return errors.New("last breakpoint must be 100")
	}
	return nil
}

// ParseBreakpoints builds Breakpoints from a configured list of values.
func ParseBreakpoints(values []int) (Breakpoints, error) {
	var b Breakpoints
	if len(values) != len(b) {
		return b, fmt.Errorf("expected %d breakpoints, got %d", len(b), len(values))
	}
	copy(b[:], values)
	if err := b.Validate(); err != nil {
		return Breakpoints{}, err
	}
	return b, nil
}

func (b Breakpoints) orDefault() Breakpoints {
	if b == (Breakpoints{}) {
		return DefaultBreakpoints
	}
	return b
}

// span returns the [lo, hi) overall range covered by stage idx.
func (b Breakpoints) span(idx StageIndex) (int, int) {
	return b[idx-1], b[idx]
}

// DeriveStages partitions an overall percentage across the stages.
func (b Breakpoints) DeriveStages(overall int) [StageCount]Stage {
	b = b.orDefault()
	overall = clampPercent(overall)

	var out [StageCount]Stage
	for i := range out {
		out[i] = Stage{Index: StageIndex(i + 1), Derived: true}
	}
	switch {
	case overall <= 0:
		return out
	case overall >= b[StageCount]:
		for i := range out {
			out[i].Status = StatusCompleted
			out[i].Progress = 100
		}
		return out
	case overall < b[0]:
		out[0].Status = StatusRunning
		return out
	}

	for i := range out {
		idx := StageIndex(i + 1)
		lo, hi := b.span(idx)
		switch {
		case overall >= hi:
			out[i].Status = StatusCompleted
			out[i].Progress = 100
		case overall >= lo:
			out[i].Status = StatusRunning
			out[i].Progress = (overall - lo) * 100 / (hi - lo)
		}
	}
	return out
}

// Floor maps a stage set back onto overall progress: the lower bound that
// an overall percentage must respect to be consistent with the stages.
func (b Breakpoints) Floor(stages [StageCount]Stage) int {
	b = b.orDefault()
	floor := 0
	for _, st := range stages {
		lo, hi := b.span(st.Index)
		switch st.Status {
		case StatusCompleted:
			floor = hi
		case StatusRunning, StatusFailed:
			if st.Progress == 0 {
				continue
			}
			if v := lo + st.Progress*(hi-lo)/100; v > floor {
				floor = v
			}
		}
	}
	return floor
}
