package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"ditatrack/internal/progress"
)

// Run shows the tracker's frames until the job ends and the user quits, or
// the user quits early. The returned job is the last known state.
func Run(ctx context.Context, opts Options) (progress.Job, error) {
	if opts.Tracker == nil {
		return progress.Job{}, errors.New("ui: no tracker")
	}
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	defer opts.Bridge.Close()

	m := NewModel(ctx, opts)
	defer m.cancel()

	prog := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := prog.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return opts.Tracker.Snapshot(), err
	}
	fm, ok := final.(Model)
	if !ok || !fm.finished {
		if ctx.Err() != nil {
			return opts.Tracker.Snapshot(), ctx.Err()
		}
		return opts.Tracker.Snapshot(), ErrAborted
	}
	return fm.result, fm.err
}
