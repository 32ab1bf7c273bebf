package cmd

import (
	"fmt"
	"io"
	"sync"

	"ditatrack/internal/render"
)

// plainReporter prints one line per display field that changed.
type plainReporter struct {
	mu   sync.Mutex
	w    io.Writer
	prev *render.Frame
}

func newPlainReporter(w io.Writer) *plainReporter {
	return &plainReporter{w: w}
}

func (p *plainReporter) Render(f render.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var changes []render.Change
	if p.prev == nil {
		for _, c := range f.Fields() {
			if c.Value != "" {
				changes = append(changes, c)
			}
		}
	} else {
		changes = render.Diff(*p.prev, f)
	}
	for _, c := range changes {
		fmt.Fprintf(p.w, "%-22s %s\n", c.Field, c.Value)
	}
	p.prev = &f
}

type plainNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *plainNotifier) Notify(msg string, level render.Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s: %s\n", level, msg)
}
