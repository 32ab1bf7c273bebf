package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"ditatrack/internal/render"
)

// Bridge carries tracker output into the program's message loop. It
// satisfies tracker.Reporter and tracker.Notifier.
type Bridge struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg, 256), done: make(chan struct{})}
}

func (b *Bridge) Render(f render.Frame) {
	b.send(frameMsg{F: f})
}

func (b *Bridge) Notify(msg string, level render.Level) {
	b.send(noticeMsg{Text: msg, Level: level})
}

// Close releases senders once the program no longer reads.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}
