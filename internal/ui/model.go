package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"ditatrack/internal/progress"
	"ditatrack/internal/render"
	"ditatrack/internal/stagedetail"
	"ditatrack/internal/util/format"
)

// ErrAborted is returned by Run when the user quits before the job ends.
var ErrAborted = errors.New("ui: quit before the job finished")

const noticeTTL = 4 * time.Second

// Controller is the part of the tracker the program drives.
type Controller interface {
	Run(ctx context.Context) (progress.Job, error)
	InspectStage(ctx context.Context, idx progress.StageIndex) (stagedetail.Detail, error)
	Snapshot() progress.Job
}

// Downloader saves the blob at url and returns where it went.
type Downloader func(ctx context.Context, url string) (path string, n int64, err error)

type Options struct {
	JobID    string
	Tracker  Controller
	Bridge   *Bridge
	Download Downloader
}

type notice struct {
	id    int
	text  string
	level render.Level
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	view    jobView
	notices []notice
	nextID  int
	detail  *stagedetail.Detail
	loading bool

	finished bool
	result   progress.Job
	err      error

	width, height int
	styles        Styles
}

func NewModel(ctx context.Context, opts Options) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	return Model{
		ctx:    c,
		cancel: cancel,
		opts:   opts,
		view:   newJobView(opts.JobID, sty),
		styles: sty,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.view.spinner.Tick, m.listenCmd(), m.trackCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.resize(msg.Width)

	case frameMsg:
		m.view.frame = msg.F
		return m, m.listenCmd()

	case noticeMsg:
		cmd := m.addNotice(msg.Text, msg.Level)
		return m, tea.Batch(cmd, m.listenCmd())

	case clearNoticeMsg:
		for i, n := range m.notices {
			if n.id == msg.ID {
				m.notices = append(m.notices[:i:i], m.notices[i+1:]...)
				break
			}
		}

	case trackDoneMsg:
		m.finished = true
		m.result = msg.Job
		m.err = msg.Err
		if msg.Err != nil {
			m.cancel()
			return m, tea.Quit
		}

	case detailMsg:
		m.loading = false
		if msg.Err == nil {
			d := msg.D
			m.detail = &d
		}

	case downloadMsg:
		if msg.Err != nil {
			return m, m.addNotice("Download failed: "+msg.Err.Error(), render.LevelError)
		}
		text := fmt.Sprintf("Saved %s (%s)", filepath.Base(msg.Path), format.HumanizeBytes(msg.Bytes))
		return m, m.addNotice(text, render.LevelSuccess)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.view.spinner, cmd = m.view.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.cancel()
		return m, tea.Quit
	case "esc":
		m.detail = nil
	case "1", "2", "3", "4":
		idx := progress.StageIndex(key[0] - '0')
		sv := m.view.frame.Stages[idx-1]
		if !sv.Inspectable {
			return m, m.addNotice(fmt.Sprintf("%s has not completed yet.", sv.Title), render.LevelInfo)
		}
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.inspectCmd(idx)
	case "d":
		f := m.view.frame
		switch {
		case !f.Actions.ShowDownload:
			return m, m.addNotice("The result is not available yet.", render.LevelInfo)
		case m.opts.Download == nil:
			return m, m.addNotice("Downloads are disabled.", render.LevelInfo)
		}
		return m, m.downloadCmd(f.DownloadURL)
	}
	return m, nil
}

func (m *Model) addNotice(text string, level render.Level) tea.Cmd {
	m.nextID++
	id := m.nextID
	m.notices = append(m.notices, notice{id: id, text: text, level: level})
	if len(m.notices) > 3 {
		m.notices = m.notices[len(m.notices)-3:]
	}
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{ID: id} })
}

func (m Model) listenCmd() tea.Cmd {
	ch := m.opts.Bridge.ch
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case msg := <-ch:
			return msg
		}
	}
}

func (m Model) trackCmd() tea.Cmd {
	if m.opts.Tracker == nil {
		return nil
	}
	return func() tea.Msg {
		job, err := m.opts.Tracker.Run(m.ctx)
		return trackDoneMsg{Job: job, Err: err}
	}
}

func (m Model) inspectCmd(idx progress.StageIndex) tea.Cmd {
	return func() tea.Msg {
		d, err := m.opts.Tracker.InspectStage(m.ctx, idx)
		return detailMsg{D: d, Err: err}
	}
}

func (m Model) downloadCmd(url string) tea.Cmd {
	return func() tea.Msg {
		path, n, err := m.opts.Download(m.ctx, url)
		return downloadMsg{Path: path, Bytes: n, Err: err}
	}
}

func (m Model) View() string {
	parts := []string{m.viewHeader(), m.viewOverall(), m.viewStages()}
	if s := m.viewMessage(); s != "" {
		parts = append(parts, s)
	}
	if s := m.viewNotices(); s != "" {
		parts = append(parts, s)
	}
	if s := m.viewDetail(); s != "" {
		parts = append(parts, s)
	}
	return joinBlocks(parts) + "\n"
}
