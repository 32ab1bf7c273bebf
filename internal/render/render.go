// Package render projects a progress.Job onto the fields a display shows.
// Projection is pure: the same job always yields the same Frame, and an
// unchanged job yields an empty Diff.
package render

import (
	"ditatrack/internal/progress"
	"ditatrack/internal/util/format"
)

type Class string

const (
	ClassPending   Class = "pending"
	ClassActive    Class = "active"
	ClassCompleted Class = "completed"
	ClassFailed    Class = "failed"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// RetryHint is appended to the failure banner.
const RetryHint = "Start a new job to try again."

// Links are the stable URLs the display may expose.
type Links struct {
	Result string
	Stages [progress.StageCount]string
}

type StageView struct {
	Index        progress.StageIndex
	Title        string
	Width        int
	Label        string
	Class        Class
	ProgressText string
	Message      string
	Detail       string
	DetailURL    string
	Inspectable  bool
}

type MessageBox struct {
	Visible bool
	Text    string
	Level   Level
}

type Actions struct {
	ShowDownload  bool
	ShowRetryHint bool
	ShowDetails   bool
}

// Frame is everything a display needs to draw one job.
type Frame struct {
	JobID        string
	Filename     string
	OverallText  string
	OverallWidth int
	OverallLabel string
	OverallClass Class
	Stages       [progress.StageCount]StageView
	Message      MessageBox
	Actions      Actions
	DownloadURL  string
	Terminal     bool
}

// Project builds the Frame for job.
func Project(job progress.Job, links Links) Frame {
	f := Frame{
		JobID:        job.ID,
		Filename:     job.Filename,
		OverallText:  format.Percent(job.Progress),
		OverallWidth: clamp(job.Progress),
		OverallLabel: overallLabel(job.Status),
		OverallClass: classOf(job.Status),
		Terminal:     job.Terminal(),
	}

	for i, st := range job.Stages {
		v := StageView{
			Index:        st.Index,
			Title:        st.Index.Title(),
			Width:        clamp(st.Progress),
			Label:        stageLabel(st.Status),
			Class:        classOf(st.Status),
			ProgressText: format.Percent(st.Progress),
			Message:      st.Message,
			Inspectable:  st.Status == progress.StatusCompleted,
		}
		if st.Detail != nil {
			v.Detail = st.Detail.Summary
		}
		if v.Inspectable {
			v.DetailURL = links.Stages[i]
			f.Actions.ShowDetails = true
		}
		f.Stages[i] = v
	}

	switch job.Status {
	case progress.StatusCompleted:
		f.Message = MessageBox{Visible: true, Text: orDefault(job.Message, "Conversion complete."), Level: LevelSuccess}
		if links.Result != "" {
			f.Actions.ShowDownload = true
			f.DownloadURL = links.Result
		}
	case progress.StatusFailed:
		f.Message = MessageBox{Visible: true, Text: orDefault(job.Message, "Conversion failed.") + " " + RetryHint, Level: LevelError}
		f.Actions.ShowRetryHint = true
	default:
		if job.Message != "" {
			f.Message = MessageBox{Visible: true, Text: job.Message, Level: LevelInfo}
		}
	}
	return f
}

func overallLabel(s progress.Status) string {
	switch s {
	case progress.StatusRunning:
		return "Converting"
	case progress.StatusCompleted:
		return "Conversion complete"
	case progress.StatusFailed:
		return "Conversion failed"
	default:
		return "Waiting to start"
	}
}

func stageLabel(s progress.Status) string {
	switch s {
	case progress.StatusRunning:
		return "In progress"
	case progress.StatusCompleted:
		return "Completed"
	case progress.StatusFailed:
		return "Failed"
	default:
		return "Pending"
	}
}

func classOf(s progress.Status) Class {
	switch s {
	case progress.StatusRunning:
		return ClassActive
	case progress.StatusCompleted:
		return ClassCompleted
	case progress.StatusFailed:
		return ClassFailed
	default:
		return ClassPending
	}
}

func clamp(v int) int {
	return max(0, min(100, v))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
