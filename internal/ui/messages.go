package ui

import (
	"ditatrack/internal/progress"
	"ditatrack/internal/render"
	"ditatrack/internal/stagedetail"
)

type frameMsg struct {
	F render.Frame
}

type noticeMsg struct {
	Text  string
	Level render.Level
}

type clearNoticeMsg struct {
	ID int
}

type trackDoneMsg struct {
	Job progress.Job
	Err error
}

type detailMsg struct {
	D   stagedetail.Detail
	Err error
}

type downloadMsg struct {
	Path  string
	Bytes int64
	Err   error
}
