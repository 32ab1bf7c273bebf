package model

import (
	"ditatrack/internal/progress"
)

// StageReport is one stage as printed by status.
type StageReport struct {
	Stage    int    `json:"stage" yaml:"stage"`
	Key      string `json:"key" yaml:"key"`
	Title    string `json:"title" yaml:"title"`
	Status   string `json:"status" yaml:"status"`
	Progress int    `json:"progress" yaml:"progress"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	Derived  bool   `json:"derived,omitempty" yaml:"derived,omitempty"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

// JobReport is a job as printed by status.
type JobReport struct {
	JobID     string        `json:"job_id" yaml:"job_id"`
	Filename  string        `json:"filename,omitempty" yaml:"filename,omitempty"`
	Status    string        `json:"status" yaml:"status"`
	Progress  int           `json:"progress" yaml:"progress"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
	Stages    []StageReport `json:"stages" yaml:"stages"`
	ResultURL string        `json:"result_url,omitempty" yaml:"result_url,omitempty"`
}

// StageURLs returns the detail URL for stage idx.
type StageURLs func(idx progress.StageIndex) string

// NewJobReport flattens job. Stage URLs are only included for completed
// stages and the result URL only for a completed job.
func NewJobReport(job progress.Job, resultURL string, stageURL StageURLs) JobReport {
	r := JobReport{
		JobID:    job.ID,
		Filename: job.Filename,
		Status:   job.Status.String(),
		Progress: job.Progress,
		Message:  job.Message,
		Stages:   make([]StageReport, 0, len(job.Stages)),
	}
	if job.Status == progress.StatusCompleted {
		r.ResultURL = resultURL
	}
	for _, st := range job.Stages {
		sr := StageReport{
			Stage:    int(st.Index),
			Key:      st.Index.Key(),
			Title:    st.Index.Title(),
			Status:   st.Status.String(),
			Progress: st.Progress,
			Message:  st.Message,
			Derived:  st.Derived,
		}
		if st.Detail != nil {
			sr.Detail = st.Detail.Summary
		}
		if st.Status == progress.StatusCompleted && stageURL != nil {
			sr.URL = stageURL(st.Index)
		}
		r.Stages = append(r.Stages, sr)
	}
	return r
}
