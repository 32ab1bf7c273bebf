package model

import (
	"testing"

	"ditatrack/internal/progress"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputTable, false},
		{"TABLE", OutputTable, false},
		{"json", OutputJSON, false},
		{"yml", OutputYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNewJobReport(t *testing.T) {
	job := progress.NewJob("j1")
	job.Status = progress.StatusRunning
	job.Progress = 55
	job.Stages[0].Status = progress.StatusCompleted
	job.Stages[0].Progress = 100
	job.Stages[1].Status = progress.StatusRunning
	job.Stages[1].Progress = 50
	job.Stages[1].Derived = true

	urls := func(idx progress.StageIndex) string { return "http://w/api/layer/j1/" + idx.Layer() }
	r := NewJobReport(job, "http://w/api/download/result/j1", urls)

	if r.ResultURL != "" {
		t.Errorf("result URL on a running job: %q", r.ResultURL)
	}
	if len(r.Stages) != progress.StageCount {
		t.Fatalf("stages = %d", len(r.Stages))
	}
	if r.Stages[0].URL != "http://w/api/layer/j1/layer1" || r.Stages[1].URL != "" {
		t.Errorf("stage urls = %q %q", r.Stages[0].URL, r.Stages[1].URL)
	}
	if r.Stages[1].Status != "running" || !r.Stages[1].Derived || r.Stages[1].Key != "stage2" {
		t.Errorf("stage 2 = %+v", r.Stages[1])
	}
}
