package render

import (
	"strings"
	"testing"

	"ditatrack/internal/progress"
)

var testLinks = Links{
	Result: "http://worker/api/download/result/j1",
	Stages: [progress.StageCount]string{"s1", "s2", "s3", "s4"},
}

func merge(t *testing.T, job progress.Job, updates ...progress.Update) progress.Job {
	t.Helper()
	var r progress.Reconciler
	for _, u := range updates {
		job, _ = r.Merge(job, u)
	}
	return job
}

func TestProject_Running(t *testing.T) {
	job := merge(t, progress.NewJob("j1"), progress.Update{
		Status:   progress.StatusPtr(progress.StatusRunning),
		Progress: progress.Int(55),
		Message:  progress.String("analysing"),
	})
	f := Project(job, testLinks)

	if f.OverallText != "55%" || f.OverallWidth != 55 || f.OverallClass != ClassActive {
		t.Fatalf("overall = %q/%d/%s", f.OverallText, f.OverallWidth, f.OverallClass)
	}
	wantClasses := [progress.StageCount]Class{ClassCompleted, ClassActive, ClassPending, ClassPending}
	for i, s := range f.Stages {
		if s.Class != wantClasses[i] {
			t.Errorf("stage %d class = %s, want %s", i+1, s.Class, wantClasses[i])
		}
	}
	if !f.Stages[0].Inspectable || f.Stages[0].DetailURL != "s1" || f.Stages[1].Inspectable {
		t.Errorf("inspectable flags wrong: %+v", f.Stages)
	}
	if !f.Message.Visible || f.Message.Level != LevelInfo || f.Message.Text != "analysing" {
		t.Errorf("message = %+v", f.Message)
	}
	if f.Actions.ShowDownload || f.DownloadURL != "" {
		t.Error("download shown before completion")
	}
	if !f.Actions.ShowDetails {
		t.Error("details action hidden with a completed stage")
	}
}

func TestProject_Terminal(t *testing.T) {
	t.Run("completed shows download", func(t *testing.T) {
		job := merge(t, progress.NewJob("j1"), progress.Update{Status: progress.StatusPtr(progress.StatusCompleted)})
		f := Project(job, testLinks)
		if !f.Terminal || !f.Actions.ShowDownload || f.DownloadURL != testLinks.Result {
			t.Fatalf("frame = %+v", f)
		}
		if f.Message.Level != LevelSuccess {
			t.Errorf("level = %s", f.Message.Level)
		}
	})

	t.Run("completed without links hides download", func(t *testing.T) {
		job := merge(t, progress.NewJob("j1"), progress.Update{Status: progress.StatusPtr(progress.StatusCompleted)})
		if f := Project(job, Links{}); f.Actions.ShowDownload {
			t.Fatal("download shown without a URL")
		}
	})

	t.Run("failed shows retry banner", func(t *testing.T) {
		job := merge(t, progress.NewJob("j1"),
			progress.Update{Progress: progress.Int(30)},
			progress.Update{Status: progress.StatusPtr(progress.StatusFailed), Error: progress.String("bad file")},
		)
		f := Project(job, testLinks)
		if f.Actions.ShowDownload || !f.Actions.ShowRetryHint {
			t.Fatalf("actions = %+v", f.Actions)
		}
		if f.Message.Level != LevelError || !strings.HasPrefix(f.Message.Text, "bad file") ||
			!strings.Contains(f.Message.Text, RetryHint) {
			t.Fatalf("message = %+v", f.Message)
		}
		if f.OverallClass != ClassFailed || f.Stages[0].Class != ClassFailed {
			t.Errorf("classes = %s / %s", f.OverallClass, f.Stages[0].Class)
		}
	})
}

func TestDiff(t *testing.T) {
	job := merge(t, progress.NewJob("j1"), progress.Update{Progress: progress.Int(10)})
	f1 := Project(job, testLinks)

	if d := Diff(f1, f1); len(d) != 0 {
		t.Fatalf("self diff = %v", d)
	}
	if d := Diff(f1, Project(job, testLinks)); len(d) != 0 {
		t.Fatalf("re-projection diff = %v", d)
	}

	job = merge(t, job, progress.Update{Progress: progress.Int(45)})
	d := Diff(f1, Project(job, testLinks))
	fields := map[string]string{}
	for _, c := range d {
		fields[c.Field] = c.Value
	}
	if fields["overall.text"] != "45%" {
		t.Errorf("overall.text change = %q", fields["overall.text"])
	}
	if fields["stage1.class"] != string(ClassCompleted) {
		t.Errorf("stage1.class change = %q", fields["stage1.class"])
	}
	if _, ok := fields["stage4.class"]; ok {
		t.Error("unchanged stage4 reported")
	}
}

func TestProject_WithDetail(t *testing.T) {
	job := merge(t, progress.NewJob("j1"), progress.Update{Progress: progress.Int(45)})
	before := Project(job, testLinks)
	job = job.WithStageDetail(1, progress.StageDetailRef{Summary: "pdf, 1200 chars"})
	after := Project(job, testLinks)

	d := Diff(before, after)
	if len(d) != 1 || d[0].Field != "stage1.detail" || d[0].Value != "pdf, 1200 chars" {
		t.Fatalf("diff = %v", d)
	}
}
