package render

import (
	"strconv"
)

// Change is one display field that differs between two frames.
type Change struct {
	Field string
	Value string
}

// Fields flattens f into display fields in a fixed order.
func (f Frame) Fields() []Change {
	out := []Change{
		{"job", f.JobID},
		{"file", f.Filename},
		{"overall.text", f.OverallText},
		{"overall.width", strconv.Itoa(f.OverallWidth)},
		{"overall.label", f.OverallLabel},
		{"overall.class", string(f.OverallClass)},
	}
	for _, s := range f.Stages {
		p := s.Index.Key() + "."
		out = append(out,
			Change{p + "width", strconv.Itoa(s.Width)},
			Change{p + "text", s.ProgressText},
			Change{p + "label", s.Label},
			Change{p + "class", string(s.Class)},
			Change{p + "message", s.Message},
			Change{p + "detail", s.Detail},
			Change{p + "inspectable", strconv.FormatBool(s.Inspectable)},
		)
	}
	out = append(out,
		Change{"message.visible", strconv.FormatBool(f.Message.Visible)},
		Change{"message.text", f.Message.Text},
		Change{"message.level", string(f.Message.Level)},
		Change{"action.download", strconv.FormatBool(f.Actions.ShowDownload)},
		Change{"action.retry", strconv.FormatBool(f.Actions.ShowRetryHint)},
		Change{"action.details", strconv.FormatBool(f.Actions.ShowDetails)},
		Change{"download.url", f.DownloadURL},
	)
	return out
}

// Diff lists the fields of next that differ from prev. Diff of a frame
// against itself is empty.
func Diff(prev, next Frame) []Change {
	a, b := prev.Fields(), next.Fields()
	var out []Change
	for i := range b {
		if a[i] != b[i] {
			out = append(out, b[i])
		}
	}
	return out
}
