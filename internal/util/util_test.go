package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseJobRef(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		missing bool
		wantErr bool
	}{
		{in: "2f1c9a6e-8d7b-4c1a-9f00-1234567890ab", want: "2f1c9a6e-8d7b-4c1a-9f00-1234567890ab"},
		{in: "  abc123 ", want: "abc123"},
		{in: "http://localhost:5000/progress?session_id=abc123", want: "abc123"},
		{in: "https://w.example/progress?job_id=j-9", want: "j-9"},
		{in: "https://w.example/api/process/status/abc123", want: "abc123"},
		{in: "https://w.example/progress/abc123/", want: "abc123"},
		{in: "", missing: true},
		{in: "http://localhost:5000/progress", missing: true},
		{in: "http://localhost:5000/", missing: true},
		{in: "not an id", wantErr: true},
		{in: "http://w/progress?session_id=../etc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseJobRef(tt.in)
			switch {
			case tt.missing:
				if !errors.Is(err, ErrMissingJobRef) {
					t.Fatalf("err = %v, want ErrMissingJobRef", err)
				}
			case tt.wantErr:
				if err == nil || errors.Is(err, ErrMissingJobRef) {
					t.Fatalf("err = %v, want invalid id", err)
				}
			default:
				if err != nil || got != tt.want {
					t.Fatalf("ParseJobRef = %q, %v; want %q", got, err, tt.want)
				}
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                         "untitled",
		"converted_manual.pdf.zip": "converted_manual.pdf.zip",
		"my report: v2?.zip":       "my_report_v2_.zip",
		"../../etc/passwd":         ".._.._etc_passwd",
		"...":                      "untitled",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	first := UniquePath(dir, "out.zip")
	if first != filepath.Join(dir, "out.zip") {
		t.Fatalf("first = %q", first)
	}
	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := UniquePath(dir, "out.zip"); got != filepath.Join(dir, "out-1.zip") {
		t.Errorf("second = %q", got)
	}
}
