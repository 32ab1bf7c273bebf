package dirs

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestXDGOverrides(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG variables apply on linux only")
	}
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", ConfigDir, filepath.Join(root, "cfg", "ditatrack")},
		{"data", DataDir, filepath.Join(root, "data", "ditatrack")},
		{"state", StateDir, filepath.Join(root, "state", "ditatrack")},
		{"output", DefaultOutputDir, filepath.Join(root, "data", "ditatrack", "results")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if err := EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
}

func TestEnsure_EmptyPath(t *testing.T) {
	if err := Ensure(""); err == nil {
		t.Fatal("expected error")
	}
}
