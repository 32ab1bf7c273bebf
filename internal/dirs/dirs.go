// Package dirs resolves the per-user directories ditatrack reads and writes.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "ditatrack"

// location describes one directory kind across platforms.
type location struct {
	env    string   // XDG override, linux only
	linux  []string // below $HOME when env is unset
	darwin []string // below $HOME
	// fallback is the base on every other platform.
	fallback func() (string, error)
}

var (
	configLoc = location{"XDG_CONFIG_HOME", []string{".config"}, []string{"Library", "Application Support"}, os.UserConfigDir}
	dataLoc   = location{"XDG_DATA_HOME", []string{".local", "share"}, []string{"Library", "Application Support"}, os.UserConfigDir}
	stateLoc  = location{"XDG_STATE_HOME", []string{".local", "state"}, []string{"Library", "Logs"}, stateFallback}
)

func (l location) resolve() (string, error) {
	if runtime.GOOS == "linux" {
		if v := os.Getenv(l.env); v != "" {
			return filepath.Join(v, appName), nil
		}
	}
	var rel []string
	switch runtime.GOOS {
	case "linux":
		rel = l.linux
	case "darwin":
		rel = l.darwin
	default:
		base, err := l.fallback()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, rel...), appName)...), nil
}

func stateFallback() (string, error) {
	if la := os.Getenv("LOCALAPPDATA"); la != "" {
		return la, nil
	}
	return os.UserCacheDir()
}

// ConfigDir holds config.{yaml,json,toml}.
// Linux: $XDG_CONFIG_HOME/ditatrack or ~/.config/ditatrack.
func ConfigDir() (string, error) { return configLoc.resolve() }

// DataDir holds downloaded results by default.
func DataDir() (string, error) { return dataLoc.resolve() }

// StateDir holds the log file written while the TUI owns the terminal.
// Linux: $XDG_STATE_HOME/ditatrack or ~/.local/state/ditatrack.
func StateDir() (string, error) { return stateLoc.resolve() }

// DefaultOutputDir is where results are saved when --out-dir is unset.
func DefaultOutputDir() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "results"), nil
}

// Ensure creates path and its parents.
func Ensure(path string) error {
	if path == "" {
		return errors.New("dirs: empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll creates the config, data and state dirs. Directories that
// cannot be resolved are skipped.
func EnsureAll() error {
	for _, l := range []location{configLoc, dataLoc, stateLoc} {
		p, err := l.resolve()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
