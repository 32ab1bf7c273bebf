// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ditatrack/internal/dirs"
)

const logFileName = "ditatrack.log"

type Options struct {
	Verbose bool
	// ToFile sends records to <state dir>/ditatrack.log, used while the TUI
	// owns the terminal.
	ToFile bool
	// Stderr is the terminal sink; nil means os.Stderr.
	Stderr io.Writer
}

// New returns the logger and a close function for its sink. Terminal output
// drops time and level attributes; the file keeps them.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}

	if opts.ToFile {
		dir, err := dirs.StateDir()
		if err != nil {
			return nil, nil, fmt.Errorf("state dir: %w", err)
		}
		if err := dirs.Ensure(dir); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		if !opts.Verbose {
			level = slog.LevelInfo
		}
		h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
		return slog.New(h), f.Close, nil
	}

	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(h), func() error { return nil }, nil
}

// Path returns where the file sink writes.
func Path() (string, error) {
	dir, err := dirs.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logFileName), nil
}
