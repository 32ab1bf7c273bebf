package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"ditatrack/internal/dirs"
	"ditatrack/internal/events"
	"ditatrack/internal/progress"
	"ditatrack/internal/render"
	"ditatrack/internal/status"
	"ditatrack/internal/util"
)

func (a *app) newClient() (*status.Client, error) {
	c, err := status.New(status.Config{
		BaseURL:           a.settings.Server,
		Timeout:           a.settings.Timeout,
		RequestsPerSecond: a.settings.RateLimit,
		Logger:            a.logger,
	})
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	return c, nil
}

func (a *app) openEvents(ctx context.Context) events.Channel {
	cfg := a.settings.RedisConfig()
	cfg.Logger = a.logger
	return events.Open(ctx, cfg)
}

func (a *app) reconciler() progress.Reconciler {
	return progress.Reconciler{Breakpoints: a.settings.Breakpoints}
}

func links(c *status.Client, jobID string) render.Links {
	l := render.Links{Result: c.ResultURL(jobID)}
	for i := range l.Stages {
		l.Stages[i] = c.StageURL(jobID, progress.StageIndex(i+1))
	}
	return l
}

// jobIDArg resolves the job reference in args[0]. A missing reference is
// exit code 2, the terminal counterpart of sending the user back home.
func jobIDArg(args []string) (string, error) {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	}
	id, err := util.ParseJobRef(raw)
	if err != nil {
		return "", &ExitError{Code: ExitMissingJob, Err: fmt.Errorf("%w; pass a job id or a progress URL", err)}
	}
	return id, nil
}

// requestError classifies a worker call failure.
func requestError(err error) error {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, status.ErrEmptyJobID) {
		return &ExitError{Code: ExitMissingJob, Err: err}
	}
	var fe *status.FetchError
	if errors.As(err, &fe) {
		return &ExitError{Code: ExitTransport, Err: err}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}

// saveBlob downloads url into dir. The file is written under a temporary
// name and renamed once complete; fallback names it when the worker does
// not suggest a filename.
func saveBlob(ctx context.Context, c *status.Client, url, dir, fallback string) (string, int64, error) {
	if err := dirs.Ensure(dir); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ditatrack-*.part")
	if err != nil {
		return "", 0, err
	}
	n, name, err := c.Download(ctx, url, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = util.RemoveIfExists(tmp.Name())
		return "", 0, err
	}
	if name == "" || name == "." || name == "/" {
		name = fallback
	}
	dest := util.UniquePath(dir, util.SanitizeFilename(name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = util.RemoveIfExists(tmp.Name())
		return "", 0, err
	}
	return dest, n, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
