package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ditatrack/internal/model"
	"ditatrack/internal/progress"
	"ditatrack/internal/stagedetail"
	"ditatrack/internal/status"
	"ditatrack/internal/tracker"
	"ditatrack/internal/ui"
	"ditatrack/internal/util/format"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <job-id|url>",
		Short: "Track a job until it completes or fails",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args)
			if err != nil {
				return err
			}
			return a.track(cmd, trackOptions(cmd, id, a))
		},
	}
	bindTrackFlags(cmd.Flags())
	return cmd
}

func bindTrackFlags(fs *pflag.FlagSet) {
	fs.Bool("plain", false, "Print changed fields line by line instead of the TUI")
	fs.Bool("download", false, "Save the result into --out-dir once the job completes")
}

func trackOptions(cmd *cobra.Command, jobID string, a *app) model.Options {
	plain, _ := cmd.Flags().GetBool("plain")
	download, _ := cmd.Flags().GetBool("download")
	return model.Options{
		JobID:    jobID,
		OutDir:   a.settings.OutDir,
		Plain:    plain,
		Download: download,
	}
}

// track follows opts.JobID with the TUI when stdout is a terminal and plain
// output otherwise.
func (a *app) track(cmd *cobra.Command, opts model.Options) error {
	ctx := cmd.Context()
	client, err := a.newClient()
	if err != nil {
		return err
	}

	useTUI := !opts.Plain && isTerminal()
	if useTUI {
		if err := a.useLogger(true); err != nil {
			return err
		}
	}

	ch := a.openEvents(ctx)
	defer ch.Close()

	trOpts := []tracker.Option{
		tracker.WithFetcher(client),
		tracker.WithEvents(ch),
		tracker.WithDetailLoader(stagedetail.Loader{Source: client, Logger: a.logger}),
		tracker.WithReconciler(a.reconciler()),
		tracker.WithPollInterval(a.settings.PollInterval),
		tracker.WithLinks(links(client, opts.JobID)),
		tracker.WithLogger(a.logger),
	}

	var job progress.Job
	if useTUI {
		bridge := ui.NewBridge()
		tr, err := tracker.New(opts.JobID, append(trOpts, tracker.WithReporter(bridge), tracker.WithNotifier(bridge))...)
		if err != nil {
			return &ExitError{Code: ExitMissingJob, Err: err}
		}
		job, err = ui.Run(ctx, ui.Options{
			JobID:   opts.JobID,
			Tracker: tr,
			Bridge:  bridge,
			Download: func(ctx context.Context, url string) (string, int64, error) {
				return saveBlob(ctx, client, url, opts.OutDir, resultName(tr.Snapshot(), opts.JobID))
			},
		})
		if errors.Is(err, ui.ErrAborted) {
			return nil
		}
		if err != nil {
			return trackError(err)
		}
	} else {
		tr, err := tracker.New(opts.JobID, append(trOpts,
			tracker.WithReporter(newPlainReporter(cmd.OutOrStdout())),
			tracker.WithNotifier(&plainNotifier{w: cmd.ErrOrStderr()}),
		)...)
		if err != nil {
			return &ExitError{Code: ExitMissingJob, Err: err}
		}
		if job, err = tr.Run(ctx); err != nil {
			return trackError(err)
		}
	}

	return a.finish(cmd, client, job, opts)
}

func (a *app) finish(cmd *cobra.Command, client *status.Client, job progress.Job, opts model.Options) error {
	if job.Status == progress.StatusFailed {
		msg := job.Message
		if msg == "" {
			msg = "conversion failed"
		}
		return &ExitError{Code: ExitJobFailed, Err: fmt.Errorf("job %s failed: %s", job.ID, msg)}
	}
	if job.Status != progress.StatusCompleted || !opts.Download {
		return nil
	}
	path, n, err := saveBlob(cmd.Context(), client, client.ResultURL(job.ID), opts.OutDir, resultName(job, job.ID))
	if err != nil {
		return requestError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%s)\n", path, format.HumanizeBytes(n))
	return nil
}

func trackError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &ExitError{Code: ExitCLIError, Err: errors.New("interrupted")}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}

func resultName(job progress.Job, jobID string) string {
	if job.Filename != "" {
		return "converted_" + job.Filename + ".zip"
	}
	return "converted_" + jobID + ".zip"
}
