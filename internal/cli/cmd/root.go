package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ditatrack/internal/config"
	"ditatrack/internal/events"
	"ditatrack/internal/logging"
)

const (
	ExitOK         = 0
	ExitCLIError   = 1
	ExitMissingJob = 2
	ExitJobFailed  = 3
	ExitTransport  = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// app carries what every subcommand needs once flags are parsed.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{logger: slog.Default(), closeLog: func() error { return nil }}

	root := &cobra.Command{
		Use:   "ditatrack",
		Short: "Follow document-to-DITA conversion jobs from the terminal",
		Long: "ditatrack tracks a conversion job running on a remote worker through its four stages " +
			"(preprocessing, semantic analysis, format conversion, quality assurance). It polls the worker, " +
			"listens on the Redis push channel when one is configured, and shows one consistent view of the job.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Root())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.closeLog()
		},
	}

	bindPersistentFlags(root.PersistentFlags())

	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newStartCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newStageCmd(a))
	root.AddCommand(newDownloadCmd(a))
	root.AddCommand(newDoctorCmd(a))
	root.AddCommand(newDemoCmd(a))
	root.AddCommand(newCompletionCmd())

	return root
}

func bindPersistentFlags(fs *pflag.FlagSet) {
	fs.String("server", "http://localhost:5000", "Conversion worker base URL")
	fs.String("redis-addr", "", "Redis address for push events (empty: polling only)")
	fs.String("events-channel", events.DefaultChannel, "Redis Pub/Sub channel carrying worker events")
	fs.Duration("poll-interval", time.Second, "Pause between status polls")
	fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	fs.String("out-dir", "", "Directory for downloaded results (default: data dir)")
	fs.BoolP("verbose", "v", false, "Log requests and merge decisions")
}

func (a *app) init(root *cobra.Command) error {
	if err := config.Init(root); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	s, err := config.Load()
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	a.settings = s
	return a.useLogger(false)
}

// useLogger switches the logger between stderr and the state-dir file.
func (a *app) useLogger(toFile bool) error {
	logger, closeFn, err := logging.New(logging.Options{Verbose: a.settings.Verbose, ToFile: toFile})
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	_ = a.closeLog()
	a.logger, a.closeLog = logger, closeFn
	slog.SetDefault(logger)
	return nil
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitCLIError
}
