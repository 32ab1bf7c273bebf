package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ditatrack/internal/events"
	"ditatrack/internal/progress"
	"ditatrack/internal/workersim"
)

func newDemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a simulated conversion worker and start one job on it",
		Long: "demo serves the worker HTTP API from memory. Sessions advance on a timer and, " +
			"when --redis-addr is set, every step is also published on the push channel.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := cmd.Flags()
			addr, _ := fs.GetString("addr")
			step, _ := fs.GetDuration("step")
			reportStages, _ := fs.GetBool("report-stages")
			failAt, _ := fs.GetInt("fail-at")
			filename, _ := fs.GetString("filename")
			noStart, _ := fs.GetBool("no-start")

			if failAt < 0 || failAt > progress.StageCount {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("--fail-at must be 0-%d", progress.StageCount)}
			}
			if step <= 0 {
				return &ExitError{Code: ExitCLIError, Err: errors.New("--step must be positive")}
			}
			return a.serveDemo(cmd, addr, workersim.Config{
				Step:         step,
				ReportStages: reportStages,
				FailAt:       progress.StageIndex(failAt),
			}, filename, !noStart)
		},
	}
	fs := cmd.Flags()
	fs.String("addr", ":5000", "Listen address")
	fs.Duration("step", time.Second, "Time between simulated progress steps")
	fs.Bool("report-stages", false, "Include per-stage progress in status responses")
	fs.Int("fail-at", 0, "Fail jobs halfway through this stage (1-4, 0 = never)")
	fs.String("filename", "manual.pdf", "Filename of the demo job")
	fs.Bool("no-start", false, "Only serve the API without creating a job")
	return cmd
}

func (a *app) serveDemo(cmd *cobra.Command, addr string, cfg workersim.Config, filename string, start bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg.Logger = a.logger

	if a.settings.PushEnabled() {
		rc := a.settings.RedisConfig()
		rc.Logger = a.logger
		pub, err := events.NewRedis(ctx, rc)
		if err != nil {
			return &ExitError{Code: ExitTransport, Err: fmt.Errorf("push channel: %w", err)}
		}
		defer pub.Close()
		cfg.Publisher = pub
	}
	sim := workersim.New(cfg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	server := &http.Server{
		Handler:           sim.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("demo worker listening", "addr", ln.Addr().String())
		errChan <- server.Serve(ln)
	}()
	go sim.Run(ctx)

	base := "http://" + hostPort(ln.Addr())
	fmt.Fprintf(out, "Worker: %s\n", base)
	if start {
		id := sim.CreateSession(filename)
		if err := sim.Start(ctx, id); err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		fmt.Fprintf(out, "Job:    %s\n", id)
		fmt.Fprintf(out, "Watch:  ditatrack watch --server %s %s\n", base, id)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = &ExitError{Code: ExitCLIError, Err: fmt.Errorf("serve: %w", err)}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("graceful shutdown failed", "error", err)
	}
	return serveErr
}

// hostPort makes wildcard listen addresses usable as a client URL.
func hostPort(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
