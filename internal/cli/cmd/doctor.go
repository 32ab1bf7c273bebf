package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ditatrack/internal/events"
	"ditatrack/internal/logging"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the worker, the push channel and local paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			cfgFile := viper.ConfigFileUsed()
			if cfgFile == "" {
				cfgFile = "none (defaults, env and flags)"
			}
			fmt.Fprintf(out, "Config:   %s\n", cfgFile)

			client, err := a.newClient()
			if err != nil {
				return err
			}
			if err := client.Health(ctx); err != nil {
				fmt.Fprintf(out, "Worker:   %s unreachable\n", a.settings.Server)
				return requestError(err)
			}
			fmt.Fprintf(out, "Worker:   %s ok\n", a.settings.Server)

			if err := checkPush(ctx, a); err != nil {
				return &ExitError{Code: ExitTransport, Err: err}
			}
			fmt.Fprintf(out, "Push:     %s\n", pushLabel(a))

			if p, err := logging.Path(); err == nil {
				fmt.Fprintf(out, "Log file: %s\n", p)
			}
			fmt.Fprintf(out, "Out dir:  %s\n", a.settings.OutDir)
			return nil
		},
	}
}

func checkPush(ctx context.Context, a *app) error {
	if !a.settings.PushEnabled() {
		return nil
	}
	cfg := a.settings.RedisConfig()
	cfg.Logger = a.logger
	r, err := events.NewRedis(ctx, cfg)
	if err != nil {
		return fmt.Errorf("push channel: %w", err)
	}
	return r.Close()
}

func pushLabel(a *app) string {
	if !a.settings.PushEnabled() {
		return "not configured (polling only)"
	}
	return fmt.Sprintf("redis %s channel %q ok", a.settings.RedisAddr, a.settings.EventsChannel)
}
