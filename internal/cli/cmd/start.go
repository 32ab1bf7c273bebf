package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <job-id|url>",
		Short: "Ask the worker to start converting an uploaded file, then watch it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args)
			if err != nil {
				return err
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}
			if err := client.StartJob(cmd.Context(), id); err != nil {
				return requestError(err)
			}
			a.logger.Info("job started", "job_id", id)

			if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", id)
				return nil
			}
			return a.track(cmd, trackOptions(cmd, id, a))
		},
	}
	cmd.Flags().Bool("no-watch", false, "Return after the worker accepts the job")
	bindTrackFlags(cmd.Flags())
	return cmd
}
