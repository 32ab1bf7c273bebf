package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ditatrack/internal/progress"
	"ditatrack/internal/util/format"
)

func newDownloadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <job-id|url>",
		Short: "Save the converted package, or one stage's payload, into --out-dir",
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

			url, fallback := client.ResultURL(id), "converted_"+id+".zip"
			if raw, _ := cmd.Flags().GetString("stage"); raw != "" {
				idx, ok := progress.ParseStageKey(raw)
				if !ok {
					return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("invalid stage %q (valid: 1-4)", raw)}
				}
				url, fallback = client.StageURL(id, idx), id+"_"+idx.Layer()+".json"
			}

			path, n, err := saveBlob(cmd.Context(), client, url, a.settings.OutDir, fallback)
			if err != nil {
				return requestError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%s)\n", path, format.HumanizeBytes(n))
			return nil
		},
	}
	cmd.Flags().String("stage", "", "Download the payload of stage 1-4 instead of the result")
	return cmd
}
