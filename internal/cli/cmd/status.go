package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"ditatrack/internal/model"
	"ditatrack/internal/progress"
)

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id|url>",
		Short: "Fetch one status snapshot and print the reconciled job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}

			u, err := client.FetchStatus(cmd.Context(), id)
			if err != nil {
				return requestError(err)
			}
			job, out := a.reconciler().Merge(progress.NewJob(id), u)
			for _, d := range out.Discrepancies {
				a.logger.Debug("update discrepancy", "detail", d.String())
			}

			report := model.NewJobReport(job, client.ResultURL(id), func(idx progress.StageIndex) string {
				return client.StageURL(id, idx)
			})
			w := cmd.OutOrStdout()
			if format != model.OutputTable {
				return writeStructured(w, format, report)
			}
			printJobTable(w, report)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
	return cmd
}

func printJobTable(w io.Writer, r model.JobReport) {
	name := r.Filename
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(w, "Job:      %s\n", r.JobID)
	fmt.Fprintf(w, "File:     %s\n", name)
	fmt.Fprintf(w, "Status:   %s (%d%%)\n", r.Status, r.Progress)
	if r.Message != "" {
		fmt.Fprintf(w, "Message:  %s\n", r.Message)
	}
	rows := make([][]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		rows = append(rows, []string{strconv.Itoa(s.Stage), s.Title, s.Status, strconv.Itoa(s.Progress) + "%", s.Message})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Stage", "Status", "Progress", "Message"}, rows))
	if r.ResultURL != "" {
		fmt.Fprintf(w, "Result:   %s\n", r.ResultURL)
	}
}
