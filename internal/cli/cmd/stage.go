package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"ditatrack/internal/model"
	"ditatrack/internal/progress"
	"ditatrack/internal/stagedetail"
)

func newStageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage <job-id|url> <1-4>",
		Short: "Show the payload of a completed stage",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args)
			if err != nil {
				return err
			}
			if len(args) < 2 {
				return &ExitError{Code: ExitCLIError, Err: errors.New("stage number required (1-4)")}
			}
			idx, ok := progress.ParseStageKey(args[1])
			if !ok {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("invalid stage %q (valid: 1-4)", args[1])}
			}
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}

			loader := stagedetail.Loader{Source: client, Logger: a.logger}
			d, err := loader.Load(cmd.Context(), id, idx)
			if err != nil {
				return requestError(err)
			}

			if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
				data, err := stagedetail.ExportXLSX(d)
				if err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("write workbook: %w", err)}
				}
				a.logger.Info("stage exported", "stage", idx.Key(), "path", path)
			}

			w := cmd.OutOrStdout()
			if format != model.OutputTable {
				return writeStructured(w, format, d)
			}
			printDetailTable(w, d)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
	cmd.Flags().String("xlsx", "", "Also write the stage detail to this .xlsx file")
	return cmd
}

func printDetailTable(w io.Writer, d stagedetail.Detail) {
	rows := make([][]string, 0, 8)
	for _, r := range d.Rows() {
		rows = append(rows, []string{r[0], r[1]})
	}
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows))

	if d.Semantic == nil || len(d.Semantic.Chunks) == 0 {
		return
	}
	chunks := make([][]string, 0, len(d.Semantic.Chunks))
	for _, c := range d.Semantic.Chunks {
		chunks = append(chunks, []string{c.ID, c.Title, strconv.Itoa(c.Level), c.Type, strconv.FormatFloat(c.Confidence, 'f', 2, 64)})
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "Title", "Level", "Type", "Confidence"}, chunks))
}
