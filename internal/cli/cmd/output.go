package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ditatrack/internal/model"
)

func outputFormat(cmd *cobra.Command) (model.OutputFormat, error) {
	raw, _ := cmd.Flags().GetString("output")
	f, err := model.ParseOutputFormat(raw)
	if err != nil {
		return "", &ExitError{Code: ExitCLIError, Err: err}
	}
	return f, nil
}

// writeStructured prints v as indented JSON or YAML.
func writeStructured(w io.Writer, f model.OutputFormat, v any) error {
	switch f {
	case model.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case model.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not structured", f)
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		String()
}
