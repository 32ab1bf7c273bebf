// Package model holds the CLI's runtime options and the report shapes it
// prints.
package model

import (
	"fmt"
	"strings"
)

// OutputFormat selects how one-shot commands print their result.
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat accepts table, json or yaml (yml), case-insensitively.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "table", "text":
		return OutputTable, nil
	case "json":
		return OutputJSON, nil
	case "yaml", "yml":
		return OutputYAML, nil
	}
	return "", fmt.Errorf("invalid output format %q (valid: table|json|yaml)", raw)
}

// Options are the per-invocation choices a tracking command runs with.
type Options struct {
	JobID  string
	OutDir string
	Output OutputFormat
	// Plain disables the TUI and prints one line per changed field.
	Plain bool
	// Download saves the result into OutDir once the job completes.
	Download bool
}
