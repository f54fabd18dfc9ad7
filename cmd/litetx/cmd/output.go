package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", formatText, "Output format (text or json)")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatText, formatJSON:
		return format, nil
	}
	return "", fmt.Errorf("unknown output format: %q", format)
}

// outputJSON writes v as indented JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
