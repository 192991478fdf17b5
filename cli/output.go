package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Success prints a styled confirmation line unless --json is set.
func Success(cmd *cobra.Command, format string, args ...interface{}) {
	if GetOptions(cmd).JSONOutput {
		return
	}
	w := cmd.OutOrStdout()
	t := NewTheme(w)
	fmt.Fprintf(w, "%s %s\n", t.Success.Render("✓"), fmt.Sprintf(format, args...))
}
