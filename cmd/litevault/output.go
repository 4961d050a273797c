package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// print writes v as indented JSON when --output-json is set, text otherwise.
func (c *cli) print(cmd *cobra.Command, v any, text string) error {
	out := cmd.OutOrStdout()
	if c.outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := fmt.Fprint(out, text)
	return err
}
