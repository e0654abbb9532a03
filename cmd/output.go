package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func addFormatFlag(c *cobra.Command, target *string) {
	c.Flags().StringVarP(target, "format", "o", formatTable, "Output format: table, json, yaml")
}

func checkFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
	}
}

// writeStructured prints v as JSON or YAML. It reports false for the table
// format, leaving rendering to the caller.
func writeStructured(format string, v any) (bool, error) {
	return writeStructuredTo(os.Stdout, format, v)
}

func writeStructuredTo(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}
