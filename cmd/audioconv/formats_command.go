package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audioconv/internal/formats"
)

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "formats",
		Short:       "List supported input and output formats",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			outputs := formats.ListOutputFormats()
			rows := make([][]string, 0, len(outputs))
			for _, ext := range outputs {
				f, _ := formats.Lookup(ext)
				rows = append(rows, []string{formats.DisplayName(ext), "." + f.Ext, f.Muxer})
			}
			fmt.Fprintln(out, "Output formats:")
			fmt.Fprintln(out, renderTable([]string{"Format", "Extension", "Muxer"}, rows, nil))

			inputs := formats.ListInputFormats()
			names := make([]string, len(inputs))
			for i, ext := range inputs {
				names[i] = formats.DisplayName(ext)
			}
			fmt.Fprintf(out, "Input formats: %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}
