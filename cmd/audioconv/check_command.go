package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"audioconv/internal/codec"
	"audioconv/internal/security"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var clamdAddress string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify external dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			missing := false
			var rows [][]string
			for _, status := range codec.Check(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath) {
				detail := status.Detail
				if !status.Available {
					missing = true
				}
				rows = append(rows, []string{status.Name, status.Command, yesNo(status.Available), detail})
			}

			address := clamdAddress
			if address == "" {
				address = cfg.Security.ClamdAddress
			}
			if cfg.Security.ScanInputs || clamdAddress != "" {
				version, err := security.Probe(address)
				row := []string{"clamd", address, yesNo(err == nil), version}
				if err != nil {
					row[3] = err.Error()
					if cfg.Security.ScanInputs {
						row[3] += " (input scanning will be disabled)"
					}
				}
				rows = append(rows, row)
			}

			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Available", "Detail"}, rows, nil))
			if missing {
				return errors.New("required dependencies are missing")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clamdAddress, "clamd", "", "Probe this ClamAV daemon address")
	return cmd
}
