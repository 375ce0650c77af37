package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"audioconv/internal/history"
	"audioconv/internal/report"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return withHistory(ctx, func(store *history.Store) error {
				runs, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No conversion runs recorded")
					return nil
				}
				fmt.Fprintln(out, report.RunsTable(runs))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the per-file results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				run, ok, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("run %s not found", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s (%s, %s)\n", run.RunID, run.Format, run.State)
				fmt.Fprintln(out, report.Table(run))
				if reportPath != "" {
					if err := report.WritePDF(reportPath, run); err != nil {
						return err
					}
					fmt.Fprintf(out, "Report written to %s\n", reportPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write a PDF report to this file")
	return cmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}
