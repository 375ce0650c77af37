package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"audioconv/internal/config"
	"audioconv/internal/events"
	"audioconv/internal/formats"
	"audioconv/internal/manager"
	"audioconv/internal/models"
	"audioconv/internal/report"
	"audioconv/internal/util"
)

const diagnosticInterval = 30 * time.Second

type convertOptions struct {
	to         string
	out        string
	batch      bool
	workers    int
	reportPath string
	noProgress bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert PATH...",
		Short: "Convert a file, a folder, or a list of files",
		Long: "Convert a single file, every audio file directly inside a folder, or an explicit list of files.\n" +
			"Folder conversions write into <folder>/converted unless --out is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, ctx, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.to, "to", "t", "", "Output format ("+strings.Join(formats.ListOutputFormats(), ", ")+")")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output directory")
	cmd.Flags().BoolVar(&opts.batch, "batch", false, "Treat a single file argument as a batch")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Worker count (default from config)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write a PDF report of the run to this file")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Print plain status lines instead of a progress bar")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runConvert(cmd *cobra.Command, ctx *commandContext, opts convertOptions, args []string) error {
	if !formats.IsSupportedOutput(opts.to) {
		return fmt.Errorf("unsupported output format %q (supported: %s)", opts.to, strings.Join(formats.ListOutputFormats(), ", "))
	}
	if opts.workers < 0 {
		return errors.New("--workers must not be negative")
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Conversion.Workers = opts.workers
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	lock, err := acquireLock(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if ctx.diagnostics() {
		stop := util.StartDiagnosticMonitor(logger, ctx.started, diagnosticInterval)
		defer stop()
		util.LogFullDiagnostics(logger, ctx.started)
		defer util.LogFullDiagnostics(logger, ctx.started)
	}

	bus := events.NewBus()
	out := cmd.OutOrStdout()
	bus.Subscribe(newProgressView(out, !opts.noProgress && isTerminal(out)))

	app, err := newApplication(cfg, logger, bus)
	if err != nil {
		bus.Close()
		return err
	}
	defer app.Close()

	stopSignals := handleInterrupts(app.manager, logger)
	defer stopSignals()

	runID, err := app.manager.StartConversion(manager.Request{
		Paths:     args,
		Format:    formats.Normalize(opts.to),
		OutputDir: opts.out,
		Batch:     opts.batch,
	})
	if err != nil {
		bus.Close()
		return err
	}
	logger.Debug("conversion started", slog.String("run_id", runID))

	waitErr := app.manager.Wait(cmd.Context())
	bus.Close()
	if waitErr != nil {
		return waitErr
	}

	summary, ok := app.manager.LastSummary()
	if !ok {
		return errors.New("conversion finished without a summary")
	}
	if len(summary.Results) > 0 {
		fmt.Fprintln(out, report.Table(summary))
	}
	if opts.reportPath != "" {
		if err := report.WritePDF(opts.reportPath, summary); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", opts.reportPath)
	}
	return summaryError(summary)
}

// summaryError turns an unsuccessful run into the command's exit error.
func summaryError(summary models.RunSummary) error {
	if summary.Success {
		return nil
	}
	if summary.Error != "" {
		return fmt.Errorf("conversion failed: %s", summary.Error)
	}
	if summary.State == models.StateStopped {
		return fmt.Errorf("conversion stopped: %d/%d files converted", summary.Succeeded, summary.Total)
	}
	return fmt.Errorf("conversion failed: %d/%d files converted", summary.Succeeded, summary.Total)
}

// acquireLock keeps one batch per state directory.
func acquireLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another audioconv batch is already running (lock %s)", cfg.LockPath())
	}
	return lock, nil
}

// handleInterrupts turns the first SIGINT/SIGTERM into a cooperative stop.
// A second signal cancels in-flight conversions.
func handleInterrupts(mgr *manager.Manager, logger *slog.Logger) func() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after files in progress", slog.String("signal", sig.String()))
			mgr.StopConversion()
		case <-done:
			return
		}
		select {
		case sig := <-sigChan:
			logger.Warn("received second signal, cancelling conversions", slog.String("signal", sig.String()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = mgr.Close(shutdownCtx)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
