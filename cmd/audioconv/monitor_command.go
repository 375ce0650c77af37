package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/models"
	"audioconv/internal/resource"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	var duration time.Duration
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print live CPU, memory and disk load",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.MonitorInterval()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, duration)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			bus := events.NewBus()
			bus.Subscribe(events.Funcs{
				OnResourceStatus: func(status models.ResourceStatus) {
					printResourceStatus(out, status)
				},
			})

			mon := resource.NewMonitor(resource.NewHostSampler(cfg.Monitor.DiskPath), resource.Options{
				Interval:      interval,
				Thresholds:    resource.ThresholdsFrom(cfg.Monitor),
				HistoryWindow: cfg.Monitor.HistoryWindow,
				Emitter:       bus,
				Logger:        logging.Component(logger, "monitor"),
			})
			mon.Start()
			<-runCtx.Done()
			mon.Stop()
			bus.Close()

			fmt.Fprintln(out, mon.WorkersText())
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (default: until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Sampling interval (default from config)")
	return cmd
}

func printResourceStatus(out io.Writer, status models.ResourceStatus) {
	fmt.Fprintf(out, "%s  CPU: %5.1f%%  Memory: %5.1f%%  Disk: %5.1f%%  [%s]  workers: %d\n",
		status.SampledAt.Format("15:04:05"),
		status.CPUPercent,
		status.MemoryPercent,
		status.DiskPercent,
		status.Status,
		status.AvailableWorkers,
	)
	if status.Status != models.HealthNormal {
		fmt.Fprintln(out, "  "+resource.WarningText(status))
	}
}
