package main

import (
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the converter over HTTP with a websocket event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			addr := strings.TrimSpace(bind)
			if addr == "" {
				addr = cfg.Server.Bind
			}

			lock, err := acquireLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			bus := events.NewBus()
			defer bus.Close()
			bus.Subscribe(events.HandlerFunc(func(e events.Event) {
				if e.Kind == events.KindError {
					logger.Warn("conversion error", slog.String("run_id", e.RunID), slog.String("message", e.Message))
				}
			}))

			app, err := newApplication(cfg, logger, bus)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := server.New(app.manager, bus, server.Options{
				Monitor: app.manager.Monitor(),
				History: app.historyReader(),
				Logger:  logging.Component(logger, "http"),
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(runCtx, addr)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from config)")
	return cmd
}
