package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audioconv/internal/codec"
	"audioconv/internal/config"
	"audioconv/internal/converter"
	"audioconv/internal/events"
	"audioconv/internal/history"
	"audioconv/internal/logging"
	"audioconv/internal/manager"
	"audioconv/internal/resource"
	"audioconv/internal/security"
	"audioconv/internal/server"
)

const closeTimeout = 30 * time.Second

// application is the wired conversion stack shared by convert and serve.
type application struct {
	logger  *slog.Logger
	codec   *codec.FFmpeg
	scanner *security.Scanner
	manager *manager.Manager
	history *history.Store
}

func newApplication(cfg *config.Config, logger *slog.Logger, emitter events.Emitter) (*application, error) {
	ff, err := codec.NewFFmpeg(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath,
		codec.LaunchOptions{HideWindow: cfg.Conversion.HideWindow})
	if err != nil {
		return nil, fmt.Errorf("locate ffmpeg: %w (see `audioconv check`)", err)
	}

	scanner := security.NewScanner(cfg.Security.ScanInputs, cfg.Security.ClamdAddress,
		logging.Component(logger, "security"))

	conv := converter.New(ff,
		converter.WithScanner(scanner),
		converter.WithMP3Policy(cfg.FFmpeg.MP3Bitrate, cfg.FFmpeg.MP3Quality),
		converter.WithLogger(logging.Component(logger, "converter")),
	)

	app := &application{logger: logger, codec: ff, scanner: scanner}

	opts := manager.OptionsFromConfig(cfg)
	opts.Emitter = emitter
	opts.Sampler = resource.NewHostSampler(cfg.Monitor.DiskPath)
	opts.Logger = logging.Component(logger, "scheduler")

	store, err := history.Open(cfg)
	if err != nil {
		logger.Warn("run history disabled", slog.String("path", cfg.HistoryPath()), slog.String("error", err.Error()))
	} else {
		app.history = store
		opts.Recorder = store
	}

	app.manager = manager.NewManager(conv, opts)
	return app, nil
}

// historyReader hands the store to optional consumers. A missing store
// stays a nil interface.
func (a *application) historyReader() server.HistoryReader {
	if a.history == nil {
		return nil
	}
	return a.history
}

func (a *application) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.manager.Close(ctx); err != nil {
		a.logger.Warn("conversion did not finish before shutdown", slog.String("error", err.Error()))
	}
	if err := a.history.Close(); err != nil {
		a.logger.Warn("close history", slog.String("error", err.Error()))
	}
}
