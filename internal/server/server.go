// Package server exposes the batch scheduler over HTTP and streams its events
// to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/manager"
	"audioconv/internal/models"
	"audioconv/internal/resource"
)

const shutdownTimeout = 10 * time.Second

// Scheduler is the part of the batch manager the server drives.
type Scheduler interface {
	StartConversion(req manager.Request) (string, error)
	StopConversion() bool
	State() models.RunState
	Stats() models.Stats
}

// HistoryReader lists recorded runs.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)
	Get(ctx context.Context, runID string) (models.RunSummary, bool, error)
}

// Options carries the optional collaborators.
type Options struct {
	Monitor *resource.Monitor
	History HistoryReader
	Logger  *slog.Logger
}

// Server wires the HTTP routes to a Scheduler and an event Bus.
type Server struct {
	sched    Scheduler
	bus      *events.Bus
	snapshot *events.Snapshot
	monitor  *resource.Monitor
	history  HistoryReader
	logger   *slog.Logger
	upgrader websocket.Upgrader
	started  time.Time
	clients  atomic.Int64
}

// New creates a Server and subscribes its status snapshot to bus.
func New(sched Scheduler, bus *events.Bus, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		sched:    sched,
		bus:      bus,
		snapshot: &events.Snapshot{},
		monitor:  opts.Monitor,
		history:  opts.History,
		logger:   logging.Component(logger, "server"),
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	bus.Subscribe(s.snapshot)
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	api.GET("/formats", s.handleFormats)
	api.GET("/status", s.handleStatus)
	api.POST("/convert", s.handleConvert)
	api.POST("/stop", s.handleStop)
	api.GET("/history", s.handleHistory)
	api.GET("/history/:id", s.handleRun)

	router.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})
	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	return int(s.clients.Load())
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
