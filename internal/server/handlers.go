package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"audioconv/internal/formats"
	"audioconv/internal/manager"
	"audioconv/internal/util"
)

const defaultHistoryLimit = 20

func (s *Server) handleFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"output": formats.ListOutputFormats(),
		"input":  formats.ListInputFormats(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{
		"state":       s.sched.State(),
		"stats":       s.sched.Stats(),
		"events":      s.snapshot.View(),
		"clients":     s.ClientCount(),
		"diagnostics": util.GetProcessInfo(s.started),
	}
	if s.monitor != nil {
		body["resource"] = s.monitor.Status()
		body["prediction"] = s.monitor.Prediction()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleConvert(c *gin.Context) {
	var req manager.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Paths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paths required"})
		return
	}
	if strings.TrimSpace(req.Format) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format required"})
		return
	}
	if !formats.IsSupportedOutput(req.Format) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported output format: " + req.Format})
		return
	}

	runID, err := s.sched.StartConversion(req)
	if errors.Is(err, manager.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "run_id": runID})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("conversion started", slog.String("run_id", runID), slog.Int("paths", len(req.Paths)))
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) handleStop(c *gin.Context) {
	stopped := s.sched.StopConversion()
	c.JSON(http.StatusOK, gin.H{"stopping": stopped, "state": s.sched.State()})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not enabled"})
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRun(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not enabled"})
		return
	}
	run, ok, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("history lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}
