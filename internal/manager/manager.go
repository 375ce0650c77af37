// Package manager runs batch conversions: it resolves the input set, fans the
// work out over a bounded worker pool, tracks progress and reports the
// aggregate outcome through events.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"audioconv/internal/config"
	"audioconv/internal/converter"
	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/models"
	"audioconv/internal/resource"
	"audioconv/internal/worker"
)

const (
	// How long before considering a task stuck
	stuckTaskThreshold = 3 * time.Minute
	stuckCheckInterval = 30 * time.Second

	recordTimeout    = 5 * time.Second
	updateBufferSize = 64
)

var (
	ErrAlreadyRunning = errors.New("a conversion is already running")
	ErrNoFilesFound   = errors.New("no audio files found")
)

// Request describes one StartConversion call.
type Request struct {
	Paths     []string `json:"paths"`
	Format    string   `json:"format"`
	OutputDir string   `json:"output_dir,omitempty"`
	Batch     bool     `json:"batch,omitempty"`
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, summary models.RunSummary) error
}

// Options configures a Manager. Zero values take defaults.
type Options struct {
	Workers       int
	TaskTimeout   time.Duration
	GCEvery       int
	EncodeRetries int
	SuccessPolicy string

	Emitter  events.Emitter
	Sampler  resource.Sampler
	Monitor  resource.Options
	Recorder Recorder
	Logger   *slog.Logger
	NewRunID func() string
}

// OptionsFromConfig maps the config file onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:       cfg.Conversion.Workers,
		TaskTimeout:   cfg.TaskTimeout(),
		GCEvery:       cfg.Conversion.GCEvery,
		EncodeRetries: cfg.Conversion.EncodeRetries,
		SuccessPolicy: cfg.Conversion.SuccessPolicy,
		Monitor: resource.Options{
			Interval:      cfg.MonitorInterval(),
			Thresholds:    resource.ThresholdsFrom(cfg.Monitor),
			HistoryWindow: cfg.Monitor.HistoryWindow,
		},
	}
}

// Manager is the batch scheduler. At most one run is active at a time.
type Manager struct {
	conv    worker.Converter
	opts    Options
	emitter events.Emitter
	monitor *resource.Monitor
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         models.RunState
	runID         string
	pool          *worker.Pool
	stopRequested bool
	done          chan struct{}
	stats         models.Stats
	last          *models.RunSummary
	processing    map[int]time.Time
}

// NewManager creates an idle Manager.
func NewManager(conv worker.Converter, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = resource.BaseWorkers()
	}
	if opts.GCEvery < 0 {
		opts.GCEvery = 0
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		conv:       conv,
		opts:       opts,
		emitter:    opts.Emitter,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      models.StateIdle,
		processing: make(map[int]time.Time),
	}
	if opts.Sampler != nil {
		monOpts := opts.Monitor
		monOpts.BaseWorkers = opts.Workers
		monOpts.Emitter = advisor{next: opts.Emitter, poolSize: opts.Workers}
		if monOpts.Logger == nil {
			monOpts.Logger = logging.Component(opts.Logger, "monitor")
		}
		m.monitor = resource.NewMonitor(opts.Sampler, monOpts)
	}
	return m
}

// Monitor returns the resource monitor, or nil when no sampler was configured.
func (m *Manager) Monitor() *resource.Monitor {
	return m.monitor
}

// StartConversion begins a run in the background and returns its id. When a
// run is already active it fails with ErrAlreadyRunning; the rejection is
// also published as an error followed by an unsuccessful completion.
func (m *Manager) StartConversion(req Request) (string, error) {
	runID := m.opts.NewRunID()

	m.mu.Lock()
	if m.state == models.StateRunning {
		active := m.runID
		m.mu.Unlock()
		m.logger.Warn("conversion rejected", slog.String("run_id", runID), slog.String("active_run", active))
		m.emitter.Publish(events.Error(runID, ErrAlreadyRunning.Error()))
		m.emitter.Publish(events.Complete(runID, false, &models.RunSummary{
			RunID:  runID,
			Format: req.Format,
			State:  models.StateIdle,
			Error:  ErrAlreadyRunning.Error(),
		}))
		return runID, ErrAlreadyRunning
	}
	m.state = models.StateRunning
	m.runID = runID
	m.pool = nil
	m.stopRequested = false
	m.done = make(chan struct{})
	m.stats = models.Stats{RunID: runID, StartTime: time.Now(), Workers: m.opts.Workers}
	clear(m.processing)
	m.mu.Unlock()

	go m.run(runID, req)
	return runID, nil
}

// StopConversion asks the active run to stop. Files already being converted
// finish; files not yet started are recorded as stopped. It reports whether
// a run was active.
func (m *Manager) StopConversion() bool {
	m.mu.Lock()
	if m.state != models.StateRunning {
		m.mu.Unlock()
		return false
	}
	already := m.stopRequested
	m.stopRequested = true
	pool, runID := m.pool, m.runID
	m.mu.Unlock()

	if pool != nil {
		pool.Stop()
	}
	if !already {
		m.logger.Info("stop requested", slog.String("run_id", runID))
		m.emitter.Publish(events.Status(runID, "Stopping conversion: files in progress will finish"))
	}
	return true
}

// State returns the scheduler state.
func (m *Manager) State() models.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a copy of the current run statistics.
func (m *Manager) Stats() models.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// LastSummary returns the outcome of the most recent finished run.
func (m *Manager) LastSummary() (models.RunSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return models.RunSummary{}, false
	}
	return copySummary(*m.last), true
}

// Wait blocks until the active run finishes or ctx ends. With no active run
// it returns immediately.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any active run, interrupting in-flight conversions, and
// waits up to ctx for it to finish. The Manager must not be reused after Close.
func (m *Manager) Close(ctx context.Context) error {
	m.StopConversion()
	m.cancel()
	return m.Wait(ctx)
}

func (m *Manager) run(runID string, req Request) {
	summary := models.RunSummary{
		RunID:     runID,
		Format:    req.Format,
		OutputDir: req.OutputDir,
		StartedAt: time.Now(),
	}
	logger := m.logger.With(slog.String("run_id", runID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("conversion run panicked", slog.Any("panic", r))
			m.mu.Lock()
			active := m.state == models.StateRunning && m.runID == runID
			m.mu.Unlock()
			if !active {
				return
			}
			m.stopMonitor()
			err := fmt.Errorf("unexpected error: %v", r)
			m.emitter.Publish(events.Error(runID, err.Error()))
			summary.Error = err.Error()
			m.finish(&summary, nil)
		}
	}()

	p, err := resolve(req)
	if err != nil {
		logger.Error("conversion setup failed", slog.String("error", err.Error()))
		m.emitter.Publish(events.Error(runID, err.Error()))
		summary.Error = err.Error()
		m.finish(&summary, nil)
		return
	}
	summary.Format = p.tasks[0].OutputFormat
	summary.OutputDir = p.outputDir

	m.mu.Lock()
	m.stats.TotalFiles = len(p.tasks)
	m.stats.TotalFileSize = p.totalSize
	m.mu.Unlock()

	logger.Info("conversion started",
		slog.String("mode", p.mode.String()),
		slog.Int("files", len(p.tasks)),
		slog.String("format", summary.Format),
		slog.Int("workers", m.opts.Workers),
	)
	if p.mode == modeFolder {
		m.emitter.Publish(events.Status(runID, fmt.Sprintf("Found %d audio files", len(p.tasks))))
	}

	if m.monitor != nil {
		m.monitor.StartPrediction(runID, len(p.tasks))
		m.monitor.Start()
	}

	var results []models.Result
	if p.mode == modeSingle {
		results = []models.Result{m.runSingle(runID, p.tasks[0])}
	} else {
		results = m.runPool(runID, p.tasks)
	}
	m.stopMonitor()
	m.finish(&summary, results)
}

// runSingle converts one file on the run goroutine. Per-file progress is
// the overall progress; 100 is published once the result is accounted.
func (m *Manager) runSingle(runID string, task models.Task) (result models.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = models.Failed(task, fmt.Errorf("unexpected error: %v", r), time.Since(start))
		}
		m.complete(runID, result, 1, 1)
	}()

	result, _ = m.conv.ConvertOne(m.ctx, task, converter.Hooks{
		OnProgress: func(p int) {
			if p < 100 {
				m.emitter.Publish(events.Progress(runID, p))
			}
		},
		OnStatus: func(msg string) { m.emitter.Publish(events.Status(runID, msg)) },
	})
	return result
}

func (m *Manager) runPool(runID string, tasks []models.Task) []models.Result {
	pool := worker.NewPool(m.conv, worker.Config{
		Size:        m.opts.Workers,
		TaskTimeout: m.opts.TaskTimeout,
		MaxRetries:  m.opts.EncodeRetries,
		Logger:      logging.Component(m.logger, "worker"),
	})
	m.mu.Lock()
	m.pool = pool
	stop := m.stopRequested
	m.mu.Unlock()
	if stop {
		pool.Stop()
	}

	updates := make(chan models.StatusUpdate, updateBufferSize)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(m.ctx, tasks, updates)
	}()

	stuckCtx, cancelStuck := context.WithCancel(m.ctx)
	defer cancelStuck()
	go m.monitorStuckTasks(stuckCtx, runID)

	results := make([]models.Result, len(tasks))
	completed := 0
	handle := func(u models.StatusUpdate) {
		if u.Result != nil {
			completed++
			results[u.Index-1] = *u.Result
			m.complete(runID, *u.Result, completed, len(tasks))
			return
		}
		m.markProcessing(u.Index)
		if u.Progress >= 0 {
			m.emitter.Publish(events.FileProgress(runID, u.Index, u.Progress))
		}
		if u.Message != "" {
			m.emitter.Publish(events.Status(runID, u.Message))
		}
	}

	for {
		select {
		case u := <-updates:
			handle(u)
		case <-poolDone:
			for {
				select {
				case u := <-updates:
					handle(u)
				default:
					return results
				}
			}
		}
	}
}

// complete accounts one finished task. Progress is completed/total.
func (m *Manager) complete(runID string, result models.Result, completed, total int) {
	m.mu.Lock()
	m.stats.ProcessedFiles = min(m.stats.ProcessedFiles+1, m.stats.TotalFiles)
	if result.Success {
		m.stats.Successful++
	} else {
		m.stats.Failed++
	}
	delete(m.processing, result.Task.Index)
	m.mu.Unlock()

	if !result.Success {
		m.logger.Warn("file conversion failed",
			slog.String("run_id", runID),
			slog.String("file", result.Task.InputPath),
			slog.Int("index", result.Task.Index),
			slog.String("error", result.Message),
		)
		m.emitter.Publish(events.Error(runID, fmt.Sprintf("%s: %s", filepath.Base(result.Task.InputPath), result.Message)))
	}

	if m.monitor != nil {
		m.monitor.UpdateProgress(completed, float64(result.Task.FileSize)/(1024*1024))
	}
	m.emitter.Publish(events.Progress(runID, completed*100/total))

	if m.opts.GCEvery > 0 && completed%m.opts.GCEvery == 0 {
		resource.ForceGC()
	}
}

func (m *Manager) finish(summary *models.RunSummary, results []models.Result) {
	resource.ForceGC()

	summary.FinishedAt = time.Now()
	summary.Elapsed = summary.FinishedAt.Sub(summary.StartedAt)
	summary.Results = results
	summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		}
	}
	summary.Failed = summary.Total - summary.Succeeded

	m.mu.Lock()
	stopped := m.stopRequested
	m.mu.Unlock()

	summary.State = models.StateCompleted
	if stopped {
		summary.State = models.StateStopped
	}
	if summary.Error == "" {
		summary.Success = Succeeded(m.opts.SuccessPolicy, summary.Succeeded, summary.Total)
		prefix := "Conversion finished"
		if stopped {
			prefix = "Conversion stopped"
		}
		m.emitter.Publish(events.Status(summary.RunID, ratioMessage(prefix, summary.Succeeded, summary.Total)))
	}

	if m.opts.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := m.opts.Recorder.Record(ctx, *summary); err != nil {
			m.logger.Warn("failed to record run history", slog.String("run_id", summary.RunID), slog.String("error", err.Error()))
		}
		cancel()
	}

	m.logger.Info("conversion finished",
		slog.String("run_id", summary.RunID),
		slog.String("state", string(summary.State)),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Bool("success", summary.Success),
		slog.Duration("elapsed", summary.Elapsed),
	)

	m.mu.Lock()
	m.state = summary.State
	m.stats.EndTime = summary.FinishedAt
	last := copySummary(*summary)
	m.last = &last
	m.pool = nil
	done := m.done
	m.mu.Unlock()

	m.emitter.Publish(events.Complete(summary.RunID, summary.Success, summary))
	close(done)
}

func (m *Manager) stopMonitor() {
	if m.monitor != nil {
		m.monitor.Stop()
	}
}

func (m *Manager) markProcessing(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processing[index]; !ok {
		m.processing[index] = time.Now()
	}
}

// monitorStuckTasks checks for tasks that appear to be stuck
func (m *Manager) monitorStuckTasks(ctx context.Context, runID string) {
	ticker := time.NewTicker(stuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for index, started := range m.processing {
				if now.Sub(started) > stuckTaskThreshold {
					m.logger.Warn("task appears to be stuck",
						slog.String("run_id", runID),
						slog.Int("index", index),
						slog.Duration("running", now.Sub(started).Round(time.Second)),
					)
					// Reset the timer so we don't warn constantly
					m.processing[index] = now.Add(-stuckTaskThreshold / 2)
				}
			}
			m.mu.Unlock()
		}
	}
}

func copySummary(s models.RunSummary) models.RunSummary {
	s.Results = append([]models.Result(nil), s.Results...)
	return s
}

// advisor forwards monitor events and turns worker adjustments into an
// operator-facing status line. The pool size is not changed mid-run.
type advisor struct {
	next     events.Emitter
	poolSize int
}

func (a advisor) Publish(e events.Event) {
	a.next.Publish(e)
	if e.Kind != events.KindWorkerAdjustment || e.Resource == nil {
		return
	}
	msg := fmt.Sprintf("%s. Recommended workers: %d (running with %d)",
		resource.WarningText(*e.Resource), e.Resource.AvailableWorkers, a.poolSize)
	a.next.Publish(events.Status(e.RunID, msg))
}
