package resource

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/models"
)

const (
	// DefaultInterval is the time between resource checks.
	DefaultInterval = 2 * time.Second

	stopTimeout          = 2 * time.Second
	defaultHistoryWindow = 1024
)

// Sampler reads current host load.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (Sample, error)

func (f SamplerFunc) Sample(ctx context.Context) (Sample, error) { return f(ctx) }

// Options configures a Monitor. Zero values take defaults.
type Options struct {
	Interval      time.Duration
	Thresholds    Thresholds
	BaseWorkers   int
	HistoryWindow int
	Emitter       events.Emitter
	Logger        *slog.Logger
}

// Monitor samples host load on a fixed tick and tracks progress prediction
// for the current run. Snapshots returned by its accessors are copies.
type Monitor struct {
	sampler    Sampler
	interval   time.Duration
	thresholds Thresholds
	base       int
	emitter    events.Emitter
	logger     *slog.Logger
	now        func() time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	status models.ResourceStatus

	runID      string
	predicting bool
	startTime  time.Time
	total      int
	processed  int
	avg        time.Duration
	remaining  time.Duration
	timings    *ring
	sizes      *ring
}

// NewMonitor creates a stopped Monitor.
func NewMonitor(sampler Sampler, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.BaseWorkers <= 0 {
		opts.BaseWorkers = BaseWorkers()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Monitor{
		sampler:    sampler,
		interval:   opts.Interval,
		thresholds: opts.Thresholds,
		base:       opts.BaseWorkers,
		emitter:    opts.Emitter,
		logger:     opts.Logger,
		now:        time.Now,
		status: models.ResourceStatus{
			AvailableWorkers: opts.BaseWorkers,
			Status:           models.HealthNormal,
		},
		timings: newRing(opts.HistoryWindow),
		sizes:   newRing(opts.HistoryWindow),
	}
}

// Start begins resource monitoring. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
}

// Stop ends monitoring, waiting at most two seconds for the sampling loop.
// Calling Stop on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lifecycle.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		m.logger.Warn("resource monitor did not stop in time", slog.Duration("timeout", stopTimeout))
	}
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.cancel != nil
}

func (m *Monitor) tick(ctx context.Context) {
	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("resource sample failed", slog.String("error", err.Error()))
		}
		return
	}
	status := Evaluate(sample, m.thresholds, m.base)
	status.SampledAt = m.now()

	m.mu.Lock()
	previous := m.status.Status
	m.status = status
	runID := m.runID
	predicting := m.predicting
	prediction := m.predictionLocked()
	m.mu.Unlock()

	e := events.ResourceStatus(status)
	e.RunID = runID
	m.emitter.Publish(e)

	if status.Status == models.HealthCritical && previous != models.HealthCritical {
		m.logger.Warn("resources critical",
			slog.Float64("cpu_percent", status.CPUPercent),
			slog.Float64("memory_percent", status.MemoryPercent),
			slog.Float64("disk_percent", status.DiskPercent),
			slog.Int("recommended_workers", status.AvailableWorkers),
		)
		adj := events.WorkerAdjustment(status)
		adj.RunID = runID
		m.emitter.Publish(adj)
	}

	if predicting {
		pe := events.ProgressPrediction(prediction)
		pe.RunID = runID
		m.emitter.Publish(pe)
	}
}

// Status returns the latest resource snapshot.
func (m *Monitor) Status() models.ResourceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StartPrediction resets progress tracking for a run of total files.
func (m *Monitor) StartPrediction(runID string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = runID
	m.predicting = true
	m.startTime = m.now()
	m.total = total
	m.processed = 0
	m.avg = 0
	m.remaining = 0
	m.timings.reset()
	m.sizes.reset()
}

// UpdateProgress records that processed files are done. The average is
// cumulative: elapsed time since the run started divided by processed.
func (m *Monitor) UpdateProgress(processed int, fileSizeMB float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.predicting {
		return
	}
	processed = min(processed, m.total)
	if processed < m.processed {
		return
	}
	m.processed = processed
	if fileSizeMB > 0 {
		m.sizes.push(fileSizeMB)
	}
	if processed == 0 {
		return
	}
	elapsed := m.now().Sub(m.startTime)
	m.avg = elapsed / time.Duration(processed)
	m.remaining = m.avg * time.Duration(m.total-processed)
	m.timings.push(m.avg.Seconds())
}

// Prediction returns the current estimate.
func (m *Monitor) Prediction() models.ProgressPrediction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictionLocked()
}

func (m *Monitor) predictionLocked() models.ProgressPrediction {
	p := models.ProgressPrediction{
		Processed:      m.processed,
		Total:          m.total,
		AvgTimePerFile: m.avg,
		RemainingTime:  m.remaining,
	}
	if m.total > 0 {
		p.ProgressPercent = float64(m.processed) / float64(m.total) * 100
	}
	return p
}

// History returns the recorded per-update averages in seconds, oldest first.
// Only the most recent HistoryWindow entries are kept.
func (m *Monitor) History() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timings.values()
}

// Throughput is the mean size in MB of the files recorded in the window
// divided by the current average time per file.
func (m *Monitor) Throughput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := m.sizes.values()
	if len(sizes) == 0 || m.avg <= 0 {
		return 0
	}
	var sum float64
	for _, s := range sizes {
		sum += s
	}
	return sum / float64(len(sizes)) / m.avg.Seconds()
}

// PredictionText renders the remaining time, or "" when there is no estimate.
func (m *Monitor) PredictionText() string {
	m.mu.Lock()
	remaining, predicting := m.remaining, m.predicting
	m.mu.Unlock()
	if !predicting || remaining <= 0 {
		return ""
	}
	return "Estimated time remaining: " + FormatRemaining(remaining)
}

// FormatRemaining renders d as "45s", "3m 20s" or "1h 5m".
func FormatRemaining(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.0fs", secs)
	case secs < 3600:
		total := int(secs)
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	default:
		total := int(secs)
		return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
	}
}

// Warning describes a warning or critical load, or returns "".
func (m *Monitor) Warning() string {
	return WarningText(m.Status())
}

// WarningText is Warning for an arbitrary snapshot.
func WarningText(s models.ResourceStatus) string {
	switch s.Status {
	case models.HealthCritical:
		return fmt.Sprintf("Resources critical! CPU: %.1f%%, Memory: %.1f%%", s.CPUPercent, s.MemoryPercent)
	case models.HealthWarning:
		return fmt.Sprintf("Resource warning: CPU: %.1f%%, Memory: %.1f%%", s.CPUPercent, s.MemoryPercent)
	default:
		return ""
	}
}

// WorkersText reports the recommended concurrency.
func (m *Monitor) WorkersText() string {
	return fmt.Sprintf("Recommended workers: %d", m.Status().AvailableWorkers)
}

// ForceGC returns freed memory to the operating system.
func (m *Monitor) ForceGC() {
	ForceGC()
}

// ForceGC triggers garbage collection and returns memory to the OS.
func ForceGC() {
	debug.FreeOSMemory()
}
