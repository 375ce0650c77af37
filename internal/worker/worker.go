package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"audioconv/internal/converter"
	"audioconv/internal/logging"
	"audioconv/internal/models"
)

const (
	defaultTaskTimeout = 300 * time.Second
	backoffBase        = 500 * time.Millisecond
)

// NoProgress marks a StatusUpdate that carries only a message.
const NoProgress = -1

// Converter converts a single task.
type Converter interface {
	ConvertOne(ctx context.Context, task models.Task, hooks converter.Hooks) (models.Result, error)
}

// Config sizes and tunes a Pool.
type Config struct {
	Size        int
	TaskTimeout time.Duration
	MaxRetries  int           // extra attempts after an encode failure
	Backoff     time.Duration // multiplied by the attempt number
	Logger      *slog.Logger
}

// Pool runs tasks on a bounded number of workers. A Pool serves one run.
type Pool struct {
	conv    Converter
	size    int
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPool creates a pool. Size below one is treated as one.
func NewPool(conv Converter, cfg Config) *Pool {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = backoffBase
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Pool{
		conv:    conv,
		size:    max(1, cfg.Size),
		timeout: cfg.TaskTimeout,
		retries: max(0, cfg.MaxRetries),
		backoff: cfg.Backoff,
		logger:  cfg.Logger,
		stopCh:  make(chan struct{}),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Stop prevents tasks that have not started yet from running. In-flight
// tasks are left to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Stopped reports whether Stop was called.
func (p *Pool) Stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// Run processes every task and returns once each has produced exactly one
// final update (StatusComplete or StatusFailed carrying a Result). updates
// must be drained until Run returns; Run does not close it.
func (p *Pool) Run(ctx context.Context, tasks []models.Task, updates chan<- models.StatusUpdate) {
	ids := make(chan int, p.size)
	for i := 1; i <= p.size; i++ {
		ids <- i
	}

	var g errgroup.Group
	g.SetLimit(p.size)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			id := <-ids
			defer func() { ids <- id }()
			w := &Worker{id: id, pool: p, updates: updates}
			w.process(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
}

// Worker is one execution slot of a Pool.
type Worker struct {
	id      int
	pool    *Pool
	updates chan<- models.StatusUpdate
}

func (w *Worker) process(ctx context.Context, task models.Task) {
	start := time.Now()
	var result models.Result
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("unexpected error: %v", r)
			w.pool.logger.Error("worker panic", slog.Int("worker", w.id), slog.String("file", task.InputPath), slog.Any("panic", r))
			result = models.Failed(task, err, time.Since(start))
		}
		w.finish(result)
	}()

	if w.pool.Stopped() || ctx.Err() != nil {
		err := &converter.Error{Kind: converter.ErrStopped, Path: task.InputPath, Err: ctx.Err()}
		result = models.Failed(task, err, 0)
		return
	}

	w.sendStatus(task.Index, models.StatusProcessing, NoProgress, "Processing: "+filepath.Base(task.InputPath), nil)

	var err error
	retries := 0
	for {
		result, err = w.attempt(ctx, task)
		if err == nil || retries >= w.pool.retries || !converter.Retryable(err) {
			break
		}
		retries++
		backoff := time.Duration(retries) * w.pool.backoff
		w.sendStatus(task.Index, models.StatusProcessing, NoProgress,
			fmt.Sprintf("Retrying (%d/%d) after %v: %v", retries, w.pool.retries, backoff, err), nil)

		select {
		case <-ctx.Done():
			result = models.Failed(task, fmt.Errorf("cancelled during retry: %w", ctx.Err()), time.Since(start))
			result.Retries = retries
			return
		case <-time.After(backoff):
		}
	}
	result.Retries = retries
	result.Elapsed = time.Since(start)
}

// attempt runs the converter under the per-task timeout. A converter that
// does not return in time is abandoned and recorded as timed out; its late
// hook calls are ignored.
func (w *Worker) attempt(ctx context.Context, task models.Task) (models.Result, error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, w.pool.timeout)
	defer cancel()

	abandoned := make(chan struct{})
	defer close(abandoned)
	hooks := converter.Hooks{
		OnProgress: func(p int) {
			w.sendHook(abandoned, models.StatusUpdate{WorkerID: w.id, Index: task.Index, Status: models.StatusProcessing, Progress: p})
		},
		OnStatus: func(msg string) {
			w.sendHook(abandoned, models.StatusUpdate{WorkerID: w.id, Index: task.Index, Status: models.StatusProcessing, Progress: NoProgress, Message: msg})
		},
	}

	type outcome struct {
		result models.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("unexpected error: %v", r)
				done <- outcome{models.Failed(task, err, time.Since(start)), err}
			}
		}()
		res, err := w.pool.conv.ConvertOne(tctx, task, hooks)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return w.timedOut(task, start)
		}
		return o.result, o.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return w.timedOut(task, start)
		}
		err := fmt.Errorf("cancelled: %w", tctx.Err())
		return models.Failed(task, err, time.Since(start)), err
	}
}

func (w *Worker) timedOut(task models.Task, start time.Time) (models.Result, error) {
	err := &converter.Error{
		Kind: converter.ErrTimeout,
		Path: task.InputPath,
		Err:  fmt.Errorf("no result after %v", w.pool.timeout),
	}
	w.pool.logger.Warn("task timed out",
		slog.Int("worker", w.id),
		slog.Int("index", task.Index),
		slog.String("file", task.InputPath),
		slog.Duration("timeout", w.pool.timeout),
	)
	return models.Failed(task, err, time.Since(start)), err
}

func (w *Worker) finish(result models.Result) {
	status := models.StatusComplete
	progress := 100
	if !result.Success {
		status = models.StatusFailed
		progress = 0
	}
	w.sendStatus(result.Task.Index, status, progress, result.Message, &result)
}

// sendStatus blocks until the collector takes the update. The collector
// drains until Run returns, so final results are never dropped.
func (w *Worker) sendStatus(index int, status models.TaskStatus, progress int, message string, result *models.Result) {
	w.updates <- models.StatusUpdate{
		WorkerID: w.id,
		Index:    index,
		Status:   status,
		Progress: progress,
		Message:  message,
		Result:   result,
	}
}

// sendHook forwards converter progress unless the attempt has already
// returned.
func (w *Worker) sendHook(abandoned <-chan struct{}, u models.StatusUpdate) {
	select {
	case <-abandoned:
		return
	default:
	}
	select {
	case w.updates <- u:
	case <-abandoned:
	}
}
