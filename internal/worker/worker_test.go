package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audioconv/internal/converter"
	"audioconv/internal/models"
)

type fakeConverter struct {
	fn       func(ctx context.Context, task models.Task, hooks converter.Hooks) (models.Result, error)
	active   atomic.Int32
	peak     atomic.Int32
	attempts sync.Map
}

func (f *fakeConverter) ConvertOne(ctx context.Context, task models.Task, hooks converter.Hooks) (models.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	v, _ := f.attempts.LoadOrStore(task.Index, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
	return f.fn(ctx, task, hooks)
}

func (f *fakeConverter) attemptsFor(index int) int {
	v, ok := f.attempts.Load(index)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func succeed(delay time.Duration) func(context.Context, models.Task, converter.Hooks) (models.Result, error) {
	return func(_ context.Context, task models.Task, hooks converter.Hooks) (models.Result, error) {
		hooks.OnProgress(0)
		time.Sleep(delay)
		hooks.OnProgress(50)
		hooks.OnProgress(100)
		return models.Result{Task: task, Success: true, OutputPath: task.InputPath + ".out"}, nil
	}
}

func makeTasks(n int) []models.Task {
	tasks := make([]models.Task, n)
	for i := range tasks {
		tasks[i] = models.Task{Index: i + 1, InputPath: "file.wav", OutputFormat: "flac"}
	}
	return tasks
}

// collect runs the pool and returns final results keyed by task index.
func collect(t *testing.T, p *Pool, ctx context.Context, tasks []models.Task) (map[int]models.Result, []models.StatusUpdate) {
	t.Helper()
	updates := make(chan models.StatusUpdate, 8)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, tasks, updates)
		close(done)
	}()

	finals := make(map[int]models.Result)
	var all []models.StatusUpdate
	handle := func(u models.StatusUpdate) {
		all = append(all, u)
		if u.Result != nil {
			if _, dup := finals[u.Index]; dup {
				t.Errorf("task %d produced more than one result", u.Index)
			}
			finals[u.Index] = *u.Result
		}
	}
	for {
		select {
		case u := <-updates:
			handle(u)
		case <-done:
			for {
				select {
				case u := <-updates:
					handle(u)
				default:
					return finals, all
				}
			}
		}
	}
}

func TestPoolBoundsConcurrencyAndReportsEveryTask(t *testing.T) {
	fc := &fakeConverter{fn: succeed(20 * time.Millisecond)}
	p := NewPool(fc, Config{Size: 4})

	finals, updates := collect(t, p, context.Background(), makeTasks(10))
	if len(finals) != 10 {
		t.Fatalf("expected 10 results, got %d", len(finals))
	}
	for i := 1; i <= 10; i++ {
		if !finals[i].Success {
			t.Fatalf("task %d failed: %+v", i, finals[i])
		}
	}
	if peak := fc.peak.Load(); peak > 4 {
		t.Fatalf("observed %d concurrent conversions, limit 4", peak)
	}
	progress := 0
	for _, u := range updates {
		if u.Result == nil && u.Progress >= 0 {
			progress++
		}
		if u.WorkerID < 1 || u.WorkerID > 4 {
			t.Fatalf("worker id %d out of range", u.WorkerID)
		}
	}
	if progress != 30 {
		t.Fatalf("expected 30 per-file progress updates, got %d", progress)
	}
}

func TestPoolTimeoutBecomesFailure(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	fc := &fakeConverter{fn: func(_ context.Context, task models.Task, hooks converter.Hooks) (models.Result, error) {
		if task.Index == 2 {
			<-hang // ignores its context entirely
		}
		return models.Result{Task: task, Success: true}, nil
	}}
	p := NewPool(fc, Config{Size: 2, TaskTimeout: 50 * time.Millisecond})

	start := time.Now()
	finals, _ := collect(t, p, context.Background(), makeTasks(3))
	if time.Since(start) > 2*time.Second {
		t.Fatal("hung task blocked the pool")
	}
	if len(finals) != 3 {
		t.Fatalf("expected 3 results, got %d", len(finals))
	}
	timedOut := finals[2]
	if timedOut.Success || !errors.Is(timedOut.Err, converter.ErrTimeout) {
		t.Fatalf("expected timeout failure, got %+v", timedOut)
	}
	if !finals[1].Success || !finals[3].Success {
		t.Fatal("siblings of a timed out task must still succeed")
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	fc := &fakeConverter{fn: func(_ context.Context, task models.Task, _ converter.Hooks) (models.Result, error) {
		if task.Index == 1 {
			panic("boom")
		}
		return models.Result{Task: task, Success: true}, nil
	}}
	finals, _ := collect(t, NewPool(fc, Config{Size: 2}), context.Background(), makeTasks(2))
	if finals[1].Success || finals[1].Message == "" {
		t.Fatalf("expected panic to become a failure, got %+v", finals[1])
	}
	if !finals[2].Success {
		t.Fatal("other task should succeed")
	}
}

func TestPoolRetriesEncodeFailuresOnly(t *testing.T) {
	fc := &fakeConverter{fn: func(_ context.Context, task models.Task, _ converter.Hooks) (models.Result, error) {
		kind := converter.ErrEncode
		if task.Index == 2 {
			kind = converter.ErrDecode
		}
		err := &converter.Error{Kind: kind, Path: task.InputPath, Err: errors.New("x")}
		return models.Failed(task, err, 0), err
	}}
	p := NewPool(fc, Config{Size: 2, MaxRetries: 2, Backoff: time.Millisecond})

	finals, _ := collect(t, p, context.Background(), makeTasks(2))
	if got := fc.attemptsFor(1); got != 3 {
		t.Fatalf("encode failure attempts = %d, want 3", got)
	}
	if finals[1].Retries != 2 {
		t.Fatalf("expected 2 retries recorded, got %d", finals[1].Retries)
	}
	if got := fc.attemptsFor(2); got != 1 {
		t.Fatalf("decode failure must not be retried, got %d attempts", got)
	}
}

func TestPoolStopSkipsUnstartedTasks(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	fc := &fakeConverter{fn: func(_ context.Context, task models.Task, _ converter.Hooks) (models.Result, error) {
		started <- struct{}{}
		<-release
		return models.Result{Task: task, Success: true}, nil
	}}
	p := NewPool(fc, Config{Size: 1})

	go func() {
		<-started
		p.Stop()
		close(release)
	}()
	finals, _ := collect(t, p, context.Background(), makeTasks(4))

	if len(finals) != 4 {
		t.Fatalf("every task needs a result, got %d", len(finals))
	}
	if !finals[1].Success {
		t.Fatal("in-flight task should finish")
	}
	for i := 2; i <= 4; i++ {
		if !errors.Is(finals[i].Err, converter.ErrStopped) {
			t.Fatalf("task %d: expected ErrStopped, got %v", i, finals[i].Err)
		}
	}
	if !p.Stopped() {
		t.Fatal("expected pool to report stopped")
	}
	p.Stop()
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(&fakeConverter{}, Config{})
	if p.Size() != 1 || p.timeout != defaultTaskTimeout || p.backoff != backoffBase {
		t.Fatalf("unexpected defaults: size=%d timeout=%v backoff=%v", p.Size(), p.timeout, p.backoff)
	}
}
