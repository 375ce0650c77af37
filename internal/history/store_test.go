package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"audioconv/internal/config"
	"audioconv/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSummary(id string, started time.Time) models.RunSummary {
	return models.RunSummary{
		RunID:      id,
		Format:     "mp3",
		OutputDir:  "/music/converted",
		State:      models.StateCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		Success:    true,
		Elapsed:    3 * time.Second,
		Results: []models.Result{
			{
				Task:       models.Task{Index: 0, InputPath: "/music/a.wav"},
				OutputPath: "/music/converted/a.mp3",
				Success:    true,
				Elapsed:    1200 * time.Millisecond,
			},
			{
				Task:    models.Task{Index: 1, InputPath: "/music/b.wav"},
				Message: "decode failed",
				Elapsed: 300 * time.Millisecond,
				Retries: 1,
			},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.Record(ctx, sampleSummary("run-1", started)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, ok, err := store.Get(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Format != "mp3" || got.State != models.StateCompleted || !got.Success {
		t.Errorf("unexpected run: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Elapsed != 3*time.Second {
		t.Errorf("Elapsed = %v", got.Elapsed)
	}
	if len(got.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(got.Results))
	}
	if got.Results[0].OutputPath != "/music/converted/a.mp3" || !got.Results[0].Success {
		t.Errorf("result 0 = %+v", got.Results[0])
	}
	if got.Results[1].Message != "decode failed" || got.Results[1].Success || got.Results[1].Retries != 1 {
		t.Errorf("result 1 = %+v", got.Results[1])
	}
}

func TestGetUnknown(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected unknown run")
	}
}

func TestRecordReplacesSameRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC()

	first := sampleSummary("run-1", started)
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	second := first
	second.Results = second.Results[:1]
	second.Failed = 0
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("Record again: %v", err)
	}

	results, err := store.Results(ctx, "run-1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
}

func TestRecordRejectsEmptyRunID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Record(context.Background(), models.RunSummary{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, sampleSummary(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Errorf("order = %s,%s want c,b", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].Results != nil {
		t.Error("Recent should not load results")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Record(context.Background(), sampleSummary("run-1", time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = store.Close()

	store, err = OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	runs, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = store.Close()

	_, err = OpenPath(path)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
}

func TestOpenFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	store, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if store.Path() != filepath.Join(dir, "state", "history.db") {
		t.Errorf("Path = %q", store.Path())
	}
}

func TestCloseNil(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
