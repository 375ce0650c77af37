package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audioconv/internal/models"
)

func testSummary() models.RunSummary {
	started := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	return models.RunSummary{
		RunID:      "3f1c2a9e-7d41-4b8e-9a55-1c0de2f3a4b5",
		Format:     "flac",
		OutputDir:  "/music/converted",
		State:      models.StateCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		Success:    true,
		Elapsed:    2 * time.Second,
		Results: []models.Result{
			{
				Task:       models.Task{Index: 1, InputPath: "/music/one.wav", FileSize: 4096},
				OutputPath: "/music/converted/one.flac",
				Success:    true,
				Elapsed:    800 * time.Millisecond,
			},
			{
				Task:    models.Task{Index: 2, InputPath: "/music/two.ogg", FileSize: 2048},
				Message: "decode failed: corrupt stream",
				Elapsed: 100 * time.Millisecond,
			},
		},
	}
}

func TestWritePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := WritePDF(path, testSummary()); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("report does not start with a PDF header: %q", data[:min(len(data), 8)])
	}
}

func TestWritePDFBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.pdf")
	if err := WritePDF(path, testSummary()); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestTable(t *testing.T) {
	// footer cells are upper-cased by the table style
	out := strings.ToLower(Table(testSummary()))
	for _, want := range []string{"one.wav", "one.flac", "two.ogg", "decode failed: corrupt stream", "1 converted", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRunsTable(t *testing.T) {
	failed := testSummary()
	failed.RunID = "abc"
	failed.Success = false
	failed.State = models.StateStopped

	out := RunsTable([]models.RunSummary{testSummary(), failed})
	for _, want := range []string{"3f1c2a9e", "abc", "flac", "stopped", "1/2", "success", "failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "3f1c2a9e-7d41") {
		t.Error("run id should be shortened")
	}
}
