package report

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"audioconv/internal/models"
)

// Table renders the per-file results of summary followed by a totals footer.
func Table(summary models.RunSummary) string {
	tw := newWriter()
	tw.AppendHeader(table.Row{"#", "Input", "Output", "Status", "Elapsed"})
	for _, r := range summary.Results {
		status := "ok"
		output := filepath.Base(r.OutputPath)
		if !r.Success {
			status = failureText(r)
			output = ""
		}
		tw.AppendRow(table.Row{
			r.Task.Index,
			filepath.Base(r.Task.InputPath),
			output,
			status,
			r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	tw.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d files", summary.Total),
		fmt.Sprintf("%d converted", summary.Succeeded),
		fmt.Sprintf("%d failed", summary.Failed),
		summary.Elapsed.Round(time.Millisecond).String(),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

// RunsTable renders one row per run, as listed by the history store.
func RunsTable(runs []models.RunSummary) string {
	tw := newWriter()
	tw.AppendHeader(table.Row{"Run", "Started", "Format", "State", "Converted", "Failed", "Result"})
	for _, run := range runs {
		result := "success"
		if !run.Success {
			result = "failed"
		}
		tw.AppendRow(table.Row{
			shortID(run.RunID),
			formatTime(run.StartedAt),
			run.Format,
			string(run.State),
			strconv.Itoa(run.Succeeded) + "/" + strconv.Itoa(run.Total),
			run.Failed,
			result,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}

func newWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
