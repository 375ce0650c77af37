// Package report renders finished runs as PDF documents and text tables.
package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"audioconv/internal/formats"
	"audioconv/internal/models"
	"audioconv/internal/util"
)

const timeLayout = "2006-01-02 15:04:05"

// WritePDF writes a one-document report of summary to path.
func WritePDF(path string, summary models.RunSummary) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle(fmt.Sprintf("Conversion run %s", summary.RunID), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Conversion to %s", formats.DisplayName(summary.Format)))
	pdf.Ln(12)

	addSummaryHeaders(pdf, summary)

	pdf.Line(10, pdf.GetY()+5, 200, pdf.GetY()+5)
	pdf.SetY(pdf.GetY() + 10)

	addResults(pdf, summary.Results)

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write pdf file: %w", err)
	}
	return nil
}

func addSummaryHeaders(pdf *gofpdf.Fpdf, summary models.RunSummary) {
	rows := [][2]string{
		{"Run:", summary.RunID},
		{"State:", string(summary.State)},
		{"Started:", formatTime(summary.StartedAt)},
		{"Finished:", formatTime(summary.FinishedAt)},
		{"Elapsed:", summary.Elapsed.Round(time.Millisecond).String()},
		{"Files:", fmt.Sprintf("%d converted, %d failed, %d total", summary.Succeeded, summary.Failed, summary.Total)},
	}
	if summary.OutputDir != "" {
		rows = append(rows, [2]string{"Output:", summary.OutputDir})
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 8, row[0])
		pdf.SetFont("Arial", "", 12)
		pdf.Cell(0, 8, row[1])
		pdf.Ln(8)
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 8, "Result:")
	if summary.Success {
		pdf.SetTextColor(0, 128, 0)
		pdf.Cell(0, 8, "Success")
	} else {
		pdf.SetTextColor(255, 0, 0)
		pdf.Cell(0, 8, "Failed")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(8)

	if summary.Error != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(0, 5, summary.Error, "", "", false)
	}
}

func addResults(pdf *gofpdf.Fpdf, results []models.Result) {
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 10, fmt.Sprintf("Files (%d):", len(results)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	for _, r := range results {
		line := fmt.Sprintf("%d. %s (%s, %s)",
			r.Task.Index,
			filepath.Base(r.Task.InputPath),
			util.FormatBytes(uint64(max(r.Task.FileSize, 0))),
			r.Elapsed.Round(time.Millisecond))
		pdf.Cell(0, 5, line)
		pdf.Ln(5)

		if r.Success {
			pdf.Cell(0, 5, "   -> "+filepath.Base(r.OutputPath))
			pdf.Ln(5)
			continue
		}
		pdf.SetTextColor(255, 0, 0)
		pdf.MultiCell(0, 5, "   "+failureText(r), "", "", false)
		pdf.SetTextColor(0, 0, 0)
	}
}

func failureText(r models.Result) string {
	if r.Message == "" {
		return "failed"
	}
	return "failed: " + r.Message
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
