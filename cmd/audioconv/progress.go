package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"audioconv/internal/events"
	"audioconv/internal/resource"
)

const maxDescriptionWidth = 48

// progressView renders scheduler events for the terminal: a progress bar
// when attached to a TTY, plain lines otherwise. It is driven by a single
// bus mailbox so it needs no locking.
type progressView struct {
	out         io.Writer
	bar         *progressbar.ProgressBar
	lastPercent int
}

func newProgressView(out io.Writer, interactive bool) *progressView {
	v := &progressView{out: out, lastPercent: -1}
	if interactive {
		v.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Converting"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	return v
}

func (v *progressView) HandleEvent(e events.Event) {
	switch e.Kind {
	case events.KindProgress:
		if e.Percent == v.lastPercent {
			return
		}
		v.lastPercent = e.Percent
		if v.bar != nil {
			_ = v.bar.Set(e.Percent)
			return
		}
		fmt.Fprintf(v.out, "Progress: %d%%\n", e.Percent)
	case events.KindStatus:
		if v.bar != nil {
			v.bar.Describe(truncate(e.Message, maxDescriptionWidth))
			return
		}
		fmt.Fprintln(v.out, e.Message)
	case events.KindError:
		v.println("Error: " + e.Message)
	case events.KindProgressPrediction:
		if v.bar == nil && e.Prediction != nil && e.Prediction.Processed > 0 {
			fmt.Fprintf(v.out, "Estimated time remaining: %s\n", resource.FormatRemaining(e.Prediction.RemainingTime))
		}
	case events.KindComplete:
		if v.bar != nil {
			_ = v.bar.Finish()
			fmt.Fprintln(v.out)
		}
	}
}

// println writes a full line without corrupting an active bar.
func (v *progressView) println(line string) {
	if v.bar != nil {
		_ = v.bar.Clear()
	}
	fmt.Fprintln(v.out, line)
	if v.bar != nil {
		_ = v.bar.RenderBlank()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
