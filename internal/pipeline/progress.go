package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// ConsoleProgress prints human progress lines.
type ConsoleProgress struct {
	out   io.Writer
	saved *color.Color
}

func NewConsoleProgress(out io.Writer) *ConsoleProgress {
	return &ConsoleProgress{out: out, saved: color.New(color.FgGreen)}
}

func (p *ConsoleProgress) Report(done, total int, rate float64, eta time.Duration) {
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	fmt.Fprintf(p.out, "Progress: %d/%d (%.1f%%) | Rate: %.1f q/s | ETA: %.1f min\n",
		done, total, pct, rate, eta.Minutes())
}

func (p *ConsoleProgress) Saved(count int) {
	p.saved.Fprintf(p.out, "Progress saved (%d questions)\n", count)
}
