package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"fpdataset/internal/processor"
)

// Progress prints a single self-updating status line. It stays silent when
// the destination is not a terminal.
type Progress struct {
	w          io.Writer
	enabled    bool
	start, end int64
	began      time.Time
	records    int
}

// NewProgress reports progress over [start, end) to f.
func NewProgress(f *os.File, start, end int64) *Progress {
	enabled := term.IsTerminal(int(f.Fd()))
	if enabled {
		enableVT(f)
	}
	return &Progress{w: f, enabled: enabled, start: start, end: end, began: time.Now()}
}

// Update records a finished window. It matches processor.Config.OnBatch.
func (p *Progress) Update(b processor.BatchStat) {
	p.records += b.Rows
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.w, "\r\033[K%5.1f%%  id %d  %d records  %.0f rec/s",
		p.percent(b.End), b.End, p.records, p.rate())
}

// Done ends the status line.
func (p *Progress) Done() {
	if p.enabled {
		fmt.Fprintln(p.w)
	}
}

func (p *Progress) percent(at int64) float64 {
	if p.end <= p.start {
		return 100
	}
	return 100 * float64(at-p.start) / float64(p.end-p.start)
}

func (p *Progress) rate() float64 {
	elapsed := time.Since(p.began).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.records) / elapsed
}
