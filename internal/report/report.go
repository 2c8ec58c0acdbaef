// Package report renders the statistics of a processing run.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"fpdataset/internal/processor"
)

type row struct {
	label string
	value string
}

func summaryRows(st processor.Stats) []row {
	return []row{
		{"Run ID", st.RunID},
		{"ID range", fmt.Sprintf("[%d, %d)", st.Start, st.End)},
		{"Records", strconv.Itoa(st.Records)},
		{"Batches", fmt.Sprintf("%d (%d empty)", len(st.Batches), st.EmptyBatches())},
		{"Elapsed", st.Elapsed.Truncate(time.Millisecond).String()},
		{"Per record", fmt.Sprintf("%.3f ms", ms(st.PerRecord()))},
		{"Throughput", fmt.Sprintf("%.1f records/s", st.Throughput())},
		{"Fetch time", fmt.Sprintf("%s (%.1f%%)", st.FetchTime.Truncate(time.Millisecond), st.FetchShare())},
		{"Match time", fmt.Sprintf("%s (%.1f%%)", st.MatchTime.Truncate(time.Millisecond), st.MatchShare())},
		{"Grid mismatches", strconv.Itoa(st.GridMismatches)},
		{"Cache hits/misses", fmt.Sprintf("%d / %d", st.Cache.Hits, st.Cache.Misses)},
		{"Output", st.OutputPath},
		{"Training data", st.TrainingPath},
	}
}

// WriteText prints the run summary in aligned label/value lines.
func WriteText(w io.Writer, st processor.Stats) error {
	rows := summaryRows(st)
	width := 0
	for _, r := range rows {
		if len(r.label) > width {
			width = len(r.label)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s : %s\n", width, r.label, r.value)
	}
	b.WriteString(strings.Repeat("-", 80) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
