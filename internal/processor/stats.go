package processor

import (
	"time"

	"fpdataset/internal/spatial"
)

// BatchStat describes one fetch window.
type BatchStat struct {
	Start, End     int64
	Rows           int
	GridMismatches int
	Fetch          time.Duration
	Match          time.Duration
}

// Stats summarizes one ProcessToFile run.
type Stats struct {
	RunID        string
	Start, End   int64
	OutputPath   string
	TrainingPath string

	Records        int
	GridMismatches int
	Elapsed        time.Duration
	FetchTime      time.Duration
	MatchTime      time.Duration
	Cache          spatial.CacheStats
	Batches        []BatchStat
}

// EmptyBatches counts windows that returned no rows.
func (s Stats) EmptyBatches() int {
	n := 0
	for _, b := range s.Batches {
		if b.Rows == 0 {
			n++
		}
	}
	return n
}

// PerRecord is the mean wall time per record, 0 when nothing was processed.
func (s Stats) PerRecord() time.Duration {
	if s.Records == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Records)
}

// Throughput is records per second, 0 when nothing was processed.
func (s Stats) Throughput() float64 {
	if s.Records == 0 || s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Records) / s.Elapsed.Seconds()
}

// FetchShare is the percentage of elapsed time spent fetching rows.
func (s Stats) FetchShare() float64 {
	return share(s.FetchTime, s.Elapsed)
}

// MatchShare is the percentage of elapsed time spent matching buildings.
func (s Stats) MatchShare() float64 {
	return share(s.MatchTime, s.Elapsed)
}

func share(part, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
