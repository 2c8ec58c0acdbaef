// Package processor turns a range of collectxy ids into output and training
// records.
//
// The range is read in fixed-size windows [s, min(s+BatchSize, end)). Each
// row keeps the grid cell computed by the store; the grid matcher only
// cross-checks it. Building matching runs per row when enabled.
package processor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"fpdataset/internal/grid"
	"fpdataset/internal/monitoring"
	"fpdataset/internal/spatial"
	"fpdataset/internal/types"
)

const DefaultBatchSize = 1000

var (
	// ErrInvalidRange is returned when end < start.
	ErrInvalidRange = errors.New("invalid id range")
	// ErrSequenceConsumed is yielded when a record sequence is iterated twice.
	ErrSequenceConsumed = errors.New("record sequence already consumed")
	// ErrNoMatcher is yielded when building search is on without a matcher.
	ErrNoMatcher = errors.New("building search requires a spatial matcher")
)

// DataSource supplies collectxy rows for a half-open id range, ordered by id.
type DataSource interface {
	FetchRange(ctx context.Context, start, end int64) ([]types.Location, error)
}

// Config controls a Processor.
type Config struct {
	BatchSize      int
	BuildingSearch bool

	// OnBatch, if set, is called after every window has been fully emitted.
	OnBatch func(BatchStat)
}

// Processor reads windows from a DataSource and builds output records.
type Processor struct {
	source  DataSource
	grid    *grid.Matcher
	matcher *spatial.Matcher
	cfg     Config
}

// New returns a Processor. A non-positive batch size uses DefaultBatchSize.
// g cross-checks stored grid cells; when nil it is taken from matcher, or a
// default-level grid if matcher is nil too. matcher may be nil only when
// building search is off.
func New(source DataSource, g *grid.Matcher, matcher *spatial.Matcher, cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if g == nil {
		if matcher != nil {
			g = matcher.Grid()
		} else {
			g = grid.NewMatcher(grid.DefaultLevel)
		}
	}
	return &Processor{source: source, grid: g, matcher: matcher, cfg: cfg}
}

// ProcessRange returns the output records for ids in [start, end). The
// sequence is lazy and can be ranged over once; iterating it again yields
// ErrSequenceConsumed. The first error ends the sequence.
func (p *Processor) ProcessRange(ctx context.Context, start, end int64) iter.Seq2[types.OutputRecord, error] {
	return p.records(ctx, start, end, &Stats{})
}

func (p *Processor) records(ctx context.Context, start, end int64, st *Stats) iter.Seq2[types.OutputRecord, error] {
	var consumed atomic.Bool
	return func(yield func(types.OutputRecord, error) bool) {
		if consumed.Swap(true) {
			yield(types.OutputRecord{}, ErrSequenceConsumed)
			return
		}
		if err := checkRange(start, end); err != nil {
			yield(types.OutputRecord{}, err)
			return
		}
		if p.cfg.BuildingSearch && p.matcher == nil {
			yield(types.OutputRecord{}, ErrNoMatcher)
			return
		}

		batch := int64(p.cfg.BatchSize)
		for s := start; s < end; {
			e := end
			if end-s > batch {
				e = s + batch
			}

			bs, err := p.window(ctx, s, e, st, yield)
			if err != nil {
				yield(types.OutputRecord{}, err)
				return
			}
			if bs == nil {
				return // consumer stopped
			}
			st.Batches = append(st.Batches, *bs)
			if p.cfg.OnBatch != nil {
				p.cfg.OnBatch(*bs)
			}
			s = e
		}
	}
}

// window emits the records of [s, e). It returns a nil BatchStat and nil
// error when yield asked to stop.
func (p *Processor) window(ctx context.Context, s, e int64, st *Stats, yield func(types.OutputRecord, error) bool) (*BatchStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bs := &BatchStat{Start: s, End: e}
	began := time.Now()
	locs, err := p.source.FetchRange(ctx, s, e)
	bs.Fetch = time.Since(began)
	st.FetchTime += bs.Fetch
	if err != nil {
		return nil, fmt.Errorf("fetch [%d, %d): %w", s, e, err)
	}
	bs.Rows = len(locs)
	if len(locs) == 0 {
		return bs, nil
	}

	mismatches, err := p.checkGridCells(locs)
	if err != nil {
		return nil, err
	}
	bs.GridMismatches = mismatches
	st.GridMismatches += mismatches

	for _, loc := range locs {
		rec, err := p.record(ctx, loc, bs, st)
		if err != nil {
			return nil, err
		}
		st.Records++
		if !yield(rec, nil) {
			return nil, nil
		}
	}
	return bs, nil
}

func (p *Processor) record(ctx context.Context, loc types.Location, bs *BatchStat, st *Stats) (types.OutputRecord, error) {
	fp, err := loc.Fingerprint()
	if err != nil {
		return types.OutputRecord{}, err
	}
	rec := types.OutputRecord{
		Input:  fp,
		Answer: types.Answer{GridCell: loc.GridCell},
	}
	if !p.cfg.BuildingSearch {
		return rec, nil
	}

	began := time.Now()
	matches, err := p.matcher.FindMatches(ctx, loc)
	elapsed := time.Since(began)
	bs.Match += elapsed
	st.MatchTime += elapsed
	if err != nil {
		return types.OutputRecord{}, err
	}
	rec.Answer.Buildings = matches.Buildings
	return rec, nil
}

// checkGridCells recomputes the cells of a window and logs rows whose stored
// cell disagrees. The stored cell is still the one emitted.
func (p *Processor) checkGridCells(locs []types.Location) (int, error) {
	lats := make([]float64, len(locs))
	lons := make([]float64, len(locs))
	for i, l := range locs {
		lats[i], lons[i] = l.Latitude, l.Longitude
	}
	cells, err := p.grid.MatchBatch(lats, lons)
	if err != nil {
		return 0, err
	}

	mismatches := 0
	for i, c := range cells {
		if c != locs[i].GridCell {
			mismatches++
			monitoring.Logf("location %d: stored cell %s, computed %s", locs[i].ID, locs[i].GridCell, c)
		}
	}
	return mismatches, nil
}

func checkRange(start, end int64) error {
	if end < start {
		return fmt.Errorf("%w: end %d is before start %d", ErrInvalidRange, end, start)
	}
	return nil
}
