// Package spatial assigns a location its grid cell and the buildings whose
// footprint contains it.
//
// Building matching runs in three stages: a coarse candidate query against
// the data source, a mandatory bounding-box confirmation, and an optional
// polygon test for buildings that have a known outline.
package spatial

import (
	"context"
	"fmt"

	"fpdataset/internal/grid"
	"fpdataset/internal/types"
)

// CandidateSource returns buildings whose bounding box overlaps the square of
// half-width margin around (lat, lon).
type CandidateSource interface {
	FetchBuildingCandidates(ctx context.Context, lat, lon, margin float64) ([]types.Building, error)
}

// Options configures a Matcher.
type Options struct {
	Margin       float64 // degrees lat/lon
	PreciseCheck bool
	Footprints   *Footprints // outlines for the precise check; may be nil
	CacheSize    int         // candidate LRU entries, 0 disables
}

// Matches is the result of FindMatches.
type Matches struct {
	GridCell  types.GridCell
	Buildings []types.Building
}

// Matcher resolves grid cells and containing buildings for locations.
type Matcher struct {
	grid   *grid.Matcher
	source CandidateSource
	cache  *cachedSource
	opts   Options
}

// NewMatcher returns a Matcher that queries source for candidates and g for
// grid cells.
func NewMatcher(source CandidateSource, g *grid.Matcher, opts Options) *Matcher {
	m := &Matcher{
		grid:   g,
		source: source,
		opts:   opts,
	}
	if opts.CacheSize > 0 {
		// lru.New only rejects a non-positive size.
		if c, err := newCachedSource(source, opts.CacheSize); err == nil {
			m.cache = c
			m.source = c
		}
	}
	return m
}

// Grid returns the grid matcher in use.
func (m *Matcher) Grid() *grid.Matcher { return m.grid }

// FindMatches returns the grid cell of loc and the buildings containing it,
// in the order the source returned them. Buildings is never nil.
func (m *Matcher) FindMatches(ctx context.Context, loc types.Location) (Matches, error) {
	buildings, err := m.MatchBuildings(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return Matches{}, fmt.Errorf("location %d: %w", loc.ID, err)
	}
	return Matches{
		GridCell:  m.grid.Match(loc.Latitude, loc.Longitude),
		Buildings: buildings,
	}, nil
}

// MatchBuildings returns the buildings containing (lat, lon).
func (m *Matcher) MatchBuildings(ctx context.Context, lat, lon float64) ([]types.Building, error) {
	candidates, err := m.source.FetchBuildingCandidates(ctx, lat, lon, m.opts.Margin)
	if err != nil {
		return nil, fmt.Errorf("fetch building candidates: %w", err)
	}

	matched := make([]types.Building, 0, len(candidates))
	for _, b := range candidates {
		if !b.ContainsPoint(lat, lon) {
			continue
		}
		if m.opts.PreciseCheck {
			// Buildings without an outline keep the bbox result.
			if inside, found := m.opts.Footprints.Contains(b.UID, lat, lon); found && !inside {
				continue
			}
		}
		matched = append(matched, b)
	}
	return matched, nil
}

// CacheStats reports candidate cache usage. It is zero when caching is off.
func (m *Matcher) CacheStats() CacheStats {
	if m == nil || m.cache == nil {
		return CacheStats{}
	}
	return m.cache.stats()
}
