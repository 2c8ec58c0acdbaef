// Package grid quantizes WGS-84 coordinates onto the fixed coverage grid.
//
// The grid origin is the south-west corner of the covered region and the
// base pitch is roughly five metres per axis. A level multiplies the base
// pitch, so the default level 5 gives ~25 m cells. Points outside the region
// are not rejected; they simply map to out-of-range (possibly negative) IDs.
package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"fpdataset/internal/types"
)

const (
	OrgMinX = 124.54117
	OrgMinY = 32.928463
	OrgMaxX = 130.57113
	OrgMaxY = 42.344405

	Offset5mX = 0.0000555
	Offset5mY = 0.0000460

	DefaultLevel = 5 // 25m cells
)

// ErrLengthMismatch is returned by MatchBatch when the coordinate slices differ in length.
var ErrLengthMismatch = errors.New("latitude and longitude slices differ in length")

// Spec is the affine transform of a matcher. Data sources use it to compute
// the same cell server-side.
type Spec struct {
	OriginX float64
	OriginY float64
	PitchX  float64
	PitchY  float64
}

// Matcher maps coordinates to grid cells. The zero value is not usable; use
// NewMatcher.
type Matcher struct {
	level  int
	pitchX float64
	pitchY float64
}

// NewMatcher returns a matcher for the given level. Levels below 1 are
// replaced by DefaultLevel.
func NewMatcher(level int) *Matcher {
	if level < 1 {
		level = DefaultLevel
	}
	return &Matcher{
		level:  level,
		pitchX: Offset5mX * float64(level),
		pitchY: Offset5mY * float64(level),
	}
}

// Level returns the pitch multiplier.
func (m *Matcher) Level() int { return m.level }

// Spec returns the origin and pitch used by Match.
func (m *Matcher) Spec() Spec {
	return Spec{OriginX: OrgMinX, OriginY: OrgMinY, PitchX: m.pitchX, PitchY: m.pitchY}
}

// Match returns the cell containing (lat, lon).
func (m *Matcher) Match(lat, lon float64) types.GridCell {
	return types.GridCell{
		XID: int(math.Floor((lon-OrgMinX)/m.pitchX)) + 1,
		YID: int(math.Floor((lat-OrgMinY)/m.pitchY)) + 1,
	}
}

// MatchBatch evaluates Match for every (lats[i], lons[i]) pair. The affine
// step is vectorized; results are identical to calling Match per point.
func (m *Matcher) MatchBatch(lats, lons []float64) ([]types.GridCell, error) {
	if len(lats) != len(lons) {
		return nil, fmt.Errorf("%w: %d latitudes, %d longitudes", ErrLengthMismatch, len(lats), len(lons))
	}
	n := len(lats)
	if n == 0 {
		return []types.GridCell{}, nil
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	copy(xs, lons)
	copy(ys, lats)

	floats.AddConst(-OrgMinX, xs)
	floats.AddConst(-OrgMinY, ys)
	floats.Div(xs, fill(n, m.pitchX))
	floats.Div(ys, fill(n, m.pitchY))

	cells := make([]types.GridCell, n)
	for i := range cells {
		cells[i] = types.GridCell{
			XID: int(math.Floor(xs[i])) + 1,
			YID: int(math.Floor(ys[i])) + 1,
		}
	}
	return cells, nil
}

func fill(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}
