package spatial

import (
	"fmt"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Footprints holds building outlines keyed by building uid.
type Footprints struct {
	polygons map[string]orb.MultiPolygon
	bounds   map[string]orb.Bound
}

// NewFootprints indexes the given outlines. Empty geometries are ignored.
func NewFootprints(polygons map[string]orb.MultiPolygon) *Footprints {
	f := &Footprints{
		polygons: make(map[string]orb.MultiPolygon, len(polygons)),
		bounds:   make(map[string]orb.Bound, len(polygons)),
	}
	for uid, mp := range polygons {
		f.add(uid, mp)
	}
	return f
}

func (f *Footprints) add(uid string, mp orb.MultiPolygon) {
	if len(mp) == 0 {
		return
	}
	if existing, ok := f.polygons[uid]; ok {
		mp = append(existing, mp...)
	}
	f.polygons[uid] = mp
	f.bounds[uid] = mp.Bound()
}

// Len returns the number of buildings with an outline.
func (f *Footprints) Len() int {
	if f == nil {
		return 0
	}
	return len(f.polygons)
}

// Contains reports whether (lat, lon) falls inside the outline of uid. found
// is false when no outline is known for uid.
func (f *Footprints) Contains(uid string, lat, lon float64) (inside, found bool) {
	if f == nil {
		return false, false
	}
	mp, ok := f.polygons[uid]
	if !ok {
		return false, false
	}
	pt := orb.Point{lon, lat}
	if !f.bounds[uid].Contains(pt) {
		return false, true // quick bbox reject
	}
	return planar.MultiPolygonContains(mp, pt), true
}

// LoadFootprints reads polygon outlines from a shapefile. uidField names the
// DBF attribute holding the building uid. Rings are grouped into polygons by
// winding order: a clockwise ring starts a new polygon and each
// counter-clockwise ring after it is a hole.
func LoadFootprints(path, uidField string) (*Footprints, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open footprint shapefile %s: %w", path, err)
	}
	defer r.Close()

	uidIdx := -1
	for i, field := range r.Fields() {
		if strings.EqualFold(strings.TrimSpace(field.String()), uidField) {
			uidIdx = i
			break
		}
	}
	if uidIdx < 0 {
		return nil, fmt.Errorf("footprint shapefile %s: no %q attribute", path, uidField)
	}

	f := &Footprints{
		polygons: make(map[string]orb.MultiPolygon),
		bounds:   make(map[string]orb.Bound),
	}
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		uid := strings.TrimSpace(strings.Trim(r.ReadAttribute(idx, uidIdx), "\x00"))
		if uid == "" {
			continue
		}
		f.add(uid, toMultiPolygon(poly))
	}
	return f, nil
}

// toMultiPolygon splits the flat points slice of a shapefile polygon into
// rings and groups them.
func toMultiPolygon(poly *shp.Polygon) orb.MultiPolygon {
	var mp orb.MultiPolygon
	numParts := len(poly.Parts)
	for partIdx := 0; partIdx < numParts; partIdx++ {
		start := poly.Parts[partIdx]
		end := int32(len(poly.Points))
		if partIdx+1 < numParts {
			end = poly.Parts[partIdx+1]
		}
		if end-start < 3 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for i := start; i < end; i++ {
			pt := poly.Points[i]
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}
