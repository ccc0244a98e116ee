// Package roi holds region-of-interest polygons used to constrain remote
// queries and to clip output rasters.
package roi

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/hularuns/policy-analysis/internal/crs"
)

// DefaultBBox covers Worcestershire and its surroundings in EPSG:4326.
var DefaultBBox = [4]float64{-2.8524, 51.7836, -1.5161, 52.5075}

// densifySteps is how many segments each polygon edge is split into before
// reprojection so curved edges in the target system are followed.
const densifySteps = 20

type Region struct {
	Name     string
	Polygons orb.MultiPolygon
	CRS      crs.CRS
}

// FromBBox builds a rectangular region from min-x, min-y, max-x, max-y.
func FromBBox(name string, bbox [4]float64, c crs.CRS) (*Region, error) {
	if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
		return nil, fmt.Errorf("invalid bounding box %v: min must be lower than max", bbox)
	}
	bound := orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}
	return &Region{Name: name, Polygons: orb.MultiPolygon{bound.ToPolygon()}, CRS: c}, nil
}

// ParseBBox parses "minx,miny,maxx,maxy".
func ParseBBox(s string) ([4]float64, error) {
	var bbox [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bbox, fmt.Errorf("bounding box %q must have four comma separated values", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bbox, fmt.Errorf("bounding box %q: %w", s, err)
		}
		bbox[i] = v
	}
	return bbox, nil
}

// FromGeometry collects the polygonal parts of g. Points and lines are ignored.
func FromGeometry(name string, g orb.Geometry, c crs.CRS) *Region {
	r := &Region{Name: name, CRS: c}
	r.add(g)
	return r
}

func (r *Region) add(g orb.Geometry) {
	switch geom := g.(type) {
	case orb.Polygon:
		r.Polygons = append(r.Polygons, geom)
	case orb.MultiPolygon:
		r.Polygons = append(r.Polygons, geom...)
	case orb.Bound:
		r.Polygons = append(r.Polygons, geom.ToPolygon())
	case orb.Collection:
		for _, part := range geom {
			r.add(part)
		}
	}
}

// PropertyEquals matches features whose property key renders as value.
func PropertyEquals(key, value string) func(geojson.Properties) bool {
	return func(props geojson.Properties) bool {
		v, ok := props[key]
		return ok && fmt.Sprint(v) == value
	}
}

// LoadGeoJSON reads polygons from a GeoJSON feature collection or bare
// geometry. When match is not nil only matching features are kept.
func LoadGeoJSON(path, name string, c crs.CRS, match func(geojson.Properties) bool) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roi file %s: %w", path, err)
	}

	r := &Region{Name: name, CRS: c}
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && fc.Type == "FeatureCollection" {
		for _, f := range fc.Features {
			if match != nil && !match(f.Properties) {
				continue
			}
			r.add(f.Geometry)
		}
		return r, nil
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roi file %s: %w", path, err)
	}
	r.add(g.Geometry())
	return r, nil
}

// Empty reports whether the region has no polygon with positive area.
func (r *Region) Empty() bool {
	return r == nil || len(r.Polygons) == 0 || planar.Area(r.Polygons) == 0
}

func (r *Region) Bound() orb.Bound {
	return r.Polygons.Bound()
}

func (r *Region) Area() float64 {
	return planar.Area(r.Polygons)
}

// Centroid returns the area weighted centroid of the region.
func (r *Region) Centroid() orb.Point {
	c, _ := planar.CentroidArea(r.Polygons)
	return c
}

// Reproject returns a copy of the region expressed in dst. Edges are
// densified first.
func (r *Region) Reproject(p crs.Projection, dst crs.CRS) (*Region, error) {
	if r.CRS.Equal(dst) {
		return &Region{Name: r.Name, Polygons: r.Polygons.Clone(), CRS: dst}, nil
	}
	polygons := densify(r.Polygons)

	var projErr error
	projected := project.MultiPolygon(polygons, func(pt orb.Point) orb.Point {
		xs, ys := []float64{pt[0]}, []float64{pt[1]}
		if err := p.Transform(xs, ys); err != nil && projErr == nil {
			projErr = err
		}
		return orb.Point{xs[0], ys[0]}
	})
	if projErr != nil {
		return nil, fmt.Errorf("failed to reproject region %s from %s to %s: %w", r.Name, r.CRS, dst, projErr)
	}
	return &Region{Name: r.Name, Polygons: projected, CRS: dst}, nil
}

func densify(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		np := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			np = append(np, densifyRing(ring))
		}
		out = append(out, np)
	}
	return out
}

func densifyRing(ring orb.Ring) orb.Ring {
	if len(ring) < 2 {
		return append(orb.Ring(nil), ring...)
	}
	out := make(orb.Ring, 0, (len(ring)-1)*densifySteps+1)
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		for s := 0; s < densifySteps; s++ {
			t := float64(s) / densifySteps
			out = append(out, orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t})
		}
	}
	return append(out, ring[len(ring)-1])
}
