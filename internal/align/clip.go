package align

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
)

// Clip keeps every cell whose footprint overlaps the region with positive
// area and sets the rest to nodata. The grid and geotransform are unchanged.
func Clip(src *raster.Raster, region *roi.Region) (*raster.Raster, error) {
	if region.Empty() {
		return nil, fmt.Errorf("%w: region has no polygons", raster.ErrEmptyClipRegion)
	}
	code, ok := crs.ParseEPSG(src.CRS)
	if !ok || code != region.CRS.EPSG {
		return nil, fmt.Errorf("%w: region is in %s but raster is in %q",
			raster.ErrCRSResolution, region.CRS, src.CRS)
	}
	if !src.GeoTransform.IsNorthUp() {
		return nil, fmt.Errorf("clip needs a north-up raster, got geotransform %v", src.GeoTransform)
	}

	keep := touched(src, region.Polygons)
	out := src.Clone()
	kept := 0
	for y := range out.Data {
		for x := range out.Data[y] {
			if keep[y][x] {
				kept++
				continue
			}
			out.Data[y][x] = src.NoData
		}
	}
	if kept == 0 {
		return nil, fmt.Errorf("%w: region %q does not overlap the raster", raster.ErrEmptyClipRegion, region.Name)
	}
	return out, nil
}

// touched computes the retention mask. Cells crossed by a polygon edge get an
// exact overlap test; the rest are wholly inside or outside, so a scanline
// through their centres decides.
func touched(src *raster.Raster, mp orb.MultiPolygon) raster.Mask {
	w, h := src.Size()
	gt := src.GeoTransform
	pw, ph := gt.PixelSize()
	ph = math.Abs(ph)
	keep := raster.NewMask(w, h)
	boundary := raster.NewMask(w, h)

	cellBound := func(x, y int) orb.Bound {
		minX := gt[0] + float64(x)*pw
		maxY := gt[3] - float64(y)*ph
		return orb.Bound{Min: orb.Point{minX, maxY - ph}, Max: orb.Point{minX + pw, maxY}}
	}
	colRange := func(a, b float64) (int, int) {
		lo := int(math.Floor((a - gt[0]) / pw))
		hi := int(math.Floor((b - gt[0]) / pw))
		return max(lo, 0), min(hi, w-1)
	}
	rowRange := func(a, b float64) (int, int) {
		lo := int(math.Floor((gt[3] - b) / ph))
		hi := int(math.Floor((gt[3] - a) / ph))
		return max(lo, 0), min(hi, h-1)
	}

	for _, poly := range mp {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				a, b := ring[i], ring[i+1]
				c0, c1 := colRange(math.Min(a[0], b[0]), math.Max(a[0], b[0]))
				r0, r1 := rowRange(math.Min(a[1], b[1]), math.Max(a[1], b[1]))
				for y := r0; y <= r1; y++ {
					for x := c0; x <= c1; x++ {
						if !boundary[y][x] && segmentTouches(a, b, cellBound(x, y)) {
							boundary[y][x] = true
						}
					}
				}
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !boundary[y][x] {
				continue
			}
			cell := cellBound(x, y)
			if overlapArea(mp, cell) > 1e-12*pw*ph {
				keep[y][x] = true
			}
		}
	}

	for y := 0; y < h; y++ {
		cy := gt[3] - (float64(y)+0.5)*ph
		for _, poly := range mp {
			b := poly.Bound()
			if cy < b.Min[1] || cy > b.Max[1] {
				continue
			}
			xs := crossings(poly, cy)
			for i := 0; i+1 < len(xs); i += 2 {
				lo := int(math.Ceil((xs[i]-gt[0])/pw - 0.5))
				hi := int(math.Floor((xs[i+1]-gt[0])/pw - 0.5))
				for x := max(lo, 0); x <= min(hi, w-1); x++ {
					if !boundary[y][x] {
						keep[y][x] = true
					}
				}
			}
		}
	}
	return keep
}

// crossings returns the sorted x coordinates where the horizontal line at y
// crosses the polygon rings, using a half-open rule on vertices.
func crossings(poly orb.Polygon, y float64) []float64 {
	var xs []float64
	for _, ring := range poly {
		for i := 0; i+1 < len(ring); i++ {
			a, b := ring[i], ring[i+1]
			if (a[1] <= y && y < b[1]) || (b[1] <= y && y < a[1]) {
				xs = append(xs, a[0]+(y-a[1])*(b[0]-a[0])/(b[1]-a[1]))
			}
		}
	}
	sort.Float64s(xs)
	return xs
}

// segmentTouches reports whether segment ab meets the closed box, using
// Liang-Barsky parametric clipping.
func segmentTouches(a, b orb.Point, box orb.Bound) bool {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t0, t1 := 0.0, 1.0
	for _, edge := range [4][2]float64{
		{-dx, a[0] - box.Min[0]},
		{dx, box.Max[0] - a[0]},
		{-dy, a[1] - box.Min[1]},
		{dy, box.Max[1] - a[1]},
	} {
		p, q := edge[0], edge[1]
		if p == 0 {
			if q < 0 {
				return false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = math.Max(t0, t)
		} else {
			t1 = math.Min(t1, t)
		}
		if t0 > t1 {
			return false
		}
	}
	return true
}

// overlapArea is the area of the multipolygon inside box. Outer rings add,
// holes subtract.
func overlapArea(mp orb.MultiPolygon, box orb.Bound) float64 {
	total := 0.0
	for _, poly := range mp {
		if !poly.Bound().Intersects(box) {
			continue
		}
		for i, ring := range poly {
			a := clippedRingArea(ring, box)
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// clippedRingArea clips ring against box with Sutherland-Hodgman and returns
// the unsigned area of what remains.
func clippedRingArea(ring orb.Ring, box orb.Bound) float64 {
	pts := []orb.Point(ring)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	type halfPlane struct {
		inside func(orb.Point) bool
		cross  func(a, b orb.Point) orb.Point
	}
	atX := func(x float64) func(a, b orb.Point) orb.Point {
		return func(a, b orb.Point) orb.Point {
			return orb.Point{x, a[1] + (x-a[0])*(b[1]-a[1])/(b[0]-a[0])}
		}
	}
	atY := func(y float64) func(a, b orb.Point) orb.Point {
		return func(a, b orb.Point) orb.Point {
			return orb.Point{a[0] + (y-a[1])*(b[0]-a[0])/(b[1]-a[1]), y}
		}
	}
	planes := []halfPlane{
		{func(p orb.Point) bool { return p[0] >= box.Min[0] }, atX(box.Min[0])},
		{func(p orb.Point) bool { return p[0] <= box.Max[0] }, atX(box.Max[0])},
		{func(p orb.Point) bool { return p[1] >= box.Min[1] }, atY(box.Min[1])},
		{func(p orb.Point) bool { return p[1] <= box.Max[1] }, atY(box.Max[1])},
	}

	for _, hp := range planes {
		if len(pts) == 0 {
			return 0
		}
		var next []orb.Point
		prev := pts[len(pts)-1]
		for _, cur := range pts {
			switch {
			case hp.inside(cur) && hp.inside(prev):
				next = append(next, cur)
			case hp.inside(cur):
				next = append(next, hp.cross(prev, cur), cur)
			case hp.inside(prev):
				next = append(next, hp.cross(prev, cur))
			}
			prev = cur
		}
		pts = next
	}

	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return math.Abs(area) / 2
}
