package raster

import "math"

// DefaultNoData is embedded in every written composite.
const DefaultNoData = -9999.0

// Raster is a single-band georeferenced grid. Composite, aligned and filled
// artifacts all share this shape; Year and Scenes describe where it came from.
type Raster struct {
	Data         Band
	NoData       float64
	GeoTransform GeoTransform
	CRS          string
	Year         int
	Scenes       int
}

func (r *Raster) Width() int {
	w, _ := r.Data.Size()
	return w
}

func (r *Raster) Height() int {
	_, h := r.Data.Size()
	return h
}

func (r *Raster) Size() (int, int) {
	return r.Data.Size()
}

func (r *Raster) IsNoData(x, y int) bool {
	return IsNoData(r.Data[y][x], r.NoData)
}

// ValidCount counts pixels carrying data.
func (r *Raster) ValidCount() int {
	count := 0
	for y := range r.Data {
		for x := range r.Data[y] {
			if !r.IsNoData(x, y) {
				count++
			}
		}
	}
	return count
}

// Bounds returns minX, minY, maxX, maxY of the raster footprint.
func (r *Raster) Bounds() [4]float64 {
	return r.GeoTransform.Bounds(r.Width(), r.Height())
}

// Clone deep-copies the raster.
func (r *Raster) Clone() *Raster {
	out := *r
	out.Data = r.Data.Clone()
	return &out
}

// Empty returns a raster with the same georeferencing whose pixels are all nodata.
func (r *Raster) Empty() *Raster {
	out := *r
	out.Data = FilledBand(r.Width(), r.Height(), r.NoData)
	return &out
}

// Stats returns min, max and mean over valid pixels; ok is false when the
// raster holds no data.
func (r *Raster) Stats() (min, max, mean float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	sum, n := 0.0, 0
	for y := range r.Data {
		for x, v := range r.Data[y] {
			if r.IsNoData(x, y) {
				continue
			}
			min = math.Min(min, v)
			max = math.Max(max, v)
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0, false
	}
	return min, max, sum / float64(n), true
}
