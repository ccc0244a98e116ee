// Package index derives per-pixel vegetation indices from reflectance bands.
package index

import (
	"fmt"
	"math"
	"time"

	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/scene"
)

// Band is a single index grid carrying the invalid-pixel mask of its source.
// Invalid pixels hold NaN.
type Band struct {
	Values       raster.Band
	Mask         raster.Mask
	Acquired     time.Time
	GeoTransform raster.GeoTransform
	CRS          string
}

func (b *Band) Size() (int, int) {
	return b.Values.Size()
}

// ValidCount counts pixels not flagged by the mask.
func (b *Band) ValidCount() int {
	count := 0
	for y := range b.Mask {
		for _, invalid := range b.Mask[y] {
			if !invalid {
				count++
			}
		}
	}
	return count
}

// NormalizedDifference computes (a - b) / (a + b) per pixel. A pixel is
// invalid in the output when mask flags it, when a + b is zero, or when the
// ratio falls outside [-1, 1]. A nil mask treats every pixel as valid.
func NormalizedDifference(a, b raster.Band, mask raster.Mask) (*Band, error) {
	if err := raster.CheckShape("normalized difference bands", a, b); err != nil {
		return nil, err
	}
	w, h := a.Size()
	if mask == nil {
		mask = raster.NewMask(w, h)
	} else if err := raster.CheckShape("normalized difference mask", a, mask); err != nil {
		return nil, err
	}

	values := raster.NewBand(w, h)
	out := raster.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := a[y][x] + b[y][x]
			v := (a[y][x] - b[y][x]) / sum
			if mask[y][x] || sum == 0 || math.IsNaN(v) || math.IsInf(v, 0) || v < -1 || v > 1 {
				values[y][x] = math.NaN()
				out[y][x] = true
				continue
			}
			values[y][x] = v
		}
	}
	return &Band{Values: values, Mask: out}, nil
}

// NDVI masks the scene with its sensor profile and derives the vegetation index.
func NDVI(s *scene.Scene, p scene.Profile) (*Band, error) {
	if s.Sensor != "" && s.Sensor != p.Sensor() {
		return nil, fmt.Errorf("scene sensor %s does not match profile %s", s.Sensor, p.Sensor())
	}
	mask, err := p.Mask(s)
	if err != nil {
		return nil, fmt.Errorf("failed to mask scene: %w", err)
	}
	nir, err := s.Band(p.NIR())
	if err != nil {
		return nil, err
	}
	red, err := s.Band(p.Red())
	if err != nil {
		return nil, err
	}

	ndvi, err := NormalizedDifference(nir, red, mask)
	if err != nil {
		return nil, err
	}
	ndvi.Acquired = s.Acquired
	ndvi.GeoTransform = s.GeoTransform
	ndvi.CRS = s.CRS
	return ndvi, nil
}
