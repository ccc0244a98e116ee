// Package gapfill interpolates residual nodata pixels of aligned composites.
package gapfill

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hularuns/policy-analysis/internal/raster"
)

// Filler fills the nodata pixels of one band of the raster file at in and
// writes the result to out.
type Filler interface {
	FillFile(ctx context.Context, in, out string, maxDistance float64, band int) error
}

type offset struct {
	dx, dy   int
	weight   float64
	quadrant int
}

// Fill returns a copy of r whose nodata pixels are replaced by an inverse
// distance weighted mean of the nearest valid pixel in each of the four
// quadrants around them, searching at most maxDistance pixels away. Pixels
// with no valid neighbour in range stay nodata and valid pixels are never
// modified. smoothing runs that many 3x3 mean passes over the filled pixels.
func Fill(r *raster.Raster, maxDistance float64, smoothing int) (*raster.Raster, error) {
	if maxDistance < 0 || math.IsNaN(maxDistance) {
		return nil, fmt.Errorf("max fill distance must be positive, got %v", maxDistance)
	}
	if smoothing < 0 {
		return nil, fmt.Errorf("smoothing iterations must not be negative, got %d", smoothing)
	}
	out := r.Clone()
	w, h := r.Size()
	offsets := searchOffsets(maxDistance)
	if len(offsets) == 0 || w == 0 || h == 0 {
		return out, nil
	}

	filled := raster.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !r.IsNoData(x, y) {
				continue
			}
			var found [4]bool
			sum, weights, remaining := 0.0, 0.0, 4
			for _, o := range offsets {
				if found[o.quadrant] {
					continue
				}
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h || r.IsNoData(nx, ny) {
					continue
				}
				found[o.quadrant] = true
				sum += o.weight * r.Data[ny][nx]
				weights += o.weight
				if remaining--; remaining == 0 {
					break
				}
			}
			if weights > 0 {
				out.Data[y][x] = sum / weights
				filled[y][x] = true
			}
		}
	}

	for i := 0; i < smoothing; i++ {
		out.Data = smooth(out, filled)
	}
	return out, nil
}

// searchOffsets lists every offset within radius, nearest first.
func searchOffsets(radius float64) []offset {
	reach := int(math.Floor(radius))
	var offsets []offset
	for dy := -reach; dy <= reach; dy++ {
		for dx := -reach; dx <= reach; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if d2 == 0 || d2 > radius*radius {
				continue
			}
			offsets = append(offsets, offset{dx: dx, dy: dy, weight: 1 / d2, quadrant: quadrant(dx, dy)})
		}
	}
	sort.SliceStable(offsets, func(i, j int) bool {
		return offsets[i].weight > offsets[j].weight
	})
	return offsets
}

func quadrant(dx, dy int) int {
	switch {
	case dx > 0 && dy >= 0:
		return 0
	case dx <= 0 && dy > 0:
		return 1
	case dx < 0 && dy <= 0:
		return 2
	default:
		return 3
	}
}

func smooth(r *raster.Raster, filled raster.Mask) raster.Band {
	next := r.Data.Clone()
	for y := range r.Data {
		for x := range r.Data[y] {
			if !filled[y][x] {
				continue
			}
			sum, n := 0.0, 0
			for ny := max(y-1, 0); ny <= min(y+1, len(r.Data)-1); ny++ {
				for nx := max(x-1, 0); nx <= min(x+1, len(r.Data[y])-1); nx++ {
					if !r.IsNoData(nx, ny) {
						sum += r.Data[ny][nx]
						n++
					}
				}
			}
			next[y][x] = sum / float64(n)
		}
	}
	return next
}
