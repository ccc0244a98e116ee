package output

import (
	"fmt"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/hularuns/policy-analysis/internal/raster"
)

// WritePreview renders r as a PNG quick look. Values are stretched between
// the raster minimum and maximum; nodata is transparent.
func WritePreview(path string, r *raster.Raster) error {
	w, h := r.Size()
	if w == 0 || h == 0 {
		return fmt.Errorf("cannot preview an empty raster")
	}
	lo, hi, _, ok := r.Stats()
	if !ok {
		return fmt.Errorf("raster for %d holds no data to preview", r.Year)
	}

	dc := gg.NewContext(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if r.IsNoData(x, y) {
				continue
			}
			norm := 0.5
			if hi > lo {
				norm = (r.Data[y][x] - lo) / (hi - lo)
			}
			dc.SetColor(valueToColor(norm))
			dc.SetPixel(x, y)
		}
	}

	return raster.WriteAtomic(path, func(tmpPath string) error {
		if err := dc.SavePNG(tmpPath); err != nil {
			return fmt.Errorf("failed to save preview: %w", err)
		}
		return nil
	})
}

// valueToColor ramps from brown through yellow to green.
func valueToColor(norm float64) color.RGBA {
	norm = max(0, min(1, norm))
	var r, g, b uint8
	if norm <= 0.5 {
		ratio := norm / 0.5
		r = uint8(140 + 115*ratio)
		g = uint8(80 + 175*ratio)
		b = uint8(20 * (1 - ratio))
	} else {
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * (1 - ratio))
		g = uint8(255 - 95*ratio)
		b = 0
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
