// Package align reprojects composites onto a target coordinate system and
// clips them to a region of interest.
package align

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
)

// edgeSamples is the number of points sampled along each raster edge when
// estimating the reprojected extent.
const edgeSamples = 21

type Aligner struct {
	resolver crs.Resolver
	logger   *slog.Logger
}

type Option func(*Aligner)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aligner) { a.logger = logger }
}

func New(resolver crs.Resolver, opts ...Option) *Aligner {
	a := &Aligner{
		resolver: resolver,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Align reprojects src to target and clips it to region. region may be in
// any system the resolver understands; it is reprojected before clipping.
func (a *Aligner) Align(src *raster.Raster, target string, region *roi.Region) (*raster.Raster, error) {
	if region.Empty() {
		return nil, fmt.Errorf("%w: region has no polygons", raster.ErrEmptyClipRegion)
	}
	dst, err := a.resolver.Resolve(target)
	if err != nil {
		return nil, fmt.Errorf("target crs: %w", err)
	}

	clipRegion := region
	if !region.CRS.Equal(dst) {
		proj, err := a.resolver.Projection(region.CRS, dst)
		if err != nil {
			return nil, err
		}
		defer proj.Close()
		clipRegion, err = region.Reproject(proj, dst)
		if err != nil {
			return nil, err
		}
	}

	out, err := a.Reproject(src, target)
	if err != nil {
		return nil, err
	}
	return Clip(out, clipRegion)
}

// Reproject resamples src into target using nearest neighbour. The output
// extent is the reprojected source footprint and pixels are square.
func (a *Aligner) Reproject(src *raster.Raster, target string) (*raster.Raster, error) {
	dst, err := a.resolver.Resolve(target)
	if err != nil {
		return nil, fmt.Errorf("target crs: %w", err)
	}
	srcCRS, err := a.resolver.Resolve(src.CRS)
	if err != nil {
		return nil, fmt.Errorf("source crs: %w", err)
	}
	if srcCRS.Equal(dst) {
		out := src.Clone()
		out.CRS = dst.String()
		return out, nil
	}

	fwd, err := a.resolver.Projection(srcCRS, dst)
	if err != nil {
		return nil, err
	}
	defer fwd.Close()
	inv, err := a.resolver.Projection(dst, srcCRS)
	if err != nil {
		return nil, err
	}
	defer inv.Close()

	out, err := Warp(src, dst, fwd, inv)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("raster reprojected",
		"year", src.Year, "from", srcCRS.String(), "to", dst.String(),
		"width", out.Width(), "height", out.Height())
	return out, nil
}

// Warp performs the nearest neighbour resampling given the forward
// (source to target) and inverse projections.
func Warp(src *raster.Raster, dst crs.CRS, fwd, inv crs.Projection) (*raster.Raster, error) {
	w, h := src.Size()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: cannot reproject an empty grid", raster.ErrShapeMismatch)
	}

	minX, minY, maxX, maxY, err := projectedExtent(src, fwd)
	if err != nil {
		return nil, err
	}

	res := math.Hypot(maxX-minX, maxY-minY) / math.Hypot(float64(w), float64(h))
	if res <= 0 || math.IsNaN(res) {
		return nil, fmt.Errorf("degenerate reprojected extent for %s", dst)
	}
	outW := max(1, int((maxX-minX)/res+0.5))
	outH := max(1, int((maxY-minY)/res+0.5))
	gt := raster.NorthUp(minX, maxY, res, res)

	data := raster.NewBand(outW, outH)
	xs := make([]float64, outW)
	ys := make([]float64, outW)
	for row := 0; row < outH; row++ {
		for col := 0; col < outW; col++ {
			xs[col], ys[col] = gt.PixelToWorld(float64(col)+0.5, float64(row)+0.5)
		}
		if err := inv.Transform(xs, ys); err != nil {
			return nil, fmt.Errorf("inverse projection failed on row %d: %w", row, err)
		}
		for col := 0; col < outW; col++ {
			data[row][col] = src.NoData
			if math.IsNaN(xs[col]) || math.IsNaN(ys[col]) {
				continue
			}
			sc, sr, err := src.GeoTransform.WorldToPixel(xs[col], ys[col])
			if err != nil {
				return nil, err
			}
			x, y := int(math.Floor(sc)), int(math.Floor(sr))
			if x >= 0 && x < w && y >= 0 && y < h {
				data[row][col] = src.Data[y][x]
			}
		}
	}

	return &raster.Raster{
		Data:         data,
		NoData:       src.NoData,
		GeoTransform: gt,
		CRS:          dst.String(),
		Year:         src.Year,
		Scenes:       src.Scenes,
	}, nil
}

func projectedExtent(src *raster.Raster, fwd crs.Projection) (minX, minY, maxX, maxY float64, err error) {
	w, h := src.Size()
	var xs, ys []float64
	for i := 0; i < edgeSamples; i++ {
		t := float64(i) / float64(edgeSamples-1)
		for _, p := range [][2]float64{
			{t * float64(w), 0},
			{t * float64(w), float64(h)},
			{0, t * float64(h)},
			{float64(w), t * float64(h)},
		} {
			x, y := src.GeoTransform.PixelToWorld(p[0], p[1])
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if err := fwd.Transform(xs, ys); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to project raster extent: %w", err)
	}

	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}
	if math.IsInf(minX, 0) {
		return 0, 0, 0, 0, fmt.Errorf("raster extent does not project into the target system")
	}
	return minX, minY, maxX, maxY, nil
}
