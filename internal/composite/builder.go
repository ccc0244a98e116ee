// Package composite reduces a year of index bands to a per-pixel median.
package composite

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/hularuns/policy-analysis/internal/index"
	"github.com/hularuns/policy-analysis/internal/raster"
)

// Builder accumulates index bands one at a time and keeps only the valid
// samples of each pixel, so scenes can be released as soon as they are added.
type Builder struct {
	mu sync.Mutex

	year   int
	nodata float64
	logger *slog.Logger

	width, height int
	geoTransform  raster.GeoTransform
	crs           string
	samples       [][]float64
	scenes        int
}

type Option func(*Builder)

func WithNoData(nodata float64) Option {
	return func(b *Builder) { b.nodata = nodata }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

func NewBuilder(year int, opts ...Option) *Builder {
	b := &Builder{
		year:   year,
		nodata: raster.DefaultNoData,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add folds one band into the stack. Every band must share the size,
// geotransform and CRS of the first one, so the grid does not depend on the
// order bands arrive in.
func (b *Builder) Add(band *index.Band) error {
	if band == nil {
		return fmt.Errorf("nil index band")
	}
	if err := raster.CheckShape("index band values vs mask", band.Values, band.Mask); err != nil {
		return err
	}
	w, h := band.Size()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.samples == nil {
		b.width, b.height = w, h
		b.geoTransform = band.GeoTransform
		b.crs = band.CRS
		b.samples = make([][]float64, w*h)
	} else if w != b.width || h != b.height {
		return fmt.Errorf("%w: scene %s is %dx%d, stack for %d is %dx%d",
			raster.ErrShapeMismatch, band.Acquired.Format("2006-01-02"), w, h, b.year, b.width, b.height)
	}
	if band.GeoTransform != b.geoTransform || band.CRS != b.crs {
		return fmt.Errorf("%w: scene %s is not on the grid of the %d stack (%s %v, want %s %v)",
			raster.ErrShapeMismatch, band.Acquired.Format("2006-01-02"), b.year,
			band.CRS, band.GeoTransform, b.crs, b.geoTransform)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if band.Mask[y][x] {
				continue
			}
			i := y*w + x
			b.samples[i] = append(b.samples[i], band.Values[y][x])
		}
	}
	b.scenes++
	return nil
}

// Scenes returns how many bands have been added.
func (b *Builder) Scenes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scenes
}

// Build reduces the stack. Pixels without a single valid sample are nodata;
// every other pixel is the median of exactly its valid samples, taking the
// lower of the two middle values when the count is even.
func (b *Builder) Build() (*raster.Raster, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.scenes == 0 {
		return nil, fmt.Errorf("%w: no scenes collected for %d", raster.ErrInsufficientData, b.year)
	}

	out := raster.NewBand(b.width, b.height)
	scratch := make([]float64, 0, b.scenes)
	valid := 0
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			samples := b.samples[y*b.width+x]
			if len(samples) == 0 {
				out[y][x] = b.nodata
				continue
			}
			scratch = append(scratch[:0], samples...)
			out[y][x] = median(scratch)
			valid++
		}
	}
	if valid == 0 {
		return nil, fmt.Errorf("%w: all %d scenes for %d are fully masked", raster.ErrAllInvalidStack, b.scenes, b.year)
	}

	b.logger.Debug("composite built", "year", b.year, "scenes", b.scenes, "valid_pixels", valid)
	return &raster.Raster{
		Data:         out,
		NoData:       b.nodata,
		GeoTransform: b.geoTransform,
		CRS:          b.crs,
		Year:         b.year,
		Scenes:       b.scenes,
	}, nil
}

// median sorts values in place. The empirical quantile at 0.5 is the lower
// middle element for even counts.
func median(values []float64) float64 {
	sort.Float64s(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil)
}

// Median composites bands held in memory.
func Median(year int, bands ...*index.Band) (*raster.Raster, error) {
	b := NewBuilder(year)
	for _, band := range bands {
		if err := b.Add(band); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
