package gdalio

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/hularuns/policy-analysis/internal/raster"
)

// Filler runs GDALFillNodata in process on a copy of the input.
type Filler struct {
	Smoothing int
	store     *Store
}

func NewFiller(smoothing int) *Filler {
	return &Filler{Smoothing: smoothing, store: NewStore()}
}

func (f *Filler) FillFile(ctx context.Context, in, out string, maxDistance float64, band int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if band != 1 {
		return fmt.Errorf("composites carry a single band, got band %d", band)
	}
	r, err := f.store.Read(in)
	if err != nil {
		return &raster.ToolError{Tool: "GDALFillNodata", Input: in, Output: out, Err: err}
	}

	return raster.WriteAtomic(out, func(tmpPath string) error {
		return withGDAL(func() error {
			if err := writeGTiff(tmpPath, r); err != nil {
				return err
			}
			ds, err := godal.Open(tmpPath, godal.RasterOnly(), godal.Update(), quiet)
			if err != nil {
				return &raster.ToolError{Tool: "GDALFillNodata", Input: in, Output: out, Err: err}
			}
			opts := []godal.FillNoDataOption{godal.MaxDistance(maxDistance)}
			if f.Smoothing > 0 {
				opts = append(opts, godal.SmoothingIterations(f.Smoothing))
			}
			if err := ds.Bands()[band-1].FillNoData(opts...); err != nil {
				ds.Close()
				return &raster.ToolError{Tool: "GDALFillNodata", Input: in, Output: out, Err: err}
			}
			return ds.Close()
		})
	})
}
