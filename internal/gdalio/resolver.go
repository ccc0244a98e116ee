package gdalio

import (
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
)

// Resolver resolves any descriptor GDAL understands (EPSG codes, WKT, PROJ
// strings) as long as it identifies with an EPSG code.
type Resolver struct{}

// NewResolver returns the built-in resolver backed by GDAL for everything
// beyond WGS84 and Web Mercator.
func NewResolver() crs.Resolver {
	Register()
	return crs.NewResolver(Resolver{})
}

func (Resolver) Resolve(descriptor string) (crs.CRS, error) {
	var out crs.CRS
	err := withGDAL(func() error {
		sr, err := godal.NewSpatialRef(descriptor)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", raster.ErrCRSResolution, descriptor, err)
		}
		defer sr.Close()

		_ = sr.AutoIdentifyEPSG()
		code := sr.AuthorityCode("")
		if code <= 0 {
			return fmt.Errorf("%w: %q has no EPSG code", raster.ErrCRSResolution, descriptor)
		}
		wkt, _ := sr.WKT()
		out = crs.CRS{EPSG: code, WKT: wkt}
		return nil
	})
	return out, err
}

func (Resolver) Projection(src, dst crs.CRS) (crs.Projection, error) {
	var p *projection
	err := withGDAL(func() error {
		srcSR, err := godal.NewSpatialRefFromEPSG(src.EPSG)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", raster.ErrCRSResolution, src, err)
		}
		dstSR, err := godal.NewSpatialRefFromEPSG(dst.EPSG)
		if err != nil {
			srcSR.Close()
			return fmt.Errorf("%w: %s: %v", raster.ErrCRSResolution, dst, err)
		}
		tr, err := godal.NewTransform(srcSR, dstSR)
		if err != nil {
			srcSR.Close()
			dstSR.Close()
			return fmt.Errorf("%w: no transform from %s to %s: %v", raster.ErrCRSResolution, src, dst, err)
		}
		p = &projection{src: srcSR, dst: dstSR, tr: tr}
		return nil
	})
	return p, err
}

type projection struct {
	src, dst *godal.SpatialRef
	tr       *godal.Transform
}

func (p *projection) Transform(xs, ys []float64) error {
	return withGDAL(func() error {
		return p.tr.TransformEx(xs, ys, nil, nil)
	})
}

func (p *projection) Close() error {
	return withGDAL(func() error {
		p.tr.Close()
		p.src.Close()
		p.dst.Close()
		return nil
	})
}
