package crs

import (
	"fmt"
	"math"
	"strings"
)

const (
	earthRadius = 6378137.0
	maxLatitude = 85.05112877980659
)

var builtinCodes = map[int]bool{4326: true, 3857: true}

type builtin struct {
	fallback Resolver
}

// NewResolver answers WGS84 and Web Mercator natively and defers every other
// descriptor to fallback. A nil fallback makes any other system unresolvable.
func NewResolver(fallback Resolver) Resolver {
	return builtin{fallback: fallback}
}

func (r builtin) Resolve(descriptor string) (CRS, error) {
	if strings.TrimSpace(descriptor) == "" {
		return CRS{}, resolutionErrorf("empty crs descriptor")
	}
	code, ok := ParseEPSG(descriptor)
	if ok && builtinCodes[code] {
		return CRS{EPSG: code}, nil
	}
	if r.fallback != nil {
		return r.fallback.Resolve(descriptor)
	}
	if ok {
		return CRS{}, resolutionErrorf("EPSG:%d needs a GDAL backed resolver", code)
	}
	return CRS{}, resolutionErrorf("cannot resolve %q to an EPSG code", descriptor)
}

func (r builtin) Projection(src, dst CRS) (Projection, error) {
	if src.Equal(dst) {
		return Identity, nil
	}
	switch {
	case src.EPSG == 4326 && dst.EPSG == 3857:
		return mercator{forward: true}, nil
	case src.EPSG == 3857 && dst.EPSG == 4326:
		return mercator{forward: false}, nil
	}
	if r.fallback != nil {
		return r.fallback.Projection(src, dst)
	}
	return nil, resolutionErrorf("no projection from %s to %s", src, dst)
}

// mercator is the spherical Web Mercator projection of lon/lat degrees.
type mercator struct {
	forward bool
}

func (m mercator) Transform(xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("coordinate arrays differ in length: %d vs %d", len(xs), len(ys))
	}
	for i := range xs {
		if m.forward {
			lat := math.Max(-maxLatitude, math.Min(maxLatitude, ys[i]))
			xs[i] = earthRadius * xs[i] * math.Pi / 180
			ys[i] = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
			continue
		}
		xs[i] = xs[i] / earthRadius * 180 / math.Pi
		ys[i] = (2*math.Atan(math.Exp(ys[i]/earthRadius)) - math.Pi/2) * 180 / math.Pi
	}
	return nil
}

func (mercator) Close() error { return nil }
