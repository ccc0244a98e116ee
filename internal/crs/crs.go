// Package crs resolves coordinate reference descriptors and builds
// coordinate projections between them.
package crs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hularuns/policy-analysis/internal/raster"
)

// CRS is a coordinate reference system identified by its EPSG code.
type CRS struct {
	EPSG int
	WKT  string
}

var (
	WGS84       = CRS{EPSG: 4326}
	WebMercator = CRS{EPSG: 3857}
)

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.EPSG)
}

func (c CRS) Equal(other CRS) bool {
	return c.EPSG != 0 && c.EPSG == other.EPSG
}

// Projection converts coordinate arrays in place.
type Projection interface {
	Transform(xs, ys []float64) error
	Close() error
}

// Resolver turns user supplied descriptors into concrete systems.
type Resolver interface {
	Resolve(descriptor string) (CRS, error)
	Projection(src, dst CRS) (Projection, error)
}

// ParseEPSG recognises EPSG:n, bare integers and OGC URNs.
func ParseEPSG(descriptor string) (int, bool) {
	d := strings.ToUpper(strings.TrimSpace(descriptor))
	for _, prefix := range []string{"URN:OGC:DEF:CRS:EPSG::", "URN:OGC:DEF:CRS:EPSG:", "EPSG::", "EPSG:"} {
		if strings.HasPrefix(d, prefix) {
			d = strings.TrimPrefix(d, prefix)
			break
		}
	}
	code, err := strconv.Atoi(d)
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

func resolutionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", raster.ErrCRSResolution, fmt.Sprintf(format, args...))
}

type identity struct{}

func (identity) Transform(xs, ys []float64) error { return nil }
func (identity) Close() error                     { return nil }

// Identity leaves coordinates untouched.
var Identity Projection = identity{}
