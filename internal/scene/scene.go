package scene

import (
	"fmt"
	"math"
	"time"

	"github.com/hularuns/policy-analysis/internal/raster"
)

// Scene is one satellite capture. Bands are keyed by the sensor's band names.
type Scene struct {
	Path         string
	Bands        map[string]raster.Band
	Acquired     time.Time
	Sensor       Sensor
	NoData       float64
	GeoTransform raster.GeoTransform
	CRS          string
}

// Band returns the named band or an error when the scene does not carry it.
func (s *Scene) Band(name string) (raster.Band, error) {
	band, ok := s.Bands[name]
	if !ok {
		return nil, fmt.Errorf("scene %s has no band %s", s.describe(), name)
	}
	return band, nil
}

// Size returns the common grid dimensions of all bands, failing when bands disagree.
func (s *Scene) Size() (int, int, error) {
	var first raster.Band
	var firstName string
	for name, band := range s.Bands {
		if first == nil {
			first, firstName = band, name
			continue
		}
		if err := raster.CheckShape(fmt.Sprintf("bands %s and %s of scene %s", firstName, name, s.describe()), first, band); err != nil {
			return 0, 0, err
		}
	}
	if first == nil {
		return 0, 0, fmt.Errorf("scene %s has no bands", s.describe())
	}
	w, h := first.Size()
	return w, h, nil
}

// NoDataAt reports whether the band itself carries no data at (x, y).
func (s *Scene) NoDataAt(band raster.Band, x, y int) bool {
	return raster.IsNoData(band[y][x], s.NoData)
}

func (s *Scene) describe() string {
	if s.Path != "" {
		return s.Path
	}
	if s.Acquired.IsZero() {
		return string(s.Sensor)
	}
	return fmt.Sprintf("%s@%s", s.Sensor, s.Acquired.Format("2006-01-02"))
}

// UnsetNoData marks a scene whose source declared no nodata sentinel.
var UnsetNoData = math.NaN()
