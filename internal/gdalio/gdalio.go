// Package gdalio reads and writes rasters and vector regions through GDAL.
// Every GDAL call is serialised with utils.ExecuteWithMutex.
package gdalio

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/utils"
)

var registerOnce sync.Once

// Register loads the GDAL drivers. It is safe to call repeatedly.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// quiet drops GDAL warnings and turns everything else into errors.
var quiet = godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
	if ec == godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
})

func withGDAL(fn func() error) error {
	return utils.ExecuteWithMutexErr(fn)
}

// describeSRS returns "EPSG:n" for sr, or an empty string when sr is nil or
// has no EPSG identity.
func describeSRS(sr *godal.SpatialRef) string {
	if sr == nil {
		return ""
	}
	_ = sr.AutoIdentifyEPSG()
	if code := sr.AuthorityCode(""); code > 0 {
		return crs.CRS{EPSG: code}.String()
	}
	return ""
}
