package gdalio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/scene"
)

// SceneLoader opens multi band scene exports. Bands are matched to the
// profile by their description and fall back to the profile's band order.
type SceneLoader struct{}

func NewSceneLoader() *SceneLoader {
	Register()
	return &SceneLoader{}
}

func (l *SceneLoader) Load(ctx context.Context, path string, profile scene.Profile) (*scene.Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s *scene.Scene
	err := withGDAL(func() error {
		var err error
		s, err = loadScene(path, profile)
		return err
	})
	return s, err
}

func loadScene(path string, profile scene.Profile) (*scene.Scene, error) {
	ds, err := godal.Open(path, godal.RasterOnly(), quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene: %w", err)
	}
	defer ds.Close()

	order := profile.BandOrder()
	bands := ds.Bands()
	if len(bands) < len(order) {
		return nil, fmt.Errorf("scene has %d bands, %s needs %d", len(bands), profile.Sensor(), len(order))
	}

	s := &scene.Scene{
		Path:   path,
		Sensor: profile.Sensor(),
		Bands:  make(map[string]raster.Band, len(order)),
		NoData: scene.UnsetNoData,
	}
	if nd, ok := bands[0].NoData(); ok {
		s.NoData = nd
	}

	byName := map[string]godal.Band{}
	for _, b := range bands {
		if d := strings.ToUpper(strings.TrimSpace(b.Description())); d != "" {
			byName[d] = b
		}
	}
	for i, name := range order {
		b, ok := byName[strings.ToUpper(name)]
		if !ok {
			b = bands[i]
		}
		data, err := readBand(b)
		if err != nil {
			return nil, fmt.Errorf("failed to read band %s: %w", name, err)
		}
		s.Bands[name] = data
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("scene has no geotransform: %w", err)
	}
	s.GeoTransform = raster.GeoTransform(gt)
	if sr := ds.SpatialRef(); sr != nil {
		s.CRS = describeSRS(sr)
		sr.Close()
	}
	s.Acquired = acquired(ds, path)
	return s, nil
}

// acquired prefers the export's acquisition metadata over the file name.
func acquired(ds *godal.Dataset, path string) time.Time {
	for _, key := range []string{"ACQUISITION_DATE", "DATE_ACQUIRED", "system:time_start"} {
		v := ds.Metadata(key)
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	t, _ := scene.DateFromName(filepath.Base(path))
	return t
}
