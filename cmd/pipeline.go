package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/gapfill"
	"github.com/hularuns/policy-analysis/internal/gdalio"
	"github.com/hularuns/policy-analysis/internal/metrics"
	"github.com/hularuns/policy-analysis/internal/pipeline"
	"github.com/hularuns/policy-analysis/internal/properties"
	"github.com/hularuns/policy-analysis/internal/roi"
)

// loadRegion builds the region of interest from ROI_PATH, or from the
// bounding box when no file is configured.
func loadRegion(cfg properties.Config) (*roi.Region, error) {
	wgs84 := crs.CRS{EPSG: 4326}
	if cfg.ROIPath == "" {
		return roi.FromBBox(cfg.Region, cfg.ROIBBox, wgs84)
	}

	switch strings.ToLower(filepath.Ext(cfg.ROIPath)) {
	case ".geojson", ".json":
		var match func(geojson.Properties) bool
		if cfg.ROIFilter != "" {
			key, value, ok := strings.Cut(cfg.ROIFilter, "=")
			if !ok {
				return nil, fmt.Errorf("roi filter %q must look like field=value", cfg.ROIFilter)
			}
			match = roi.PropertyEquals(key, value)
		}
		return roi.LoadGeoJSON(cfg.ROIPath, cfg.Region, wgs84, match)
	default:
		return gdalio.LoadVector(cfg.ROIPath, cfg.Region, cfg.ROIFilter)
	}
}

func (a *app) newPipeline(m *metrics.Metrics) (*pipeline.Pipeline, error) {
	region, err := loadRegion(a.cfg)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg
	if strings.EqualFold(cfg.TargetCRS, "roi") {
		cfg.TargetCRS = region.CRS.String()
	}
	a.logger.Info("region loaded", "region", region.Name, "crs", region.CRS, "area", region.Area())

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(m),
		pipeline.WithNotifier(a.notify),
	}
	if cfg.LoadWorkers > 0 {
		opts = append(opts, pipeline.WithLoadConcurrency(cfg.LoadWorkers))
	}
	switch cfg.FillMode {
	case properties.FillExec:
		filler := gapfill.NewExecFiller(cfg.FillCommand, cfg.SmoothingIterations)
		filler.Logger = a.logger
		opts = append(opts, pipeline.WithFiller(filler))
	case properties.FillGDAL:
		opts = append(opts, pipeline.WithFiller(gdalio.NewFiller(cfg.SmoothingIterations)))
	}

	return pipeline.New(cfg, region, gdalio.NewResolver(), gdalio.NewSceneLoader(), gdalio.NewStore(), opts...)
}
