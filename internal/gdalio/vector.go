package gdalio

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/geojson"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
)

// LoadVector collects the polygons of the first layer of any OGR readable
// file. filter is either empty or "field=value"; only matching features are
// kept. The region takes the coordinate system of the layer geometries.
func LoadVector(path, name, filter string) (*roi.Region, error) {
	Register()
	field, value, hasFilter := strings.Cut(filter, "=")
	if filter != "" && !hasFilter {
		return nil, fmt.Errorf("vector filter %q must look like field=value", filter)
	}

	var region *roi.Region
	err := withGDAL(func() error {
		ds, err := godal.Open(path, godal.VectorOnly(), quiet)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer ds.Close()

		layers := ds.Layers()
		if len(layers) == 0 {
			return fmt.Errorf("%s has no vector layers", path)
		}

		region = &roi.Region{Name: name}
		for {
			feat := layers[0].NextFeature()
			if feat == nil {
				break
			}
			keep := true
			if hasFilter {
				val, ok := feat.Fields()[field]
				keep = ok && val.String() == value
			}
			if keep {
				geom := feat.Geometry()
				err = addFeature(region, geom)
				if geom != nil {
					geom.Close()
				}
			}
			feat.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if region.Empty() {
		return nil, fmt.Errorf("%w: no polygons in %s matching %q", raster.ErrEmptyClipRegion, path, filter)
	}
	return region, nil
}

func addFeature(region *roi.Region, geom *godal.Geometry) error {
	if geom == nil {
		return nil
	}
	sr := geom.SpatialRef()
	desc := describeSRS(sr)
	if sr != nil {
		sr.Close()
	}
	code, ok := crs.ParseEPSG(desc)
	if !ok {
		return fmt.Errorf("%w: vector geometry has no EPSG coordinate system", raster.ErrCRSResolution)
	}
	c := crs.CRS{EPSG: code}
	if region.CRS.EPSG == 0 {
		region.CRS = c
	} else if !region.CRS.Equal(c) {
		return fmt.Errorf("%w: layer mixes %s and %s", raster.ErrCRSResolution, region.CRS, c)
	}

	js, err := geom.GeoJSON()
	if err != nil {
		return fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	g, err := geojson.UnmarshalGeometry([]byte(js))
	if err != nil {
		return fmt.Errorf("failed to parse GeoJSON: %w", err)
	}
	polygons := roi.FromGeometry(region.Name, g.Coordinates, c).Polygons
	region.Polygons = append(region.Polygons, polygons...)
	return nil
}
