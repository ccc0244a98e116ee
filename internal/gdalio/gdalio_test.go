package gdalio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/scene"
)

func sample() *raster.Raster {
	data := raster.NewBand(3, 2)
	for y := range data {
		for x := range data[y] {
			data[y][x] = float64(x+y) / 4
		}
	}
	data[1][2] = raster.DefaultNoData
	return &raster.Raster{
		Data:         data,
		NoData:       raster.DefaultNoData,
		GeoTransform: raster.NorthUp(-317000, 6800000, 10, 10),
		CRS:          "EPSG:3857",
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxford", "median_2020.tif")
	s := NewStore()

	require.NoError(t, s.Write(path, sample()))
	got, err := s.Read(path)
	require.NoError(t, err)

	assert.Equal(t, "EPSG:3857", got.CRS)
	assert.Equal(t, raster.DefaultNoData, got.NoData)
	assert.Equal(t, sample().GeoTransform, got.GeoTransform)
	assert.Equal(t, 5, got.ValidCount())
	assert.InDelta(t, 0.25, got.Data[0][1], 1e-6)
	assert.True(t, got.IsNoData(2, 1))
}

func TestStoreRefusesUnknownCRS(t *testing.T) {
	dir := t.TempDir()
	r := sample()
	r.CRS = ""

	err := NewStore().Write(filepath.Join(dir, "x.tif"), r)
	assert.ErrorIs(t, err, raster.ErrCRSResolution)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "no partial file is left behind")
}

func TestSceneLoaderFallsBackToBandOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "S2_20200601.tif")
	require.NoError(t, NewStore().Write(path, sample()))

	profile, err := scene.ProfileFor(scene.Sentinel2)
	require.NoError(t, err)
	_, err = NewSceneLoader().Load(context.Background(), path, profile)
	assert.ErrorContains(t, err, "needs 3")
}

func TestResolver(t *testing.T) {
	r := NewResolver()

	bng, err := r.Resolve("EPSG:27700")
	require.NoError(t, err)
	assert.Equal(t, 27700, bng.EPSG)
	assert.NotEmpty(t, bng.WKT)

	_, err = r.Resolve("definitely not a crs")
	assert.ErrorIs(t, err, raster.ErrCRSResolution)

	wgs, err := r.Resolve("EPSG:4326")
	require.NoError(t, err)
	proj, err := r.Projection(wgs, bng)
	require.NoError(t, err)
	defer proj.Close()

	xs, ys := []float64{-1.2577}, []float64{51.752}
	require.NoError(t, proj.Transform(xs, ys))
	assert.InDelta(t, 451000, xs[0], 2000)
	assert.InDelta(t, 206000, ys[0], 2000)
}

func TestLoadVector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"north"},"geometry":{"type":"Polygon","coordinates":[[[0,1],[2,1],[2,2],[0,2],[0,1]]]}},
		{"type":"Feature","properties":{"name":"south"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
	]}`), 0644))

	region, err := LoadVector(path, "north", "name=north")
	require.NoError(t, err)
	assert.Equal(t, 4326, region.CRS.EPSG)
	assert.Len(t, region.Polygons, 1)
	assert.InDelta(t, 2, region.Area(), 1e-9)

	all, err := LoadVector(path, "all", "")
	require.NoError(t, err)
	assert.Len(t, all.Polygons, 2)

	_, err = LoadVector(path, "none", "name=east")
	assert.ErrorIs(t, err, raster.ErrEmptyClipRegion)
}
