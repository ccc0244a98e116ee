package align

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
)

func grid(w, h int, gt raster.GeoTransform, c string) *raster.Raster {
	data := raster.NewBand(w, h)
	for y := range data {
		for x := range data[y] {
			data[y][x] = float64(y*w+x) / float64(w*h)
		}
	}
	return &raster.Raster{Data: data, NoData: raster.DefaultNoData, GeoTransform: gt, CRS: c, Year: 2020, Scenes: 3}
}

func box(minX, minY, maxX, maxY float64) *roi.Region {
	r, _ := roi.FromBBox("test", [4]float64{minX, minY, maxX, maxY}, crs.WGS84)
	return r
}

func TestClipKeepsCellsWithPositiveOverlap(t *testing.T) {
	src := grid(3, 3, raster.NorthUp(0, 3, 1, 1), "EPSG:4326")

	out, err := Clip(src, box(1, 1, 2.1, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, out.ValidCount())
	assert.False(t, out.IsNoData(1, 1))
	assert.False(t, out.IsNoData(2, 1))
	assert.Equal(t, src.Data[1][1], out.Data[1][1])
	assert.Equal(t, src.GeoTransform, out.GeoTransform)
}

func TestClipHonoursHoles(t *testing.T) {
	src := grid(5, 5, raster.NorthUp(0, 5, 1, 1), "EPSG:4326")
	outer := orb.Ring{{0, 0}, {5, 0}, {5, 5}, {0, 5}, {0, 0}}
	hole := orb.Ring{{1, 1}, {1, 4}, {4, 4}, {4, 1}, {1, 1}}
	region := roi.FromGeometry("donut", orb.Polygon{outer, hole}, crs.WGS84)

	out, err := Clip(src, region)
	require.NoError(t, err)

	assert.Equal(t, 16, out.ValidCount())
	assert.True(t, out.IsNoData(2, 2))
	assert.False(t, out.IsNoData(0, 0))
}

func TestClipLargeInteriorUsesScanline(t *testing.T) {
	src := grid(40, 40, raster.NorthUp(0, 40, 1, 1), "EPSG:4326")
	region := roi.FromGeometry("tri", orb.Polygon{{{0.5, 0.5}, {39.5, 0.5}, {0.5, 39.5}, {0.5, 0.5}}}, crs.WGS84)

	out, err := Clip(src, region)
	require.NoError(t, err)

	// centre of the lower left cell is inside, far upper right corner is not
	assert.False(t, out.IsNoData(0, 39))
	assert.False(t, out.IsNoData(10, 29))
	assert.True(t, out.IsNoData(39, 0))
	assert.Less(t, out.ValidCount(), 40*40)
}

func TestClipErrors(t *testing.T) {
	src := grid(3, 3, raster.NorthUp(0, 3, 1, 1), "EPSG:4326")

	_, err := Clip(src, &roi.Region{Name: "empty", CRS: crs.WGS84})
	assert.ErrorIs(t, err, raster.ErrEmptyClipRegion)

	_, err = Clip(src, box(10, 10, 11, 11))
	assert.ErrorIs(t, err, raster.ErrEmptyClipRegion)

	projected := box(1, 1, 2, 2)
	projected.CRS = crs.WebMercator
	_, err = Clip(src, projected)
	assert.ErrorIs(t, err, raster.ErrCRSResolution)
}

func TestReprojectRoundTripPreservesExtent(t *testing.T) {
	a := New(crs.NewResolver(nil))
	src := grid(134, 72, raster.NorthUp(-2.85, 52.51, 0.01, 0.01), "EPSG:4326")

	merc, err := a.Reproject(src, "EPSG:3857")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", merc.CRS)
	assert.Equal(t, 2020, merc.Year)
	assert.Greater(t, merc.ValidCount(), 0)

	back, err := a.Reproject(merc, "EPSG:4326")
	require.NoError(t, err)

	pw, _ := back.GeoTransform.PixelSize()
	want, got := src.Bounds(), back.Bounds()
	for i := range want {
		assert.InDelta(t, want[i], got[i], pw, "bound %d", i)
	}

	// nearest neighbour never invents values
	seen := map[float64]bool{}
	for _, row := range src.Data {
		for _, v := range row {
			seen[v] = true
		}
	}
	for y := range back.Data {
		for x, v := range back.Data[y] {
			if !back.IsNoData(x, y) {
				require.True(t, seen[v], "pixel %d,%d = %v", x, y, v)
			}
		}
	}
}

func TestReprojectSameCRSIsCopy(t *testing.T) {
	a := New(crs.NewResolver(nil))
	src := grid(4, 4, raster.NorthUp(0, 4, 1, 1), "epsg:4326")

	out, err := a.Reproject(src, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, src.Data, out.Data)
	assert.Equal(t, "EPSG:4326", out.CRS)

	out.Data[0][0] = 42
	assert.NotEqual(t, 42.0, src.Data[0][0])
}

func TestReprojectUnresolvableTarget(t *testing.T) {
	a := New(crs.NewResolver(nil))
	src := grid(4, 4, raster.NorthUp(0, 4, 1, 1), "EPSG:4326")

	_, err := a.Reproject(src, "EPSG:27700")
	assert.ErrorIs(t, err, raster.ErrCRSResolution)

	_, err = a.Reproject(src, "not a crs")
	assert.ErrorIs(t, err, raster.ErrCRSResolution)
}

func TestAlignReprojectsRegionBeforeClipping(t *testing.T) {
	a := New(crs.NewResolver(nil))
	src := grid(134, 72, raster.NorthUp(-2.85, 52.51, 0.01, 0.01), "EPSG:4326")
	region := box(-2.5, 52.0, -2.0, 52.3)

	out, err := a.Align(src, "EPSG:3857", region)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", out.CRS)
	assert.Greater(t, out.ValidCount(), 0)
	assert.Less(t, out.ValidCount(), out.Width()*out.Height())

	_, err = a.Align(src, "EPSG:3857", &roi.Region{CRS: crs.WGS84})
	assert.ErrorIs(t, err, raster.ErrEmptyClipRegion)
}
