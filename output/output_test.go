package output

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hularuns/policy-analysis/internal/raster"
)

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxford", "manifest.csv")
	rows := []ManifestRow{
		{RunID: "r1", Year: 2019, Region: "oxford", Sensor: "SENTINEL2", Stage: "Persisted", Status: "succeeded", Scenes: 12, ValidPixels: 900, FilledPixels: 4},
		{RunID: "r1", Year: 2020, Region: "oxford", Sensor: "SENTINEL2", Stage: "Compositing", Status: "failed", Error: "insufficient data"},
	}

	require.NoError(t, WriteManifest(path, rows))
	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestWritePreview(t *testing.T) {
	r := &raster.Raster{
		Data:   raster.Band{{0.1, 0.5}, {raster.DefaultNoData, 0.9}},
		NoData: raster.DefaultNoData,
		Year:   2020,
	}
	path := filepath.Join(t.TempDir(), "preview", "ndvi_2020.png")
	require.NoError(t, WritePreview(path, r))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, 2, img.Bounds().Dx())
	_, _, _, a := img.At(0, 1).RGBA()
	assert.Zero(t, a, "nodata is transparent")
	_, _, _, a = img.At(1, 1).RGBA()
	assert.NotZero(t, a)
}

func TestWritePreviewNeedsData(t *testing.T) {
	r := &raster.Raster{Data: raster.FilledBand(2, 2, raster.DefaultNoData), NoData: raster.DefaultNoData}
	assert.Error(t, WritePreview(filepath.Join(t.TempDir(), "x.png"), r))
}

func TestValueToColorRamp(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 140, G: 80, B: 20, A: 255}, valueToColor(0))
	assert.Equal(t, color.RGBA{R: 0, G: 160, B: 0, A: 255}, valueToColor(1))
	assert.Equal(t, valueToColor(1), valueToColor(3))
}
