package raster

import (
	"fmt"
	"math"
)

// GeoTransform follows the GDAL affine layout:
// originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight.
type GeoTransform [6]float64

// NorthUp builds a transform without rotation; pixelHeight is positive and
// stored negated.
func NorthUp(originX, originY, pixelWidth, pixelHeight float64) GeoTransform {
	return GeoTransform{originX, pixelWidth, 0, originY, 0, -math.Abs(pixelHeight)}
}

// PixelToWorld converts fractional pixel coordinates (col, row) to world coordinates.
func (gt GeoTransform) PixelToWorld(col, row float64) (float64, float64) {
	x := gt[0] + col*gt[1] + row*gt[2]
	y := gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// WorldToPixel converts world coordinates to fractional pixel coordinates.
func (gt GeoTransform) WorldToPixel(x, y float64) (float64, float64, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, fmt.Errorf("geotransform %v is not invertible", gt)
	}
	dx := x - gt[0]
	dy := y - gt[3]
	col := (dx*gt[5] - dy*gt[2]) / det
	row := (dy*gt[1] - dx*gt[4]) / det
	return col, row, nil
}

// Bounds returns minX, minY, maxX, maxY for a width x height grid.
func (gt GeoTransform) Bounds(width, height int) [4]float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)}} {
		x, y := gt.PixelToWorld(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return [4]float64{minX, minY, maxX, maxY}
}

// PixelSize returns the absolute pixel width and height.
func (gt GeoTransform) PixelSize() (float64, float64) {
	return math.Hypot(gt[1], gt[4]), math.Hypot(gt[2], gt[5])
}

// IsNorthUp reports whether the transform carries no rotation terms.
func (gt GeoTransform) IsNorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}
