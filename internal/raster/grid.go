package raster

import "math"

// Band is a row-major pixel grid, indexed [y][x].
type Band [][]float64

// Mask marks invalid pixels with true. Same layout as Band.
type Mask [][]bool

func NewBand(width, height int) Band {
	data := make([]float64, width*height)
	band := make(Band, height)
	for y := range band {
		band[y] = data[y*width : (y+1)*width]
	}
	return band
}

// FilledBand returns a band with every pixel set to value.
func FilledBand(width, height int, value float64) Band {
	band := NewBand(width, height)
	for y := range band {
		for x := range band[y] {
			band[y][x] = value
		}
	}
	return band
}

func NewMask(width, height int) Mask {
	data := make([]bool, width*height)
	mask := make(Mask, height)
	for y := range mask {
		mask[y] = data[y*width : (y+1)*width]
	}
	return mask
}

func (b Band) Size() (int, int) {
	if len(b) == 0 {
		return 0, 0
	}
	return len(b[0]), len(b)
}

func (m Mask) Size() (int, int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m[0]), len(m)
}

func (b Band) Clone() Band {
	w, h := b.Size()
	out := NewBand(w, h)
	for y := range b {
		copy(out[y], b[y])
	}
	return out
}

// BandFromSlice builds a band over data without copying.
func BandFromSlice(data []float64, width, height int) (Band, error) {
	if width*height != len(data) {
		return nil, shapeErrorf("%d values cannot fill a %dx%d grid", len(data), width, height)
	}
	band := make(Band, height)
	for y := range band {
		band[y] = data[y*width : (y+1)*width]
	}
	return band, nil
}

// Or merges masks; the result is invalid wherever any input is invalid.
func Or(masks ...Mask) (Mask, error) {
	if len(masks) == 0 {
		return nil, nil
	}
	w, h := masks[0].Size()
	out := NewMask(w, h)
	for i, m := range masks {
		mw, mh := m.Size()
		if mw != w || mh != h {
			return nil, shapeErrorf("mask %d is %dx%d, expected %dx%d", i, mw, mh, w, h)
		}
		for y := range m {
			for x, invalid := range m[y] {
				if invalid {
					out[y][x] = true
				}
			}
		}
	}
	return out, nil
}

// SameShape reports whether two grids have identical dimensions.
func SameShape(a, b interface{ Size() (int, int) }) bool {
	aw, ah := a.Size()
	bw, bh := b.Size()
	return aw == bw && ah == bh
}

// CheckShape returns ErrShapeMismatch when b differs from a.
func CheckShape(what string, a, b interface{ Size() (int, int) }) error {
	if SameShape(a, b) {
		return nil
	}
	aw, ah := a.Size()
	bw, bh := b.Size()
	return shapeErrorf("%s: %dx%d vs %dx%d", what, aw, ah, bw, bh)
}

// IsNoData reports whether v equals the nodata sentinel. NaN is always nodata.
func IsNoData(v, nodata float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return !math.IsNaN(nodata) && v == nodata
}
