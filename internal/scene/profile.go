package scene

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hularuns/policy-analysis/internal/raster"
)

type Sensor string

const (
	Sentinel2 Sensor = "SENTINEL2"
	Landsat7  Sensor = "LANDSAT7"
	Landsat8  Sensor = "LANDSAT8"
)

// Profile holds the validity rules and band layout for one sensor.
type Profile interface {
	Sensor() Sensor
	NIR() string
	Red() string
	QA() string
	// BandOrder is the positional layout of exported scene files.
	BandOrder() []string
	// Scale is the nominal ground resolution in metres.
	Scale() float64
	// Mask returns true for every pixel that must not contribute.
	Mask(s *Scene) (raster.Mask, error)
}

var profiles = map[Sensor]Profile{
	Sentinel2: classProfile{
		bands:   bandSet{sensor: Sentinel2, nir: "B8", red: "B4", qa: "SCL", scale: 10},
		invalid: map[int]string{0: "no data", 3: "cloud shadow", 9: "cloud high probability", 10: "thin cirrus"},
	},
	Landsat7: bitmaskProfile{
		bands: bandSet{sensor: Landsat7, nir: "B4", red: "B3", qa: "QA_PIXEL", scale: 30},
		bits:  map[uint]string{0: "fill", 3: "cloud", 4: "cloud shadow"},
	},
	Landsat8: bitmaskProfile{
		bands: bandSet{sensor: Landsat8, nir: "B5", red: "B4", qa: "QA_PIXEL", scale: 30},
		bits:  map[uint]string{0: "fill", 3: "cloud", 4: "cloud shadow"},
	},
}

// ProfileFor returns the masking profile registered for sensor.
func ProfileFor(sensor Sensor) (Profile, error) {
	p, ok := profiles[Sensor(strings.ToUpper(string(sensor)))]
	if !ok {
		return nil, fmt.Errorf("unknown sensor %q, expected one of %v", sensor, Sensors())
	}
	return p, nil
}

// Sensors lists the sensors with a registered profile.
func Sensors() []Sensor {
	out := make([]Sensor, 0, len(profiles))
	for s := range profiles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type bandSet struct {
	sensor       Sensor
	nir, red, qa string
	scale        float64
}

func (b bandSet) Sensor() Sensor      { return b.sensor }
func (b bandSet) NIR() string         { return b.nir }
func (b bandSet) Red() string         { return b.red }
func (b bandSet) QA() string          { return b.qa }
func (b bandSet) Scale() float64      { return b.scale }
func (b bandSet) BandOrder() []string { return []string{b.nir, b.red, b.qa} }

// baseMask flags pixels where the reflectance bands carry no data
// (e.g. Landsat 7 SLC-off scan gaps) and returns the QA band.
func (b bandSet) baseMask(s *Scene) (raster.Mask, raster.Band, error) {
	if _, _, err := s.Size(); err != nil {
		return nil, nil, err
	}
	nir, err := s.Band(b.nir)
	if err != nil {
		return nil, nil, err
	}
	red, err := s.Band(b.red)
	if err != nil {
		return nil, nil, err
	}
	qa, err := s.Band(b.qa)
	if err != nil {
		return nil, nil, err
	}

	w, h := nir.Size()
	mask := raster.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if s.NoDataAt(nir, x, y) || s.NoDataAt(red, x, y) || s.NoDataAt(qa, x, y) || qa[y][x] < 0 {
				mask[y][x] = true
			}
		}
	}
	return mask, qa, nil
}

// classProfile masks categorical scene classification codes.
type classProfile struct {
	bands   bandSet
	invalid map[int]string
}

func (p classProfile) Sensor() Sensor      { return p.bands.Sensor() }
func (p classProfile) NIR() string         { return p.bands.NIR() }
func (p classProfile) Red() string         { return p.bands.Red() }
func (p classProfile) QA() string          { return p.bands.QA() }
func (p classProfile) Scale() float64      { return p.bands.Scale() }
func (p classProfile) BandOrder() []string { return p.bands.BandOrder() }

func (p classProfile) Mask(s *Scene) (raster.Mask, error) {
	mask, qa, err := p.bands.baseMask(s)
	if err != nil {
		return nil, err
	}
	for y := range qa {
		for x, v := range qa[y] {
			if mask[y][x] {
				continue
			}
			if _, bad := p.invalid[int(v)]; bad {
				mask[y][x] = true
			}
		}
	}
	return mask, nil
}

// bitmaskProfile masks pixels whose QA word has any of the flagged bits set.
type bitmaskProfile struct {
	bands bandSet
	bits  map[uint]string
}

func (p bitmaskProfile) Sensor() Sensor      { return p.bands.Sensor() }
func (p bitmaskProfile) NIR() string         { return p.bands.NIR() }
func (p bitmaskProfile) Red() string         { return p.bands.Red() }
func (p bitmaskProfile) QA() string          { return p.bands.QA() }
func (p bitmaskProfile) Scale() float64      { return p.bands.Scale() }
func (p bitmaskProfile) BandOrder() []string { return p.bands.BandOrder() }

func (p bitmaskProfile) Mask(s *Scene) (raster.Mask, error) {
	mask, qa, err := p.bands.baseMask(s)
	if err != nil {
		return nil, err
	}
	var flags uint64
	for bit := range p.bits {
		flags |= 1 << bit
	}
	for y := range qa {
		for x, v := range qa[y] {
			if mask[y][x] {
				continue
			}
			if uint64(v)&flags != 0 {
				mask[y][x] = true
			}
		}
	}
	return mask, nil
}
