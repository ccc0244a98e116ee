package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/hularuns/policy-analysis/internal/properties"
)

// Paths are the canonical artifact locations of one year. Region and sensor
// are part of every path so concurrent years never collide.
type Paths struct {
	Composite string
	Aligned   string
	Filled    string
	Preview   string
	// Unclipped is scratch space for file based fillers. It never outlives
	// the fill stage.
	Unclipped string
}

func OutputPaths(cfg properties.Config, year int) Paths {
	dir := cfg.SensorDir()
	return Paths{
		Composite: filepath.Join(dir, fmt.Sprintf("median_%d.tif", year)),
		Aligned:   filepath.Join(dir, "aligned", fmt.Sprintf("median_%d_repro.tif", year)),
		Filled:    filepath.Join(dir, "filled", fmt.Sprintf("ndvi_filled_%d.tif", year)),
		Preview:   filepath.Join(dir, "preview", fmt.Sprintf("ndvi_filled_%d.png", year)),
		Unclipped: filepath.Join(dir, "filled", fmt.Sprintf(".ndvi_filled_%d.unclipped.tif", year)),
	}
}

func ManifestPath(cfg properties.Config, runID string) string {
	return filepath.Join(cfg.SensorDir(), fmt.Sprintf("manifest_%s.csv", runID))
}
