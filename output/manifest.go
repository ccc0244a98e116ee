package output

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/hularuns/policy-analysis/internal/raster"
)

// ManifestRow is one year of a batch run.
type ManifestRow struct {
	RunID           string  `csv:"run_id"`
	Year            int     `csv:"year"`
	Region          string  `csv:"region"`
	Sensor          string  `csv:"sensor"`
	Stage           string  `csv:"stage"`
	Status          string  `csv:"status"`
	Scenes          int     `csv:"scenes"`
	SkippedScenes   int     `csv:"skipped_scenes"`
	ValidPixels     int     `csv:"valid_pixels"`
	FilledPixels    int     `csv:"filled_pixels"`
	DurationSeconds float64 `csv:"duration_seconds"`
	Output          string  `csv:"output"`
	Error           string  `csv:"error"`
}

func WriteManifest(path string, rows []ManifestRow) error {
	return raster.WriteAtomic(path, func(tmpPath string) error {
		file, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("failed to create manifest: %w", err)
		}
		if err := gocsv.MarshalFile(&rows, file); err != nil {
			file.Close()
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		return file.Close()
	})
}

func ReadManifest(path string) ([]ManifestRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []ManifestRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return rows, nil
}
