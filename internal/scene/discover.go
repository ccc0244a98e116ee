package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var datePattern = regexp.MustCompile(`(\d{4})-?(\d{2})-?(\d{2})`)

// DateFromName extracts the acquisition date embedded in a scene file name,
// accepting both 2006-01-02 and 20060102 forms.
func DateFromName(name string) (time.Time, bool) {
	for _, m := range datePattern.FindAllStringSubmatch(filepath.Base(name), -1) {
		date, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
		if err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}

// Discover walks dir and groups GeoTIFF scene files by acquisition year.
// Files without a parseable date are skipped and returned separately.
func Discover(dir string) (map[int][]string, []string, error) {
	byYear := make(map[int][]string)
	var undated []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".tif" && ext != ".tiff" {
			return nil
		}
		date, ok := DateFromName(path)
		if !ok {
			undated = append(undated, path)
			return nil
		}
		byYear[date.Year()] = append(byYear[date.Year()], path)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover scenes in %s: %w", dir, err)
	}

	for year := range byYear {
		sort.Strings(byYear[year])
	}
	return byYear, undated, nil
}
