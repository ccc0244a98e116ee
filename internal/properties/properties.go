// Package properties holds the run configuration, read from the environment
// (optionally seeded from a .env file) and threaded explicitly into every
// pipeline stage.
package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hularuns/policy-analysis/internal/roi"
)

const (
	FillMemory = "memory"
	FillGDAL   = "gdal"
	FillExec   = "exec"
)

type Config struct {
	RootPath  string
	Region    string
	Sensor    string
	TargetCRS string

	// ROIBBox is used when ROIPath is empty.
	ROIBBox   [4]float64
	ROIPath   string
	ROIFilter string

	CloudThreshold      float64
	MaxFillDistance     float64
	SmoothingIterations int
	MinValidPixels      int
	Years               []int
	Workers             int
	LoadWorkers         int
	FillMode            string
	FillCommand         string

	ComputeURL           string
	ComputeClientIDs     []string
	ComputeClientSecrets []string
	ComputeTokenURL      string
	PollInterval         time.Duration

	DiscordErrorURL   string
	DiscordSuccessURL string
	MetricsTextfile   string
	Preview           bool
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := Config{
		RootPath:          getenv("ROOT_PATH", "."),
		Region:            getenv("REGION", "default"),
		Sensor:            strings.ToUpper(getenv("SENSOR", "SENTINEL2")),
		TargetCRS:         getenv("TARGET_CRS", "EPSG:27700"),
		ROIPath:           os.Getenv("ROI_PATH"),
		ROIFilter:         os.Getenv("ROI_FILTER"),
		FillMode:          strings.ToLower(getenv("FILL_MODE", FillMemory)),
		FillCommand:       getenv("FILL_COMMAND", "gdal_fillnodata.py"),
		ComputeURL:        os.Getenv("COMPUTE_URL"),
		ComputeTokenURL:   os.Getenv("COMPUTE_TOKEN_URL"),
		DiscordErrorURL:   os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"),
		DiscordSuccessURL: os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL"),
		MetricsTextfile:   os.Getenv("METRICS_TEXTFILE"),
	}
	cfg.ComputeClientIDs = splitList(os.Getenv("COMPUTE_CLIENT_ID"))
	cfg.ComputeClientSecrets = splitList(os.Getenv("COMPUTE_CLIENT_SECRET"))

	var err error
	if cfg.ROIBBox, err = roi.ParseBBox(getenv("ROI_BBOX", "-2.8524,51.7836,-1.5161,52.5075")); err != nil {
		fail("ROI_BBOX", err)
	}
	if cfg.CloudThreshold, err = strconv.ParseFloat(getenv("CLOUD_THRESHOLD", "30"), 64); err != nil {
		fail("CLOUD_THRESHOLD", err)
	}
	if cfg.MaxFillDistance, err = strconv.ParseFloat(getenv("MAX_FILL_DISTANCE", "50"), 64); err != nil {
		fail("MAX_FILL_DISTANCE", err)
	}
	if cfg.SmoothingIterations, err = strconv.Atoi(getenv("SMOOTHING_ITERATIONS", "0")); err != nil {
		fail("SMOOTHING_ITERATIONS", err)
	}
	if cfg.MinValidPixels, err = strconv.Atoi(getenv("MIN_VALID_PIXELS", "0")); err != nil {
		fail("MIN_VALID_PIXELS", err)
	}
	if cfg.Workers, err = strconv.Atoi(getenv("WORKERS", "2")); err != nil {
		fail("WORKERS", err)
	}
	if cfg.LoadWorkers, err = strconv.Atoi(getenv("LOAD_WORKERS", "4")); err != nil {
		fail("LOAD_WORKERS", err)
	}
	if cfg.Years, err = ParseYears(getenv("YEARS", "2005-2023")); err != nil {
		fail("YEARS", err)
	}
	if cfg.PollInterval, err = time.ParseDuration(getenv("POLL_INTERVAL", "10s")); err != nil {
		fail("POLL_INTERVAL", err)
	}
	if cfg.Preview, err = strconv.ParseBool(getenv("PREVIEW", "false")); err != nil {
		fail("PREVIEW", err)
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.RootPath == "":
		return fmt.Errorf("root path must be set")
	case c.Region == "" || strings.ContainsAny(c.Region, `/\`):
		return fmt.Errorf("region %q must be a non-empty name without path separators", c.Region)
	case c.ROIPath == "" && (c.ROIBBox[0] >= c.ROIBBox[2] || c.ROIBBox[1] >= c.ROIBBox[3]):
		return fmt.Errorf("invalid bounding box %v: min must be lower than max", c.ROIBBox)
	case c.MaxFillDistance < 0:
		return fmt.Errorf("max fill distance must not be negative")
	case c.MinValidPixels < 0:
		return fmt.Errorf("min valid pixels must not be negative")
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1")
	case c.LoadWorkers < 0:
		return fmt.Errorf("load workers must not be negative")
	case c.CloudThreshold < 0 || c.CloudThreshold > 100:
		return fmt.Errorf("cloud threshold %v is not a percentage", c.CloudThreshold)
	case len(c.ComputeClientIDs) != len(c.ComputeClientSecrets):
		return fmt.Errorf("mismatched number of client IDs and secrets")
	}
	switch c.FillMode {
	case FillMemory, FillGDAL, FillExec:
	default:
		return fmt.Errorf("unknown fill mode %q", c.FillMode)
	}
	return nil
}

// SensorDir is <root>/<region>/<sensor>, the home of every artifact of a run.
func (c Config) SensorDir() string {
	return filepath.Join(c.RootPath, c.Region, strings.ToLower(c.Sensor))
}

func (c Config) ScenesDir() string {
	return filepath.Join(c.SensorDir(), "scenes")
}

func (c Config) CacheDir() string {
	return filepath.Join(c.RootPath, "data", "cache")
}

// ParseYears accepts comma separated years and inclusive ranges such as
// "2005-2010,2015".
func ParseYears(s string) ([]int, error) {
	seen := map[int]bool{}
	var years []int
	for _, part := range splitList(s) {
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || last < first {
				return nil, fmt.Errorf("invalid year range %q", part)
			}
		}
		for y := first; y <= last; y++ {
			if !seen[y] {
				seen[y] = true
				years = append(years, y)
			}
		}
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("no years given")
	}
	return years, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
