package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/gapfill"
	"github.com/hularuns/policy-analysis/internal/metrics"
	"github.com/hularuns/policy-analysis/internal/properties"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
	"github.com/hularuns/policy-analysis/internal/scene"
	"github.com/hularuns/policy-analysis/output"
)

const size = 4

var (
	sceneGT = raster.NorthUp(-2.0, 52.0, 0.01, 0.01)
	bbox    = [4]float64{-2.0, 51.96, -1.96, 52.0}
)

type memStore struct {
	mu       sync.Mutex
	rasters  map[string]*raster.Raster
	writeErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{rasters: map[string]*raster.Raster{}, writeErr: map[string]error{}}
}

func (s *memStore) Read(path string) (*raster.Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rasters[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return r.Clone(), nil
}

func (s *memStore) Write(path string, r *raster.Raster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[path]; err != nil {
		return err
	}
	s.rasters[path] = r.Clone()
	return nil
}

func (s *memStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rasters[path]
	return ok
}

type fakeLoader struct {
	scenes map[string]*scene.Scene
	errs   map[string]error
}

func (l *fakeLoader) Load(_ context.Context, path string, _ scene.Profile) (*scene.Scene, error) {
	if err := l.errs[path]; err != nil {
		return nil, err
	}
	s, ok := l.scenes[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return s, nil
}

// storeFiller fills through the store the way the gdal tools fill files.
type storeFiller struct {
	store *memStore
	err   error
}

func (f *storeFiller) FillFile(_ context.Context, in, out string, maxDistance float64, _ int) error {
	if f.err != nil {
		return &raster.ToolError{Tool: "gdal_fillnodata.py", Input: in, Output: out, Err: f.err}
	}
	r, err := f.store.Read(in)
	if err != nil {
		return err
	}
	filled, err := gapfill.Fill(r, maxDistance, 0)
	if err != nil {
		return err
	}
	return f.store.Write(out, filled)
}

// sentinelScene has reflectances giving a uniform NDVI and marks as cloud
// every pixel for which cloudy returns true.
func sentinelScene(year int, nir float64, cloudy func(x, y int) bool) *scene.Scene {
	scl := raster.FilledBand(size, size, 4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if cloudy(x, y) {
				scl[y][x] = 9
			}
		}
	}
	return &scene.Scene{
		Sensor:       scene.Sentinel2,
		NoData:       raster.DefaultNoData,
		Acquired:     time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC),
		GeoTransform: sceneGT,
		CRS:          "EPSG:4326",
		Bands: map[string]raster.Band{
			"B8":  raster.FilledBand(size, size, nir),
			"B4":  raster.FilledBand(size, size, 0.1),
			"SCL": scl,
		},
	}
}

type PipelineSuite struct {
	suite.Suite
	cfg     properties.Config
	store   *memStore
	loader  *fakeLoader
	metrics *metrics.Metrics
	region  *roi.Region
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.cfg = properties.Config{
		RootPath:        s.T().TempDir(),
		Region:          "oxford",
		Sensor:          "SENTINEL2",
		TargetCRS:       "EPSG:3857",
		ROIBBox:         bbox,
		MaxFillDistance: 3,
		Workers:         2,
		FillMode:        properties.FillMemory,
	}
	s.store = newMemStore()
	s.loader = &fakeLoader{scenes: map[string]*scene.Scene{}, errs: map[string]error{}}
	s.metrics = metrics.New()

	var err error
	s.region, err = roi.FromBBox("oxford", bbox, crs.WGS84)
	s.Require().NoError(err)
}

func (s *PipelineSuite) newPipeline(opts ...Option) *Pipeline {
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithProgressWriter(io.Discard),
		WithMetrics(s.metrics),
	}, opts...)
	p, err := New(s.cfg, s.region, crs.NewResolver(nil), s.loader, s.store, opts...)
	s.Require().NoError(err)
	return p
}

// checkerboard registers three scenes for year in which every pixel is
// clouded in exactly one of them.
func (s *PipelineSuite) checkerboard(year int) []string {
	var paths []string
	for k := 0; k < 3; k++ {
		path := fmt.Sprintf("scenes/S2_%d06%02d.tif", year, k+1)
		s.loader.scenes[path] = sentinelScene(year, 0.3+0.1*float64(k), func(x, y int) bool {
			return (x+y)%3 == k
		})
		paths = append(paths, path)
	}
	return paths
}

func (s *PipelineSuite) TestCheckerboardYearIsFullyValid() {
	p := s.newPipeline()

	res, err := p.RunYear(context.Background(), 2020, s.checkerboard(2020))
	s.Require().NoError(err)
	s.Equal(Persisted, res.Stage)
	s.True(res.Succeeded())
	s.Equal(3, res.Scenes)

	comp, err := s.store.Read(res.Paths.Composite)
	s.Require().NoError(err)
	s.Equal(size*size, comp.ValidCount(), "every pixel is valid in two of three scenes")
	s.Equal(3, comp.Scenes)
	// pixel (0,0) is clouded in the first scene; the lower middle of
	// NDVI 0.6 and 0.667 is 0.6
	s.InDelta(0.6, comp.Data[0][0], 1e-6)

	s.True(s.store.has(res.Paths.Aligned))
	filled, err := s.store.Read(res.Paths.Filled)
	s.Require().NoError(err)
	s.Equal("EPSG:3857", filled.CRS)
	s.Equal(res.ValidPixels, filled.ValidCount())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.YearOutcome.WithLabelValues("Persisted", "succeeded")))
}

func (s *PipelineSuite) TestZeroScenesIsInsufficientData() {
	p := s.newPipeline()

	res, err := p.RunYear(context.Background(), 2021, nil)
	s.Require().ErrorIs(err, raster.ErrInsufficientData)

	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(Compositing, stageErr.Stage)
	s.Equal(2021, stageErr.Year)
	s.Equal("oxford", stageErr.Region)
	s.Contains(err.Error(), "failed at Compositing")
	s.False(s.store.has(res.Paths.Composite))
}

func (s *PipelineSuite) TestFullyMaskedStackIsAllInvalid() {
	var paths []string
	for k := 0; k < 2; k++ {
		path := fmt.Sprintf("cloudy_%d.tif", k)
		s.loader.scenes[path] = sentinelScene(2020, 0.4, func(int, int) bool { return true })
		paths = append(paths, path)
	}

	_, err := s.newPipeline().RunYear(context.Background(), 2020, paths)
	s.ErrorIs(err, raster.ErrAllInvalidStack)
	s.NotErrorIs(err, raster.ErrInsufficientData)
}

func (s *PipelineSuite) TestLoadFailureStopsAtMasking() {
	paths := s.checkerboard(2020)
	s.loader.errs[paths[1]] = errors.New("corrupt tiff")

	res, err := s.newPipeline().RunYear(context.Background(), 2020, paths)
	s.Require().Error(err)
	s.Equal(Masking, res.Stage)
	s.Contains(err.Error(), "corrupt tiff")
	s.False(s.store.has(res.Paths.Composite))
}

func (s *PipelineSuite) TestScenesBelowValidThresholdAreSkipped() {
	s.cfg.MinValidPixels = 10
	paths := s.checkerboard(2020)
	s.loader.scenes["mostly_cloud.tif"] = sentinelScene(2020, 0.9, func(x, y int) bool { return y > 0 })
	paths = append(paths, "mostly_cloud.tif")

	res, err := s.newPipeline().RunYear(context.Background(), 2020, paths)
	s.Require().NoError(err)
	s.Equal(3, res.Scenes)
	s.Equal(1, res.Skipped)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Scenes.WithLabelValues("skipped")))
}

func (s *PipelineSuite) TestBatchContinuesAfterBadYear() {
	p := s.newPipeline()
	batch := p.RunBatch(context.Background(), map[int][]string{
		2019: nil,
		2020: s.checkerboard(2020),
		2021: s.checkerboard(2021),
	})

	s.Require().Len(batch.Results, 3)
	s.Equal([]int{2019, 2020, 2021}, []int{batch.Results[0].Year, batch.Results[1].Year, batch.Results[2].Year})
	s.ErrorIs(batch.Results[0].Err, raster.ErrInsufficientData)
	s.True(batch.Results[1].Succeeded())
	s.True(batch.Results[2].Succeeded())
	s.Len(batch.Failed(), 1)

	rows, err := output.ReadManifest(batch.Manifest)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal("failed", rows[0].Status)
	s.Equal("Compositing", rows[0].Stage)
	s.Equal("succeeded", rows[1].Status)
	s.Equal(batch.RunID, rows[2].RunID)
	s.Equal(OutputPaths(s.cfg, 2021).Filled, rows[2].Output)
}

func (s *PipelineSuite) TestFileFillerFailureIsToolError() {
	s.cfg.FillMode = properties.FillExec
	p := s.newPipeline(WithFiller(&storeFiller{store: s.store, err: errors.New("exit status 1")}))

	res, err := p.RunYear(context.Background(), 2020, s.checkerboard(2020))
	s.Require().ErrorIs(err, raster.ErrExternalToolFailure)
	s.Equal(GapFilling, res.Stage)
	s.Contains(err.Error(), res.Paths.Aligned)
	s.True(s.store.has(res.Paths.Aligned))
	s.False(s.store.has(res.Paths.Filled))
}

func (s *PipelineSuite) TestFileFiller() {
	s.cfg.FillMode = properties.FillExec
	p := s.newPipeline(WithFiller(&storeFiller{store: s.store}), WithLoadConcurrency(1))

	res, err := p.RunYear(context.Background(), 2020, s.checkerboard(2020))
	s.Require().NoError(err)
	s.True(s.store.has(res.Paths.Filled))
	s.GreaterOrEqual(res.FilledPixels, 0)
}

func (s *PipelineSuite) TestFileFillerNeverPublishesUnclippedRaster() {
	s.cfg.FillMode = properties.FillExec
	p := s.newPipeline(WithFiller(&storeFiller{store: s.store}))
	paths := OutputPaths(s.cfg, 2020)
	s.store.writeErr[paths.Filled] = errors.New("disk full")

	res, err := p.RunYear(context.Background(), 2020, s.checkerboard(2020))
	s.Require().Error(err)
	s.Equal(GapFilling, res.Stage)
	s.False(s.store.has(paths.Filled))
}

func (s *PipelineSuite) TestRunFromComposite() {
	comp := &raster.Raster{
		Data:         raster.FilledBand(size, size, 0.42),
		NoData:       raster.DefaultNoData,
		GeoTransform: sceneGT,
		CRS:          "EPSG:4326",
	}
	comp.Data[1][1] = raster.DefaultNoData
	s.Require().NoError(s.store.Write("downloads/job-1.tif", comp))

	res, err := s.newPipeline().RunFromComposite(context.Background(), 2018, "downloads/job-1.tif")
	s.Require().NoError(err)
	s.Equal(Persisted, res.Stage)

	persisted, err := s.store.Read(res.Paths.Composite)
	s.Require().NoError(err)
	s.Equal(2018, persisted.Year)

	filled, err := s.store.Read(res.Paths.Filled)
	s.Require().NoError(err)
	lo, hi, _, ok := filled.Stats()
	s.True(ok)
	s.InDelta(0.42, lo, 1e-12)
	s.InDelta(0.42, hi, 1e-12)
}

func (s *PipelineSuite) TestRunFromMissingCompositeFailsCollecting() {
	res, err := s.newPipeline().RunFromComposite(context.Background(), 2018, "nowhere.tif")
	s.Require().ErrorIs(err, os.ErrNotExist)
	s.Equal(Collecting, res.Stage)
}

func (s *PipelineSuite) TestNewRejectsBadSetup() {
	resolver := crs.NewResolver(nil)

	cfg := s.cfg
	cfg.TargetCRS = "EPSG:27700"
	_, err := New(cfg, s.region, resolver, s.loader, s.store)
	s.ErrorIs(err, raster.ErrCRSResolution)

	cfg = s.cfg
	cfg.FillMode = properties.FillGDAL
	_, err = New(cfg, s.region, resolver, s.loader, s.store)
	s.Error(err)

	_, err = New(s.cfg, &roi.Region{CRS: crs.WGS84}, resolver, s.loader, s.store)
	s.ErrorIs(err, raster.ErrEmptyClipRegion)

	cfg = s.cfg
	cfg.Sensor = "MODIS"
	_, err = New(cfg, s.region, resolver, s.loader, s.store)
	s.Error(err)
}

func TestStageTransitionsAreOneWay(t *testing.T) {
	allowed := map[[2]Stage]bool{
		{Collecting, Masking}:   true,
		{Collecting, Aligning}:  true,
		{Masking, Compositing}:  true,
		{Compositing, Aligning}: true,
		{Aligning, GapFilling}:  true,
		{GapFilling, Persisted}: true,
	}
	for from := Collecting; from <= Persisted; from++ {
		for to := Collecting; to <= Persisted; to++ {
			if got := isAllowedTransition(from, to); got != allowed[[2]Stage{from, to}] {
				t.Errorf("%s -> %s: allowed=%v", from, to, got)
			}
		}
	}
	if got := Stage(42).String(); got != "Stage(42)" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestOutputPathsAreDisjoint(t *testing.T) {
	cfg := properties.Config{RootPath: "/data", Region: "oxford", Sensor: "SENTINEL2"}
	a, b := OutputPaths(cfg, 2020), OutputPaths(cfg, 2021)
	if a.Composite == b.Composite || a.Aligned == b.Aligned || a.Filled == b.Filled || a.Unclipped == b.Unclipped {
		t.Fatalf("paths collide: %+v %+v", a, b)
	}
	if a.Filled != "/data/oxford/sentinel2/filled/ndvi_filled_2020.tif" {
		t.Errorf("unexpected filled path %s", a.Filled)
	}
	if a.Unclipped == a.Filled {
		t.Error("scratch fill output shares the canonical path")
	}
	other := cfg
	other.Region = "cotswolds"
	if OutputPaths(other, 2020).Composite == a.Composite {
		t.Error("regions share a composite path")
	}
}
