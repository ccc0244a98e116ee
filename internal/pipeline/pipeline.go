// Package pipeline runs the per-year composite, align and fill sequence and
// batches it across years.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hularuns/policy-analysis/internal/align"
	"github.com/hularuns/policy-analysis/internal/composite"
	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/gapfill"
	"github.com/hularuns/policy-analysis/internal/index"
	"github.com/hularuns/policy-analysis/internal/metrics"
	"github.com/hularuns/policy-analysis/internal/notification"
	"github.com/hularuns/policy-analysis/internal/properties"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
	"github.com/hularuns/policy-analysis/internal/scene"
	"github.com/hularuns/policy-analysis/output"
)

// SceneLoader reads one scene file.
type SceneLoader interface {
	Load(ctx context.Context, path string, profile scene.Profile) (*scene.Scene, error)
}

// Store persists rasters. Write must never leave a partial file at path.
type Store interface {
	Read(path string) (*raster.Raster, error)
	Write(path string, r *raster.Raster) error
}

type Pipeline struct {
	cfg        properties.Config
	profile    scene.Profile
	loader     SceneLoader
	store      Store
	aligner    *align.Aligner
	clipRegion *roi.Region
	target     crs.CRS

	filler      gapfill.Filler
	metrics     *metrics.Metrics
	notifier    *notification.Discord
	logger      *slog.Logger
	progress    io.Writer
	loadWorkers int
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithNotifier(n *notification.Discord) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithFiller sets the file based filler used when the fill mode is not
// "memory".
func WithFiller(f gapfill.Filler) Option {
	return func(p *Pipeline) { p.filler = f }
}

func WithProgressWriter(w io.Writer) Option {
	return func(p *Pipeline) { p.progress = w }
}

// WithLoadConcurrency bounds how many scenes of one year load at once.
func WithLoadConcurrency(n int) Option {
	return func(p *Pipeline) { p.loadWorkers = max(n, 1) }
}

// New prepares a pipeline for one region. The region is reprojected into
// the target system once, up front.
func New(cfg properties.Config, region *roi.Region, resolver crs.Resolver, loader SceneLoader, store Store, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profile, err := scene.ProfileFor(scene.Sensor(cfg.Sensor))
	if err != nil {
		return nil, err
	}
	if region.Empty() {
		return nil, fmt.Errorf("%w: region %q", raster.ErrEmptyClipRegion, cfg.Region)
	}
	target, err := resolver.Resolve(cfg.TargetCRS)
	if err != nil {
		return nil, fmt.Errorf("target crs: %w", err)
	}

	p := &Pipeline{
		cfg:         cfg,
		profile:     profile,
		loader:      loader,
		store:       store,
		target:      target,
		logger:      slog.Default(),
		progress:    os.Stderr,
		loadWorkers: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.aligner = align.New(resolver, align.WithLogger(p.logger))

	if cfg.FillMode != properties.FillMemory && p.filler == nil {
		return nil, fmt.Errorf("fill mode %q needs a filler", cfg.FillMode)
	}

	p.clipRegion = region
	if !region.CRS.Equal(target) {
		proj, err := resolver.Projection(region.CRS, target)
		if err != nil {
			return nil, err
		}
		defer proj.Close()
		if p.clipRegion, err = region.Reproject(proj, target); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Result describes how far one year got.
type Result struct {
	Year         int
	Region       string
	Stage        Stage
	Paths        Paths
	Scenes       int
	Skipped      int
	ValidPixels  int
	FilledPixels int
	Duration     time.Duration
	Err          error
}

func (r Result) Succeeded() bool {
	return r.Err == nil && r.Stage == Persisted
}

// run tracks the state of one year.
type run struct {
	p          *Pipeline
	result     *Result
	logger     *slog.Logger
	start      time.Time
	stageStart time.Time
}

func (p *Pipeline) newRun(year int) *run {
	now := time.Now()
	return &run{
		p: p,
		result: &Result{
			Year:   year,
			Region: p.cfg.Region,
			Stage:  Collecting,
			Paths:  OutputPaths(p.cfg, year),
		},
		logger:     p.logger.With("year", year, "region", p.cfg.Region, "sensor", p.cfg.Sensor),
		start:      now,
		stageStart: now,
	}
}

func (r *run) advance(to Stage) error {
	from := r.result.Stage
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed stage transition %s -> %s", from, to)
	}
	now := time.Now()
	r.p.metrics.ObserveStage(from.String(), now.Sub(r.stageStart))
	r.result.Stage = to
	r.stageStart = now
	r.logger.Debug("stage entered", "stage", to.String())
	return nil
}

func (r *run) fail(err error) (*Result, error) {
	r.result.Duration = time.Since(r.start)
	r.result.Err = &StageError{Stage: r.result.Stage, Year: r.result.Year, Region: r.result.Region, Err: err}
	r.p.metrics.IncrementYear(r.result.Stage.String(), "failed")
	r.logger.Error("year failed", "stage", r.result.Stage.String(), "error", err)
	return r.result, r.result.Err
}

// RunYear composites the scenes of one year, aligns the composite, fills its
// gaps and persists every intermediate artifact.
func (p *Pipeline) RunYear(ctx context.Context, year int, scenePaths []string) (*Result, error) {
	r := p.newRun(year)

	paths := p.collect(r, scenePaths)
	if err := r.advance(Masking); err != nil {
		return r.fail(err)
	}

	builder := composite.NewBuilder(year, composite.WithLogger(r.logger))
	if err := p.accumulate(ctx, r, builder, paths); err != nil {
		return r.fail(err)
	}

	if err := r.advance(Compositing); err != nil {
		return r.fail(err)
	}
	comp, err := builder.Build()
	if err != nil {
		return r.fail(err)
	}
	if err := p.store.Write(r.result.Paths.Composite, comp); err != nil {
		return r.fail(err)
	}
	r.logger.Info("composite written", "path", r.result.Paths.Composite, "scenes", comp.Scenes)

	if err := r.advance(Aligning); err != nil {
		return r.fail(err)
	}
	return p.alignAndFill(ctx, r, comp)
}

// RunFromComposite picks up a composite built elsewhere, such as by the
// remote compute service, and aligns and fills it.
func (p *Pipeline) RunFromComposite(ctx context.Context, year int, compositePath string) (*Result, error) {
	r := p.newRun(year)

	comp, err := p.store.Read(compositePath)
	if err != nil {
		return r.fail(fmt.Errorf("failed to read composite: %w", err))
	}
	comp.Year = year
	if compositePath != r.result.Paths.Composite {
		if err := p.store.Write(r.result.Paths.Composite, comp); err != nil {
			return r.fail(err)
		}
	}

	if err := r.advance(Aligning); err != nil {
		return r.fail(err)
	}
	return p.alignAndFill(ctx, r, comp)
}

func (p *Pipeline) collect(r *run, scenePaths []string) []string {
	seen := make(map[string]bool, len(scenePaths))
	var paths []string
	for _, path := range scenePaths {
		if seen[path] {
			continue
		}
		seen[path] = true
		if date, ok := scene.DateFromName(path); ok && date.Year() != r.result.Year {
			r.logger.Warn("scene acquired outside the composite year", "path", path, "acquired", date.Format(time.DateOnly))
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	r.logger.Info("scenes collected", "count", len(paths))
	return paths
}

// accumulate loads, masks and folds scenes into builder with bounded
// concurrency. Scenes below the valid pixel threshold are skipped.
func (p *Pipeline) accumulate(ctx context.Context, r *run, builder *composite.Builder, paths []string) error {
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionSetDescription(fmt.Sprintf("Compositing %d", r.result.Year)),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	var skipped atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.loadWorkers)
	for _, path := range paths {
		g.Go(func() error {
			defer bar.Add(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := p.loader.Load(gctx, path, p.profile)
			if err != nil {
				return fmt.Errorf("failed to load scene %s: %w", path, err)
			}
			band, err := index.NDVI(s, p.profile)
			if err != nil {
				return fmt.Errorf("scene %s: %w", path, err)
			}
			if valid := band.ValidCount(); valid < p.cfg.MinValidPixels {
				r.logger.Info("scene skipped", "path", path, "valid_pixels", valid, "min_valid_pixels", p.cfg.MinValidPixels)
				skipped.Add(1)
				return nil
			}
			return builder.Add(band)
		})
	}
	err := g.Wait()

	r.result.Skipped = int(skipped.Load())
	r.result.Scenes = builder.Scenes()
	p.metrics.AddScenes("used", r.result.Scenes)
	p.metrics.AddScenes("skipped", r.result.Skipped)
	return err
}

func (p *Pipeline) alignAndFill(ctx context.Context, r *run, comp *raster.Raster) (*Result, error) {
	reprojected, err := p.aligner.Reproject(comp, p.target.String())
	if err != nil {
		return r.fail(err)
	}
	aligned, err := align.Clip(reprojected, p.clipRegion)
	if err != nil {
		return r.fail(err)
	}
	if err := p.store.Write(r.result.Paths.Aligned, aligned); err != nil {
		return r.fail(err)
	}
	r.logger.Info("composite aligned", "path", r.result.Paths.Aligned, "crs", aligned.CRS,
		"width", aligned.Width(), "height", aligned.Height())

	if err := r.advance(GapFilling); err != nil {
		return r.fail(err)
	}
	filled, err := p.fill(ctx, r, aligned)
	if err != nil {
		return r.fail(err)
	}

	r.result.ValidPixels = filled.ValidCount()
	r.result.FilledPixels = r.result.ValidPixels - aligned.ValidCount()
	p.metrics.AddFilled(r.result.FilledPixels)
	if p.cfg.Preview {
		if err := output.WritePreview(r.result.Paths.Preview, filled); err != nil {
			r.logger.Warn("failed to write preview", "error", err)
		}
	}

	if err := r.advance(Persisted); err != nil {
		return r.fail(err)
	}
	r.result.Duration = time.Since(r.start)
	p.metrics.IncrementYear(Persisted.String(), "succeeded")
	r.logger.Info("year persisted", "path", r.result.Paths.Filled,
		"filled_pixels", r.result.FilledPixels, "duration", r.result.Duration.Round(time.Millisecond))
	return r.result, nil
}

// fill interpolates the aligned raster and clips the result back to the
// region so filling never spills outside it. Only the clipped raster is
// written to the canonical filled path.
func (p *Pipeline) fill(ctx context.Context, r *run, aligned *raster.Raster) (*raster.Raster, error) {
	var filled *raster.Raster
	var err error
	if p.cfg.FillMode == properties.FillMemory {
		filled, err = gapfill.Fill(aligned, p.cfg.MaxFillDistance, p.cfg.SmoothingIterations)
	} else {
		scratch := r.result.Paths.Unclipped
		defer os.Remove(scratch)
		if err = p.filler.FillFile(ctx, r.result.Paths.Aligned, scratch, p.cfg.MaxFillDistance, 1); err != nil {
			return nil, err
		}
		filled, err = p.store.Read(scratch)
	}
	if err != nil {
		return nil, err
	}

	if filled, err = align.Clip(filled, p.clipRegion); err != nil {
		return nil, err
	}
	filled.Year, filled.Scenes = aligned.Year, aligned.Scenes
	if err := p.store.Write(r.result.Paths.Filled, filled); err != nil {
		return nil, err
	}
	return filled, nil
}
