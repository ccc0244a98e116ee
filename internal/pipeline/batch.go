package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"

	"github.com/hularuns/policy-analysis/internal/utils"
	"github.com/hularuns/policy-analysis/output"
)

// Batch is the outcome of running many years.
type Batch struct {
	RunID    string
	Results  []Result
	Manifest string
}

func (b *Batch) Failed() []Result {
	var failed []Result
	for _, r := range b.Results {
		if !r.Succeeded() {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunBatch runs every year on a worker pool. A failing year is logged,
// notified and recorded; the others carry on.
func (p *Pipeline) RunBatch(ctx context.Context, scenes map[int][]string) *Batch {
	return p.batch(ctx, utils.GetSortedKeys(scenes, true), func(year int) (*Result, error) {
		return p.RunYear(ctx, year, scenes[year])
	})
}

// RunBatchFromComposites is RunBatch for composites built elsewhere.
func (p *Pipeline) RunBatchFromComposites(ctx context.Context, composites map[int]string) *Batch {
	return p.batch(ctx, utils.GetSortedKeys(composites, true), func(year int) (*Result, error) {
		return p.RunFromComposite(ctx, year, composites[year])
	})
}

func (p *Pipeline) batch(ctx context.Context, years []int, runYear func(int) (*Result, error)) *Batch {
	b := &Batch{RunID: uuid.NewString()}
	logger := p.logger.With("run", b.RunID, "region", p.cfg.Region)
	logger.Info("batch started", "years", len(years), "workers", p.cfg.Workers)

	var mu sync.Mutex
	wp := workerpool.New(p.cfg.Workers)
	for _, year := range years {
		wp.Submit(func() {
			res, err := runYear(year)
			if err != nil {
				logger.Warn("skipping failed year", "year", year, "error", err)
				if nerr := p.notifier.SendError(ctx, err.Error()); nerr != nil {
					logger.Warn("failed to send notification", "error", nerr)
				}
			}
			mu.Lock()
			b.Results = append(b.Results, *res)
			mu.Unlock()
		})
	}
	wp.StopWait()

	sort.Slice(b.Results, func(i, j int) bool { return b.Results[i].Year < b.Results[j].Year })
	p.finish(ctx, b)
	return b
}

func (p *Pipeline) finish(ctx context.Context, b *Batch) {
	logger := p.logger.With("run", b.RunID, "region", p.cfg.Region)

	rows := make([]output.ManifestRow, 0, len(b.Results))
	for _, r := range b.Results {
		row := output.ManifestRow{
			RunID:           b.RunID,
			Year:            r.Year,
			Region:          r.Region,
			Sensor:          p.cfg.Sensor,
			Stage:           r.Stage.String(),
			Status:          "succeeded",
			Scenes:          r.Scenes,
			SkippedScenes:   r.Skipped,
			ValidPixels:     r.ValidPixels,
			FilledPixels:    r.FilledPixels,
			DurationSeconds: r.Duration.Seconds(),
			Output:          r.Paths.Filled,
		}
		if r.Err != nil {
			row.Status = "failed"
			row.Output = ""
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}

	path := ManifestPath(p.cfg, b.RunID)
	if err := output.WriteManifest(path, rows); err != nil {
		logger.Error("failed to write manifest", "error", err)
	} else {
		b.Manifest = path
	}
	if err := p.metrics.WriteTextfile(p.cfg.MetricsTextfile); err != nil {
		logger.Error("failed to write metrics", "error", err)
	}

	failed := len(b.Failed())
	logger.Info("batch finished", "succeeded", len(b.Results)-failed, "failed", failed, "manifest", b.Manifest)
	if failed < len(b.Results) {
		msg := fmt.Sprintf("%s %s: %d of %d years composited (run %s)",
			p.cfg.Region, p.cfg.Sensor, len(b.Results)-failed, len(b.Results), b.RunID)
		if err := p.notifier.SendSuccess(ctx, msg); err != nil {
			logger.Warn("failed to send notification", "error", err)
		}
	}
}
