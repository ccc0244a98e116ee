package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hularuns/policy-analysis/internal/cache"
	"github.com/hularuns/policy-analysis/internal/gdalio"
	"github.com/hularuns/policy-analysis/internal/metrics"
	"github.com/hularuns/policy-analysis/internal/pipeline"
	"github.com/hularuns/policy-analysis/internal/remote"
	"github.com/hularuns/policy-analysis/internal/scene"
	"github.com/hularuns/policy-analysis/output"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Composite local scene exports year by year, then align and gap fill them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			byYear, undated, err := scene.Discover(a.cfg.ScenesDir())
			if err != nil {
				return err
			}
			for _, path := range undated {
				a.logger.Warn("scene has no acquisition date in its name, ignoring", "path", path)
			}

			scenes := make(map[int][]string, len(a.cfg.Years))
			for _, year := range a.cfg.Years {
				scenes[year] = byYear[year]
			}

			m := metrics.New()
			p, err := a.newPipeline(m)
			if err != nil {
				return err
			}
			return report(p.RunBatch(cmd.Context(), scenes))
		},
	}
}

func newFetchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Request yearly composites from the remote compute service, then align and gap fill them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := remote.NewClient(a.cfg.ComputeURL, a.cfg.ComputeTokenURL,
				a.cfg.ComputeClientIDs, a.cfg.ComputeClientSecrets, remote.WithLogger(a.logger))
			if err != nil {
				return err
			}
			fetcher := &remote.Fetcher{
				Client:   client,
				Jobs:     cache.NewFileCache[remote.Job](a.cfg.CacheDir()),
				Interval: a.cfg.PollInterval,
			}

			region, err := loadRegion(a.cfg)
			if err != nil {
				return err
			}
			profile, err := scene.ProfileFor(scene.Sensor(a.cfg.Sensor))
			if err != nil {
				return err
			}

			resolver := gdalio.NewResolver()
			requests := make(map[int]remote.Request, len(a.cfg.Years))
			for _, year := range a.cfg.Years {
				if requests[year], err = remote.NewRequest(region, resolver, profile, year, a.cfg.CloudThreshold); err != nil {
					return err
				}
			}
			composites := fetchAll(ctx, a, fetcher, requests)

			m := metrics.New()
			p, err := a.newPipeline(m)
			if err != nil {
				return err
			}
			batch := p.RunBatchFromComposites(ctx, composites)
			if missing := len(a.cfg.Years) - len(composites); missing > 0 {
				color.Yellow("%d year(s) could not be fetched", missing)
			}
			return report(batch)
		},
	}
}

// fetchAll downloads one composite per configured year. Years that fail are
// logged and notified, and left out of the result.
func fetchAll(ctx context.Context, a *app, fetcher *remote.Fetcher, requests map[int]remote.Request) map[int]string {
	var mu sync.Mutex
	composites := make(map[int]string, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Workers)
	for year, req := range requests {
		g.Go(func() error {
			dest := pipeline.OutputPaths(a.cfg, year).Composite
			job, err := fetcher.Fetch(ctx, req, dest)
			if err != nil {
				a.logger.Error("failed to fetch composite", "year", year, "job", job.ID, "error", err)
				if nerr := a.notify.SendError(ctx, fmt.Sprintf("fetching %d for %s failed: %v", year, a.cfg.Region, err)); nerr != nil {
					a.logger.Warn("failed to send notification", "error", nerr)
				}
				return nil
			}
			a.logger.Info("composite fetched", "year", year, "job", job.ID, "path", dest)
			mu.Lock()
			composites[year] = dest
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return composites
}

func report(b *pipeline.Batch) error {
	for _, r := range b.Results {
		if r.Succeeded() {
			color.Green("%d  %-10s %s", r.Year, r.Stage, r.Paths.Filled)
			continue
		}
		color.Red("%d  %-10s %v", r.Year, r.Stage, r.Err)
	}
	if b.Manifest != "" {
		fmt.Printf("Manifest written to %s\n", b.Manifest)
	}
	if failed := b.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d years failed", len(failed), len(b.Results))
	}
	return nil
}

func newManifestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <path>",
		Short: "Print a run manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rows, err := output.ReadManifest(args[0])
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				color.Yellow("Manifest %s is empty", args[0])
				return nil
			}
			fmt.Fprintf(os.Stdout, "Run %s, region %s, sensor %s\n", rows[0].RunID, rows[0].Region, rows[0].Sensor)
			for _, r := range rows {
				line := fmt.Sprintf("%d  %-10s %-9s scenes=%d skipped=%d valid=%d filled=%d %.1fs",
					r.Year, r.Stage, r.Status, r.Scenes, r.SkippedScenes, r.ValidPixels, r.FilledPixels, r.DurationSeconds)
				if r.Error != "" {
					color.Red("%s  %s", line, r.Error)
					continue
				}
				color.Green("%s  %s", line, r.Output)
			}
			return nil
		},
	}
}
