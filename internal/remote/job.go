// Package remote talks to the compute service that builds composites
// server side. Jobs are submitted, polled until they reach a terminal state
// and their artifact downloaded.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
	"github.com/hularuns/policy-analysis/internal/roi"
	"github.com/hularuns/policy-analysis/internal/scene"
)

type State string

const (
	Queued    State = "queued"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Request describes one yearly composite to build remotely.
type Request struct {
	Region         string            `json:"region"`
	Geometry       *geojson.Geometry `json:"geometry"`
	Sensor         string            `json:"sensor"`
	Year           int               `json:"year"`
	StartDate      string            `json:"start_date"`
	EndDate        string            `json:"end_date"`
	CloudThreshold float64           `json:"cloud_threshold"`
	Scale          float64           `json:"scale"`
	NoData         float64           `json:"nodata"`
}

// NewRequest covers the whole calendar year. GeoJSON is always WGS84, so
// the region is reprojected first when it is held in another system.
func NewRequest(region *roi.Region, resolver crs.Resolver, profile scene.Profile, year int, cloudThreshold float64) (Request, error) {
	if region.Empty() {
		return Request{}, fmt.Errorf("%w: region %q", raster.ErrEmptyClipRegion, region.Name)
	}
	if !region.CRS.Equal(crs.WGS84) {
		proj, err := resolver.Projection(region.CRS, crs.WGS84)
		if err != nil {
			return Request{}, err
		}
		defer proj.Close()
		if region, err = region.Reproject(proj, crs.WGS84); err != nil {
			return Request{}, err
		}
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	return Request{
		Region:         region.Name,
		Geometry:       geojson.NewGeometry(region.Polygons),
		Sensor:         string(profile.Sensor()),
		Year:           year,
		StartDate:      start.Format(time.DateOnly),
		EndDate:        end.Format(time.DateOnly),
		CloudThreshold: cloudThreshold,
		Scale:          profile.Scale(),
		NoData:         raster.DefaultNoData,
	}, nil
}

type Job struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Artifact string `json:"artifact,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Service is the part of the compute service Wait needs.
type Service interface {
	Status(ctx context.Context, id string) (Job, error)
}

// Wait polls the job every interval until it reaches a terminal state.
// Non-terminal states keep the poll going until ctx is done. A failed job
// and an unrecognised state both surface as external tool failures.
func Wait(ctx context.Context, svc Service, id string, interval time.Duration) (Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := svc.Status(ctx, id)
		if err != nil {
			return job, &raster.ToolError{Tool: "remote compute", Input: id, Err: err}
		}
		switch job.State {
		case Succeeded:
			if job.Artifact == "" {
				return job, &raster.ToolError{Tool: "remote compute", Input: id, Err: fmt.Errorf("job succeeded without an artifact")}
			}
			return job, nil
		case Failed:
			return job, &raster.ToolError{Tool: "remote compute", Input: id, Err: fmt.Errorf("job failed: %s", job.Message)}
		case Queued, Running:
		default:
			return job, fmt.Errorf("%w: job %s reported unknown state %q", raster.ErrExternalToolFailure, id, job.State)
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
