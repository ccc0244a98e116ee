package remote

import (
	"context"
	"time"

	"github.com/hularuns/policy-analysis/internal/cache"
)

// Fetcher submits a composite request, waits for it and downloads the
// artifact. Submitted job handles are cached so an interrupted run resumes
// polling the same job instead of submitting a new one.
type Fetcher struct {
	Client   *Client
	Jobs     cache.CacheService[Job]
	Interval time.Duration
}

func (f *Fetcher) Fetch(ctx context.Context, req Request, dest string) (Job, error) {
	key := f.Jobs.GenerateKey(req.Region, req.Sensor, req.Year, req.CloudThreshold)

	job, ok := f.Jobs.Get(key)
	if !ok {
		var err error
		if job, err = f.Client.Submit(ctx, req); err != nil {
			return Job{}, err
		}
		if err := f.Jobs.Set(key, job); err != nil {
			f.Client.logger.Warn("failed to cache job handle", "job", job.ID, "error", err)
		}
	} else {
		f.Client.logger.Info("resuming remote job", "job", job.ID, "year", req.Year)
	}

	job, err := Wait(ctx, f.Client, job.ID, f.Interval)
	if err != nil {
		if job.State == Failed {
			_ = f.Jobs.Delete(key)
		}
		return job, err
	}
	if err := f.Client.Download(ctx, job, dest); err != nil {
		return job, err
	}
	return job, f.Jobs.Delete(key)
}
