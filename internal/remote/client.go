package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/hularuns/policy-analysis/internal/raster"
)

var errUnauthorized = errors.New("unauthorized access, check your client ID and secret")

// Client calls the compute service. With several client credentials
// configured it moves on to the next pair whenever the service rejects the
// current one.
type Client struct {
	baseURL *url.URL
	logger  *slog.Logger

	mu      sync.Mutex
	clients []*http.Client
	current int
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(baseURL, tokenURL string, clientIDs, clientSecrets []string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid compute service url %q", baseURL)
	}
	if len(clientIDs) != len(clientSecrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	if len(clientIDs) > 0 && tokenURL == "" {
		return nil, fmt.Errorf("client credentials given without a token url")
	}

	c := &Client{baseURL: u, logger: slog.Default()}
	for i, id := range clientIDs {
		config := &clientcredentials.Config{
			ClientID:     id,
			ClientSecret: clientSecrets[i],
			TokenURL:     tokenURL,
		}
		c.clients = append(c.clients, config.Client(context.Background()))
	}
	if len(c.clients) == 0 {
		c.clients = []*http.Client{http.DefaultClient}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Submit(ctx context.Context, req Request) (Job, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Job{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	var job Job
	if err := c.doJSON(ctx, http.MethodPost, "jobs", body, &job); err != nil {
		return Job{}, fmt.Errorf("failed to submit %s composite for %d: %w", req.Sensor, req.Year, err)
	}
	if job.ID == "" {
		return Job{}, fmt.Errorf("compute service returned a job without an id")
	}
	c.logger.Info("remote job submitted", "job", job.ID, "year", req.Year, "region", req.Region)
	return job, nil
}

func (c *Client) Status(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return Job{}, err
	}
	c.logger.Debug("remote job polled", "job", id, "state", job.State)
	return job, nil
}

// Download streams the artifact of a succeeded job to dest atomically.
func (c *Client) Download(ctx context.Context, job Job, dest string) error {
	if job.State != Succeeded || job.Artifact == "" {
		return fmt.Errorf("job %s has no artifact to download (state %q)", job.ID, job.State)
	}
	resp, err := c.do(ctx, http.MethodGet, job.Artifact, nil)
	if err != nil {
		return &raster.ToolError{Tool: "remote compute", Input: job.Artifact, Output: dest, Err: err}
	}
	defer resp.Body.Close()

	return raster.WriteAtomic(dest, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			return &raster.ToolError{Tool: "remote compute", Input: job.Artifact, Output: dest, Err: err}
		}
		return f.Close()
	})
}

func (c *Client) doJSON(ctx context.Context, method, ref string, body []byte, out any) error {
	resp, err := c.do(ctx, method, ref, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends the request and returns a response with a 2xx status.
func (c *Client) do(ctx context.Context, method, ref string, body []byte) (*http.Response, error) {
	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.clients); i++ {
		idx := (start + i) % len(c.clients)
		req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.clients[idx].Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.mu.Lock()
			c.current = idx
			c.mu.Unlock()
			return resp, nil
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.logger.Warn("compute service rejected credentials", "credential", idx, "status", resp.StatusCode)
			lastErr = errUnauthorized
			continue
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, target.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil, lastErr
}

// resolve accepts absolute urls, host relative paths and paths relative to
// the service base url.
func (c *Client) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	if u.IsAbs() || strings.HasPrefix(ref, "/") {
		return c.baseURL.ResolveReference(u), nil
	}
	return c.baseURL.JoinPath(ref), nil
}
