// Package hrrr downloads short-range forecast precipitation grids from the
// HRRR conus feed. Unlike the QPE mirrors there is no index page to scrape;
// file names follow directly from the model cycle and forecast hour.
package hrrr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

const (
	// Forecast hours 2 through 12 cover the model's lookahead window; hours
	// 0 and 1 overlap the observed QPE data and are left out.
	firstForecastHour = 2
	lastForecastHour  = 12

	// cycleLag backs off one hour from wall clock time so the fetch targets
	// a cycle the upstream has had time to publish.
	cycleLag = time.Hour

	sourceHRRR = "hrrr"
)

// Client fetches HRRR surface forecast grids over HTTP.
type Client struct {
	baseURL    string
	destRoot   string
	maxRetries int
	retryDelay time.Duration

	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a forecast download client from the service configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URLs.HRRRBase, "/"),
		destRoot:   cfg.Paths.HRRRRoot,
		maxRetries: cfg.Download.MaxRetries,
		retryDelay: cfg.Download.RetryBaseDelay,
		httpClient: &http.Client{
			Timeout: cfg.Download.FileTimeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// FetchLatest downloads the most recent cycle old enough to be published.
func (c *Client) FetchLatest(ctx context.Context) (domain.FetchStats, error) {
	cycle := domain.Now().Add(-cycleLag).Truncate(time.Hour)
	return c.FetchCycle(ctx, cycle)
}

// FetchCycle downloads forecast hours 2 through 12 of one model cycle into
// the dated folder for the cycle's day. Unpublished hours are skipped; the
// pass fails only when not a single grid could be found.
func (c *Client) FetchCycle(ctx context.Context, cycle time.Time) (domain.FetchStats, error) {
	cycle = cycle.UTC()
	day := cycle.Format(domain.RunDateLayout)
	destDir := filepath.Join(c.destRoot, day)

	var res domain.FetchStats
	for fh := firstForecastHour; fh <= lastForecastHour; fh++ {
		name := fmt.Sprintf("hrrr.t%02dz.wrfsfcf%02d.grib2", cycle.Hour(), fh)
		destPath := filepath.Join(destDir, name)

		if _, err := os.Stat(destPath); err == nil {
			res.Skipped++
			continue
		}

		url := fmt.Sprintf("%s/hrrr.%s/conus/%s", c.baseURL, day, name)
		switch err := c.downloadFile(ctx, url, destDir, destPath); {
		case err == nil:
			res.Downloaded++
			c.metrics.FilesDownloaded.WithLabelValues(sourceHRRR).Inc()
		case os.IsNotExist(err):
			res.Missing++
			c.logger.Debug("forecast hour not published", "cycle", day, "file", name)
		default:
			res.Failed++
			c.metrics.DownloadErrors.WithLabelValues(sourceHRRR).Inc()
			c.logger.Warn("forecast download failed", "file", name, "error", err)
		}
	}

	if res.Downloaded == 0 && res.Skipped == 0 {
		return res, fmt.Errorf("cycle %s t%02dz: %w", day, cycle.Hour(), domain.ErrNoInputData)
	}
	c.logger.Info("forecast fetch complete", "cycle", day, "hour", cycle.Hour(),
		"downloaded", res.Downloaded, "skipped", res.Skipped, "missing", res.Missing, "failed", res.Failed)
	return res, nil
}

// downloadFile fetches one grid with retries. A 404 maps to os.ErrNotExist
// so the caller can tell "not published yet" from a real failure, and is
// never retried.
func (c *Client) downloadFile(ctx context.Context, url, destDir, destPath string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay << (attempt - 1)):
			}
		}
		err := c.fetchFile(ctx, url, destPath)
		if err == nil || os.IsNotExist(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) fetchFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return os.ErrNotExist
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return out.Close()
}
