// Package mrms downloads MultiSensor QPE precipitation grids from the MRMS
// realtime and archive index pages into dated folders on local disk.
package mrms

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

// product is the MRMS product whose hourly grids feed the model.
const product = "MultiSensor_QPE_01H_Pass2"

const (
	sourceRealtime = "qpe_realtime"
	sourceArchive  = "qpe_archive"
)

// Client fetches QPE grids over HTTP. Downloads run through a circuit
// breaker so a dead upstream fails fast instead of burning the retry budget
// on every remaining file.
type Client struct {
	realtimeURL    string
	archiveURL     string
	destRoot       string
	realtimeWindow time.Duration
	indexTimeout   time.Duration
	maxRetries     int
	retryDelay     time.Duration

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a QPE download client from the service configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		realtimeURL:    cfg.URLs.MRMSRealtime,
		archiveURL:     cfg.URLs.MRMSArchive,
		destRoot:       cfg.Paths.GribRoot,
		realtimeWindow: time.Duration(cfg.Download.RealtimeHours) * time.Hour,
		indexTimeout:   cfg.Download.IndexTimeout,
		maxRetries:     cfg.Download.MaxRetries,
		retryDelay:     cfg.Download.RetryBaseDelay,
		httpClient: &http.Client{
			Timeout: cfg.Download.FileTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mrms-download",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchRealtime lists the realtime index and downloads every grid newer than
// the configured window. Each file lands in the dated folder matching its
// own valid time, so a pass spanning midnight fills two folders.
func (c *Client) FetchRealtime(ctx context.Context) (domain.FetchStats, error) {
	files, err := c.listIndex(ctx, c.realtimeURL)
	if err != nil {
		return domain.FetchStats{}, fmt.Errorf("list realtime index: %w", err)
	}

	cutoff := domain.Now().Add(-c.realtimeWindow)
	var res domain.FetchStats
	for _, f := range files {
		if f.Timestamp.Before(cutoff) {
			continue
		}
		folder := f.Timestamp.Format(domain.RunDateLayout)
		c.downloadInto(ctx, f, folder, sourceRealtime, &res)
	}

	c.logger.Info("realtime fetch complete",
		"downloaded", res.Downloaded, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// FetchArchive downloads every grid listed for the given run dates from the
// archive mirror. Dates are validated up front; a single malformed date
// rejects the whole request before any network traffic.
func (c *Client) FetchArchive(ctx context.Context, dates []string) (domain.FetchStats, error) {
	if err := domain.ValidateRunDates(dates); err != nil {
		return domain.FetchStats{}, err
	}

	var res domain.FetchStats
	var listed bool
	for _, date := range dates {
		pageURL, err := archiveIndexURL(c.archiveURL, product, date)
		if err != nil {
			return domain.FetchStats{}, err
		}
		files, err := c.listIndex(ctx, pageURL)
		if err != nil {
			c.logger.Warn("archive index unavailable", "date", date, "error", err)
			continue
		}
		listed = true
		for _, f := range files {
			c.downloadInto(ctx, f, date, sourceArchive, &res)
		}
	}

	if !listed {
		return res, fmt.Errorf("archive fetch: %w", domain.ErrNoInputData)
	}
	c.logger.Info("archive fetch complete", "dates", dates,
		"downloaded", res.Downloaded, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// downloadInto fetches one file into destRoot/<folder>, updating the running
// result. Failures are logged and counted so the rest of the pass continues.
func (c *Client) downloadInto(ctx context.Context, f RemoteFile, folder, source string, res *domain.FetchStats) {
	destDir := filepath.Join(c.destRoot, folder)
	destPath := filepath.Join(destDir, strings.TrimSuffix(f.Name, ".gz"))

	if _, err := os.Stat(destPath); err == nil {
		res.Skipped++
		return
	}

	if err := c.downloadFile(ctx, f.URL, destDir, destPath); err != nil {
		res.Failed++
		c.metrics.DownloadErrors.WithLabelValues(source).Inc()
		c.logger.Warn("grid download failed", "file", f.Name, "error", err)
		return
	}

	res.Downloaded++
	c.metrics.FilesDownloaded.WithLabelValues(source).Inc()
	c.logger.Debug("grid downloaded", "file", f.Name, "folder", folder)
}

// downloadFile retries with exponential backoff around the circuit breaker.
// An open breaker aborts the retry loop immediately.
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
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.fetchFile(ctx, url, destPath)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) {
			break
		}
	}
	return lastErr
}

// fetchFile streams one gzipped grid to disk, decompressing on the way. A
// partial file is removed so a later attempt starts clean.
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

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return out.Close()
}

// listIndex fetches a directory listing page and parses its grid links.
func (c *Client) listIndex(ctx context.Context, pageURL string) ([]RemoteFile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.indexTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch index %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", pageURL, err)
	}
	return parseIndex(string(body), pageURL), nil
}
