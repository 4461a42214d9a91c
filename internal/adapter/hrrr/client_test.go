package hrrr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		URLs:  config.URLsConfig{HRRRBase: baseURL},
		Paths: config.PathsConfig{HRRRRoot: t.TempDir()},
		Download: config.DownloadConfig{
			FileTimeout:    5 * time.Second,
			MaxRetries:     1,
			RetryBaseDelay: time.Millisecond,
		},
	}
	return NewClient(cfg, observability.NewMetricsForTesting(), discardLogger())
}

// publishedServer serves forecast hours 2..maxHour for the 13z cycle of
// 2025-05-27 and 404s everything else, like a cycle mid-publication.
func publishedServer(maxHour int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for fh := firstForecastHour; fh <= maxHour; fh++ {
			if r.URL.Path == fmt.Sprintf("/hrrr.20250527/conus/hrrr.t13z.wrfsfcf%02d.grib2", fh) {
				fmt.Fprintf(w, "forecast hour %d", fh)
				return
			}
		}
		http.NotFound(w, r)
	}))
}

func TestFetchCycle(t *testing.T) {
	srv := publishedServer(lastForecastHour)
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	cycle := time.Date(2025, 5, 27, 13, 0, 0, 0, time.UTC)

	res, err := c.FetchCycle(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStats{Downloaded: 11}, res)

	data, err := os.ReadFile(filepath.Join(c.destRoot, "20250527", "hrrr.t13z.wrfsfcf02.grib2"))
	require.NoError(t, err)
	assert.Equal(t, "forecast hour 2", string(data))

	// Hours 0 and 1 are never requested.
	_, err = os.Stat(filepath.Join(c.destRoot, "20250527", "hrrr.t13z.wrfsfcf00.grib2"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(c.destRoot, "20250527", "hrrr.t13z.wrfsfcf01.grib2"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchCycle_PartialCycleTolerated(t *testing.T) {
	srv := publishedServer(5)
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	cycle := time.Date(2025, 5, 27, 13, 0, 0, 0, time.UTC)

	res, err := c.FetchCycle(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStats{Downloaded: 4, Missing: 7}, res)
}

func TestFetchCycle_NothingPublished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	cycle := time.Date(2025, 5, 27, 13, 0, 0, 0, time.UTC)

	_, err := c.FetchCycle(context.Background(), cycle)
	require.ErrorIs(t, err, domain.ErrNoInputData)
}

func TestFetchCycle_SkipsExisting(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	cycle := time.Date(2025, 5, 27, 13, 0, 0, 0, time.UTC)

	res, err := c.FetchCycle(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Downloaded)
	firstPass := hits.Load()

	res, err = c.FetchCycle(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStats{Skipped: 11}, res)
	assert.Equal(t, firstPass, hits.Load())
}

func TestFetchCycle_ServerErrorCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hrrr.20250527/conus/hrrr.t13z.wrfsfcf02.grib2" {
			fmt.Fprint(w, "payload")
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/")
	cycle := time.Date(2025, 5, 27, 13, 0, 0, 0, time.UTC)

	res, err := c.FetchCycle(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStats{Downloaded: 1, Failed: 10}, res)
}

func TestFetchLatest_UsesPreviousHourCycle(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 5, 27, 14, 30, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	var sawCycle atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hrrr.20250527/conus/hrrr.t13z.wrfsfcf02.grib2" {
			sawCycle.Store(true)
			fmt.Fprint(w, "payload")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/")

	res, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.True(t, sawCycle.Load())
}
