package hms

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

const sampleControl = `Control: RealTime
     Description: rolling realtime window
     Start Date: 1 January 2020
     Start Time: 00:00
     End Date: 3 January 2020
     End Time: 12:00
     Time Interval: 60
End:
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUpdater(t *testing.T) *ControlUpdater {
	t.Helper()
	path := filepath.Join(t.TempDir(), "RealTime.control")
	require.NoError(t, os.WriteFile(path, []byte(sampleControl), 0o644))

	cfg := &config.Config{
		Paths: config.PathsConfig{ControlFile: path},
		HMS:   config.HMSConfig{LookbackHours: 47, LookaheadHours: 12},
	}
	return NewControlUpdater(cfg, discardLogger())
}

func TestUpdateWindow(t *testing.T) {
	u := testUpdater(t)
	w := domain.RunWindow{
		Start: time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC),
	}

	require.NoError(t, u.UpdateWindow(w))

	patched, err := os.ReadFile(u.controlFile)
	require.NoError(t, err)
	assert.Contains(t, string(patched), "     Start Date: 25 May 2025\n")
	assert.Contains(t, string(patched), "     Start Time: 16:00\n")
	assert.Contains(t, string(patched), "     End Date: 28 May 2025\n")
	assert.Contains(t, string(patched), "     End Time: 03:00\n")
	assert.Contains(t, string(patched), "     Time Interval: 60\n")

	backup, err := os.ReadFile(u.controlFile + ".bak")
	require.NoError(t, err)
	assert.Equal(t, sampleControl, string(backup))
}

func TestUpdate_WindowFromClock(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 5, 27, 15, 37, 12, 0, time.UTC)))
	defer domain.SetClock(nil)

	u := testUpdater(t)

	w, err := u.Update()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC), w.End)

	patched, err := os.ReadFile(u.controlFile)
	require.NoError(t, err)
	assert.Contains(t, string(patched), "Start Date: 25 May 2025")
	assert.Contains(t, string(patched), "End Time: 03:00")
}

func TestUpdateWindow_BackupKeepsPreviousVersion(t *testing.T) {
	u := testUpdater(t)

	first := domain.RunWindow{
		Start: time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, u.UpdateWindow(first))

	second := domain.RunWindow{
		Start: time.Date(2025, 5, 26, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 5, 29, 4, 0, 0, 0, time.UTC),
	}
	require.NoError(t, u.UpdateWindow(second))

	backup, err := os.ReadFile(u.controlFile + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "Start Date: 25 May 2025")

	current, err := os.ReadFile(u.controlFile)
	require.NoError(t, err)
	assert.Contains(t, string(current), "Start Date: 26 May 2025")
}

func TestUpdateWindow_MissingFile(t *testing.T) {
	cfg := &config.Config{
		Paths: config.PathsConfig{ControlFile: filepath.Join(t.TempDir(), "absent.control")},
		HMS:   config.HMSConfig{LookbackHours: 47, LookaheadHours: 12},
	}
	u := NewControlUpdater(cfg, discardLogger())

	err := u.UpdateWindow(domain.RunWindow{
		Start: time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, domain.ErrConfig)
}
