package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 64, cfg.Server.FlowCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.Server.FlowCacheTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 47, cfg.HMS.LookbackHours)
	assert.Equal(t, 12, cfg.HMS.LookaheadHours)
	assert.Equal(t, "_RunOutput", cfg.HMS.LogSuffix)
	assert.Equal(t, "Current", cfg.HMS.RunName)
	assert.Equal(t, "model/realtime/RealTime.dss", cfg.Paths.ResultsDSS)
	assert.Equal(t, 24, cfg.Download.RealtimeHours)
	assert.Equal(t, "1000", cfg.Import.TargetCellSize)
	assert.Equal(t, "Nearest Neighbor", cfg.Import.ResamplingMethod)
	assert.Equal(t, "SHG", cfg.Import.PartA)
	assert.Equal(t, "SARA", cfg.Import.PartB)
	assert.Equal(t, "IMPORT", cfg.Import.PartF)
	assert.Equal(t, "PER-CUM", cfg.Import.DataType)
	assert.Contains(t, cfg.Import.TargetWkt, "Albers_Equal_Area_Conic")
	assert.Equal(t, "256m", cfg.Jython.InitialHeap)
	assert.Equal(t, "8192m", cfg.Jython.MaxHeap)
	assert.Equal(t, "16384m", cfg.Jython.HRRRMaxHeap)
	assert.Equal(t, 60*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 15, cfg.Scheduler.Minute)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9090"
  shutdown_timeout: 30s
paths:
  grib_root: /srv/grib
  hrrr_root: /srv/hrrr
urls:
  mrms_realtime: https://example.com/qpe/
hms:
  lookback_hours: 24
  lookahead_hours: 6
kafka:
  brokers:
    - broker-1:9092
    - broker-2:9092
  topic: pipeline-events
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/srv/grib", cfg.Paths.GribRoot)
	assert.Equal(t, "/srv/hrrr", cfg.Paths.HRRRRoot)
	assert.Equal(t, "https://example.com/qpe/", cfg.URLs.MRMSRealtime)
	assert.Equal(t, 24, cfg.HMS.LookbackHours)
	assert.Equal(t, 6, cfg.HMS.LookaheadHours)
	require.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "pipeline-events", cfg.Kafka.Topic)

	// Untouched sections keep their defaults.
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "SARA", cfg.Import.PartB)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HMS_SERVER_ADDR", ":7070")
	t.Setenv("HMS_LOG_LEVEL", "debug")
	t.Setenv("HMS_PATHS_GRIB_ROOT", "/env/grib")
	t.Setenv("HMS_HMS_LOOKBACK_HOURS", "36")

	cfg, err := Load(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/env/grib", cfg.Paths.GribRoot)
	assert.Equal(t, 36, cfg.HMS.LookbackHours)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	t.Setenv("HMS_SERVER_ADDR", ":7070")

	cfg, err := Load(writeConfigFile(t, "server:\n  addr: \":9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "zero lookback",
			body:    "hms:\n  lookback_hours: 0\n",
			wantErr: "hms.lookback_hours",
		},
		{
			name:    "negative lookahead",
			body:    "hms:\n  lookahead_hours: -1\n",
			wantErr: "hms.lookahead_hours",
		},
		{
			name:    "empty grib root",
			body:    "paths:\n  grib_root: \"\"\n",
			wantErr: "paths.grib_root is required",
		},
		{
			name:    "empty control file",
			body:    "paths:\n  control_file: \"\"\n",
			wantErr: "paths.control_file is required",
		},
		{
			name:    "scheduler minute out of range",
			body:    "scheduler:\n  minute: 61\n",
			wantErr: "scheduler.minute",
		},
		{
			name:    "brokers without topic",
			body:    "kafka:\n  brokers: [broker:9092]\n  topic: \"\"\n",
			wantErr: "kafka.topic is required",
		},
		{
			name:    "zero run timeout",
			body:    "pipeline:\n  run_timeout: 0s\n",
			wantErr: "pipeline.run_timeout",
		},
		{
			name:    "zero shutdown timeout",
			body:    "server:\n  shutdown_timeout: 0s\n",
			wantErr: "server.shutdown_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
