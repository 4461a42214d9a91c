package vortex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

const flowCSV = `time,flow
27May2025 01:00,105.4
27May2025 02:00,231.9
`

func testExtractor(t *testing.T, interpreterBody string) (*Extractor, string) {
	t.Helper()
	dir := captureDir(t)
	exe := writeFakeInterpreter(t, interpreterBody)
	cfg := testConfig(t, exe)
	runner := NewRunner(cfg, observability.NewMetricsForTesting(), discardLogger())

	results := filepath.Join(t.TempDir(), "results.dss")
	require.NoError(t, os.WriteFile(results, []byte("dss"), 0o644))

	ex := NewExtractor(runner, cfg, results, "RealTime", discardLogger())
	require.NoError(t, os.WriteFile(cfg.Paths.FlowOutputCSV, []byte(flowCSV), 0o644))
	return ex, dir
}

func TestExtractFlow(t *testing.T) {
	ex, dir := testExtractor(t, `echo "EXTRACT DONE: ok"`)

	resp, err := ex.ExtractFlow(context.Background(), "Outlet")
	require.NoError(t, err)

	require.Len(t, resp.Series, 1)
	s := resp.Series[0]
	assert.Equal(t, "Outlet", s.Name)
	assert.Equal(t, "cfs", s.Unit)
	require.Len(t, s.Data, 2)
	assert.Equal(t, 105.4, s.Data[0].Value)
	assert.Equal(t, 231.9, s.Data[1].Value)

	script := readCapture(t, dir, "script.py")
	assert.Contains(t, script, "//OUTLET/FLOW//1HOUR/RUN:REALTIME/")
}

func TestExtractFlow_EmptyJunction(t *testing.T) {
	ex, _ := testExtractor(t, `echo "EXTRACT DONE: ok"`)

	_, err := ex.ExtractFlow(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExtractFlow_MissingResults(t *testing.T) {
	ex, dir := testExtractor(t, `echo "EXTRACT DONE: ok"`)
	ex.dssFile = filepath.Join(t.TempDir(), "absent.dss")

	_, err := ex.ExtractFlow(context.Background(), "Outlet")
	require.ErrorIs(t, err, domain.ErrInputNotFound)

	_, statErr := os.Stat(filepath.Join(dir, "args.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractFlow_MarkerMissing(t *testing.T) {
	ex, _ := testExtractor(t, `echo "partial output"`)

	_, err := ex.ExtractFlow(context.Background(), "Outlet")
	require.ErrorIs(t, err, domain.ErrProcessFailed)
}
