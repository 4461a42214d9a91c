package vortex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPyString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{`C:\data\grib\file.grib2`, `'C:\\data\\grib\\file.grib2'`},
		{"o'brien creek", `'o\'brien creek'`},
		{"", "''"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pyString(tt.in))
	}
}

func TestRenderImportScript(t *testing.T) {
	script, err := renderImportScript(ImportRequest{
		Files:            []string{"/data/grib/20250527/a.grib2", "/data/grib/20250527/b.grib2"},
		Variables:        []string{"GaugeCorrQPE01H_altitude_above_msl"},
		Shapefile:        "/gis/basin_boundary.shp",
		TargetCellSize:   "1000",
		TargetWkt:        `PROJCS["SHG"]`,
		ResamplingMethod: "Nearest Neighbor",
		Destination:      "/dss/RainfallRealTime.dss",
		PartA:            "SHG",
		PartB:            "SARA",
		PartF:            "IMPORT",
		DataType:         "PER-CUM",
	})
	require.NoError(t, err)

	assert.Contains(t, script, "from mil.army.usace.hec.vortex.io import BatchImporter")
	assert.Contains(t, script, "'/data/grib/20250527/a.grib2',")
	assert.Contains(t, script, "'/data/grib/20250527/b.grib2',")
	assert.Contains(t, script, "'GaugeCorrQPE01H_altitude_above_msl',")
	assert.Contains(t, script, "'pathToShp': '/gis/basin_boundary.shp',")
	assert.Contains(t, script, "'targetCellSize': '1000',")
	assert.Contains(t, script, `'targetWkt': 'PROJCS["SHG"]',`)
	assert.Contains(t, script, "'resamplingMethod': 'Nearest Neighbor',")
	assert.Contains(t, script, "'partA': 'SHG',")
	assert.Contains(t, script, "'partB': 'SARA',")
	assert.Contains(t, script, "'partF': 'IMPORT',")
	assert.Contains(t, script, "'dataType': 'PER-CUM',")
	assert.Contains(t, script, ".destination('/dss/RainfallRealTime.dss')")
	assert.Contains(t, script, "importer.process()")

	// Input files keep their order.
	assert.Less(t, strings.Index(script, "a.grib2"), strings.Index(script, "b.grib2"))
}

func TestRenderImportScript_NoDataType(t *testing.T) {
	script, err := renderImportScript(ImportRequest{
		Files:       []string{"/data/hrrr/20250527/hrrr.t13z.wrfsfcf02.grib2"},
		Variables:   []string{"Total_precipitation_surface_2_Hour_Accumulation"},
		Destination: "/dss/HRR.dss",
		PartA:       "SHG",
		PartB:       "SARA",
		PartF:       "IMPORT",
	})
	require.NoError(t, err)
	assert.NotContains(t, script, "dataType")
}

func TestRenderCombineScript(t *testing.T) {
	script, err := renderCombineScript(CombineRequest{
		Sources:     []string{"/dss/RainfallRealTime.dss", "/dss/RainfallRealTimePass2.dss"},
		Destination: "/dss/RainfallRealTimePass1And2.dss",
	})
	require.NoError(t, err)

	assert.Contains(t, script, "from hec.heclib.dss import HecDss")
	assert.Contains(t, script, "dest = HecDss.open('/dss/RainfallRealTimePass1And2.dss')")
	assert.Contains(t, script, "HecDss.open('/dss/RainfallRealTime.dss')")
	assert.Contains(t, script, "HecDss.open('/dss/RainfallRealTimePass2.dss')")
	assert.Contains(t, script, "print('COMBINE DONE: ' + '/dss/RainfallRealTimePass1And2.dss')")

	// Sources are copied in order, so the later file wins collisions.
	assert.Less(t,
		strings.Index(script, "RainfallRealTime.dss"),
		strings.Index(script, "RainfallRealTimePass2.dss"))
}

func TestRenderExtractScript(t *testing.T) {
	script, err := renderExtractScript(ExtractRequest{
		DSSFile:   "/model/results.dss",
		Junction:  "Outlet J-10",
		RunName:   "RealTime",
		OutputCSV: "/csv/flow.csv",
	})
	require.NoError(t, err)

	assert.Contains(t, script, "pathname = '//OUTLET J-10/FLOW//1HOUR/RUN:REALTIME/'")
	assert.Contains(t, script, "dss = HecDss.open('/model/results.dss')")
	assert.Contains(t, script, "open('/csv/flow.csv', 'wb')")
	assert.Contains(t, script, "print('EXTRACT DONE: ' + '/csv/flow.csv')")
}
