package domain

import (
	"log/slog"
	"strconv"
	"strings"
)

// FlowPoint is one timestamped flow observation.
type FlowPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// FlowSeries is a named flow record extracted from the results database.
type FlowSeries struct {
	Name     string      `json:"name"`
	Unit     string      `json:"unit"`
	Timezone string      `json:"timezone"`
	Data     []FlowPoint `json:"data"`
}

// FlowResponse is the JSON body served for flow queries.
type FlowResponse struct {
	Series []FlowSeries `json:"series"`
}

// ParseFlowCSV turns extractor output into a flow series. The extractor writes
// "time,value" rows with an optional header line; rows that do not parse are
// logged and skipped rather than failing the whole series.
func ParseFlowCSV(data []byte, junction string, logger *slog.Logger) FlowResponse {
	lines := strings.Split(string(data), "\n")

	start := 0
	if len(lines) > 0 && isFlowHeader(lines[0]) {
		start = 1
	}

	var points []FlowPoint
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			logger.Warn("skipping unparsable flow row", "line", i+1, "value", parts[1])
			continue
		}
		points = append(points, FlowPoint{
			Time:  strings.TrimSpace(parts[0]),
			Value: value,
		})
	}

	return FlowResponse{
		Series: []FlowSeries{{
			Name:     junction,
			Unit:     "cfs",
			Timezone: "UTC",
			Data:     points,
		}},
	}
}

func isFlowHeader(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "time") || strings.Contains(lower, "date")
}
