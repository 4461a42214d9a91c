package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Stage names used in logs, metrics labels, and published events.
const (
	StageDownloadQPE      = "download_qpe"
	StageDownloadHRRR     = "download_hrrr"
	StageMergeRealtime    = "merge_realtime"
	StageMergePass2       = "merge_pass2"
	StageMergeHRRR        = "merge_hrrr"
	StageCombinePrimary   = "combine_primary"
	StageCombineSecondary = "combine_secondary"
	StageControlUpdate    = "control_update"
	StageModelRun         = "model_run"
)

// StageStatus classifies how a pipeline stage ended.
type StageStatus string

const (
	StageSucceeded StageStatus = "success"
	StageFailed    StageStatus = "failure"
	StageSkipped   StageStatus = "skipped"
)

// StageResult records one stage execution inside a pipeline run.
type StageResult struct {
	Stage       string      `json:"stage"`
	Status      StageStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Error       string      `json:"error,omitempty"`
}

// PipelineEvent is the message published after each stage and at run end.
type PipelineEvent struct {
	RunID   string `json:"run_id"`
	Trigger string `json:"trigger"` // "api", "scheduler", or "cli"
	StageResult
}

// NewRunID produces a deterministic run identifier from the trigger and start
// instant. Deterministic IDs let downstream consumers de-duplicate replayed
// events without coordination.
func NewRunID(trigger string, start time.Time) string {
	hash := sha256.Sum256([]byte(trigger + "|" + start.UTC().Format(time.RFC3339)))
	short := hex.EncodeToString(hash[:8])
	if trigger == "" {
		return short
	}
	return trigger + "-" + short
}

// RunReport is the record of one full pipeline run, stage by stage.
type RunReport struct {
	RunID       string          `json:"run_id"`
	Trigger     string          `json:"trigger"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Stages      []StageResult   `json:"stages"`
	Compute     *ComputeSummary `json:"compute,omitempty"`
}

// Partial reports whether the run finished but at least one stage did not
// succeed. Tolerated stage failures leave the run usable while still being
// worth surfacing.
func (r RunReport) Partial() bool {
	for _, s := range r.Stages {
		if s.Status != StageSucceeded {
			return true
		}
	}
	return false
}

// ComputeSummary aggregates per-run outcomes of one model invocation.
type ComputeSummary struct {
	Attempted int              `json:"attempted"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Failures  []ComputeFailure `json:"failures,omitempty"`
}

// ComputeFailure names a simulation run that did not complete.
type ComputeFailure struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// AllSucceeded reports whether every attempted run computed cleanly.
func (s ComputeSummary) AllSucceeded() bool {
	return s.Failed == 0 && s.Attempted == s.Succeeded
}
