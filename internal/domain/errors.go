package domain

import "errors"

// Error categories for the pipeline. Stages wrap these with %w so the API
// boundary can pick a status code with errors.Is without string matching.
var (
	// ErrInvalidDate marks a malformed or impossible YYYYMMDD run date.
	ErrInvalidDate = errors.New("invalid run date")

	// ErrInvalidInput marks a request value that failed validation before any
	// work started.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoInputData is returned when a whole batch resolves to nothing.
	ErrNoInputData = errors.New("no input data available")

	// ErrInputNotFound marks a missing input file or folder after fallback.
	ErrInputNotFound = errors.New("input not found")

	// ErrConfig marks a missing or unusable installation path, boundary file,
	// or config key. Never retried.
	ErrConfig = errors.New("configuration error")

	// ErrProcessFailed marks a nonzero exit or spawn failure of an external
	// tool. The captured output travels in the wrapping error text.
	ErrProcessFailed = errors.New("external process failed")
)
