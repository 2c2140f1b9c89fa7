package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrJobIDRequired              = errors.New("job_id is required")
	ErrRecordKeyRequired          = errors.New("job_id and record_id are required")
	ErrRecordResultsNotConfigured = errors.New("record results repository not configured")
)
