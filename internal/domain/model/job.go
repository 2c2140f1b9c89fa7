// Package model defines the core data types shared across the screening system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a screening job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusQueued indicates the job was created by the trigger and awaits a worker.
	JobStatusQueued JobStatus = "QUEUED"
	// JobStatusProcessing indicates a worker is streaming the job's records.
	JobStatusProcessing JobStatus = "PROCESSING"
	// JobStatusDone indicates the job finished and its summary is committed.
	JobStatusDone JobStatus = "DONE"
	// JobStatusFailed indicates the job aborted with an error.
	JobStatusFailed JobStatus = "FAILED"
)

// DefaultCountry is applied to work items that do not carry a country.
const DefaultCountry = "NZ"

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusProcessing || s == JobStatusDone ||
		s == JobStatusFailed
}

// Terminal reports whether no further transitions are allowed out of the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses read from stores are validated.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// Summary is the aggregate outcome of a finished job.
type Summary struct {
	Total     int  `json:"total"`
	High      int  `json:"high"`
	Medium    int  `json:"medium"`
	Low       int  `json:"low"`
	Truncated bool `json:"truncated"`
}

// Consistent reports whether the tier counts add up to the total.
func (s Summary) Consistent() bool {
	return s.Total >= 0 && s.High >= 0 && s.Medium >= 0 && s.Low >= 0 &&
		s.Total == s.High+s.Medium+s.Low
}

// Job represents a screening run and its lifecycle state.
type Job struct {
	ID        string    `json:"jobId"             db:"job_id"`
	Status    JobStatus `json:"status"            db:"status"`
	Error     *string   `json:"error,omitempty"   db:"error"`
	Summary   *Summary  `json:"summary,omitempty" db:"summary"`
	CreatedAt time.Time `json:"createdAt"         db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt"         db:"updated_at"`
	// TTL is the retention marker in epoch seconds; nil when retention is disabled.
	TTL *int64 `json:"ttl,omitempty" db:"ttl"`
}

// WorkItem is one unit of queued work delivered to a worker.
type WorkItem struct {
	JobID   string `json:"jobId"`
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Country string `json:"country,omitempty"`
}

// ErrInvalidWorkItem is returned when a work item is missing required fields.
var ErrInvalidWorkItem = errors.New("invalid work item")

// Validate checks the required work item fields.
func (w *WorkItem) Validate() error {
	switch {
	case strings.TrimSpace(w.JobID) == "":
		return fmt.Errorf("%w: jobId is required", ErrInvalidWorkItem)
	case strings.TrimSpace(w.Bucket) == "":
		return fmt.Errorf("%w: bucket is required", ErrInvalidWorkItem)
	case strings.TrimSpace(w.Key) == "":
		return fmt.Errorf("%w: key is required", ErrInvalidWorkItem)
	}
	return nil
}

// CountryOrDefault returns the work item's country, falling back to DefaultCountry.
func (w *WorkItem) CountryOrDefault(fallback string) string {
	if c := strings.TrimSpace(w.Country); c != "" {
		return c
	}
	if fallback != "" {
		return fallback
	}
	return DefaultCountry
}

// DecodeWorkItem parses and validates a JSON work item body.
func DecodeWorkItem(body []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return WorkItem{}, fmt.Errorf("%w: %w", ErrInvalidWorkItem, err)
	}
	if err := item.Validate(); err != nil {
		return WorkItem{}, err
	}
	return item, nil
}
