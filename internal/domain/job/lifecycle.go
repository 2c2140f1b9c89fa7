// Package job holds the screening job lifecycle rules.
package job

import (
	"errors"
	"fmt"

	"github.com/target/namescreen/internal/domain/model"
)

// ErrInvalidTransition indicates a status change the lifecycle does not permit.
var ErrInvalidTransition = errors.New("invalid job status transition")

// transitions lists, per target status, the statuses a job may move from.
// PROCESSING may be re-entered when a crashed run is redelivered.
var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobStatusQueued:     nil,
	model.JobStatusProcessing: {model.JobStatusQueued, model.JobStatusProcessing},
	model.JobStatusDone:       {model.JobStatusProcessing},
	model.JobStatusFailed:     {model.JobStatusProcessing},
}

// AllowedFrom returns the source statuses from which a job may enter target.
// The returned slice is a copy.
func AllowedFrom(target model.JobStatus) []model.JobStatus {
	src := transitions[target]
	out := make([]model.JobStatus, len(src))
	copy(out, src)
	return out
}

// CanTransition reports whether a job in status from may move to status to.
func CanTransition(from, to model.JobStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from → to is not permitted.
func CheckTransition(from, to model.JobStatus) error {
	if !CanTransition(from, to) {
		return TransitionError{From: from, To: to}
	}
	return nil
}

// TransitionError describes a rejected transition. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	JobID string
	From  model.JobStatus
	To    model.JobStatus
}

func (e TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "unknown"
	}
	if e.JobID != "" {
		return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, from, e.To)
	}
	return fmt.Sprintf("cannot move from %s to %s", from, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
