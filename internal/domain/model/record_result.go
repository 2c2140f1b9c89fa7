//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strconv"
	"time"
)

// RecordResult is the persisted screening outcome for one input row.
// At most one RecordResult exists per (JobID, RecordID).
type RecordResult struct {
	JobID       string    `json:"jobId"       db:"job_id"`
	RecordID    string    `json:"recordId"    db:"record_id"`
	Name        string    `json:"name"        db:"name"`
	Country     string    `json:"country"     db:"country"`
	MatchName   string    `json:"matchName"   db:"match_name"`
	RiskScore   int       `json:"riskScore"   db:"risk_score"`
	ProcessedAt time.Time `json:"processedAt" db:"processed_at"`
	// TTL is the owning job's expiry in epoch seconds. Stores that cascade
	// deletes from the job ignore it.
	TTL *int64 `json:"ttl,omitempty" db:"-"`
}

// RecordID formats a 1-based row ordinal as a record identifier.
func RecordID(ordinal int) string {
	return strconv.Itoa(ordinal)
}

// Ordinal parses the record identifier back into its row ordinal.
// Non-numeric identifiers yield 0.
func (r *RecordResult) Ordinal() int {
	n, err := strconv.Atoi(r.RecordID)
	if err != nil {
		return 0
	}
	return n
}
