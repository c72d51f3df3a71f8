package constants

// JobStatus is the canonical status for rows in processing_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // persisted, waiting for a worker to claim it
	JobStatusProcessing JobStatus = "processing" // claimed or directly submitted
	JobStatusCompleted  JobStatus = "completed"  // terminal
	JobStatusFailed     JobStatus = "failed"     // terminal
)

// JobStatuses lists every status in lifecycle order.
var JobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

// IsTerminal reports whether no transition leaves s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus accepts a status string in any case.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, st := range JobStatuses {
		if string(st) == lower(s) {
			return st, true
		}
	}
	return "", false
}

// ValidationStatus is the outcome of one validation pass.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationWarning ValidationStatus = "warning"
	ValidationInvalid ValidationStatus = "invalid"
)

// Severity orders validation statuses; higher is worse.
func (v ValidationStatus) Severity() int {
	switch v {
	case ValidationWarning:
		return 1
	case ValidationInvalid:
		return 2
	default:
		return 0
	}
}
