package entity

import (
	"time"

	"github.com/joseph-ayodele/docflow/constants"
)

// JobView is the externally visible status snapshot, also the cached value.
type JobView struct {
	JobID            string              `json:"job_id"`
	ClientID         string              `json:"client_id,omitempty"`
	JobType          constants.JobType   `json:"job_type"`
	Status           constants.JobStatus `json:"status"`
	Message          string              `json:"message"`
	Result           *ExtractionResult   `json:"result,omitempty"`
	Error            *string             `json:"error,omitempty"`
	ProcessingTimeMS *int64              `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

var statusMessages = map[constants.JobStatus]string{
	constants.JobStatusPending:    "Job queued for processing",
	constants.JobStatusProcessing: "Job is being processed",
	constants.JobStatusCompleted:  "Job completed successfully",
	constants.JobStatusFailed:     "Job failed",
}

// NewJobView builds the view of job; result may be nil.
func NewJobView(job *Job, result *ExtractionResult) *JobView {
	v := &JobView{
		JobID:            job.ID.String(),
		ClientID:         job.ClientID,
		JobType:          job.JobType,
		Status:           job.Status,
		Message:          statusMessages[job.Status],
		ProcessingTimeMS: job.ProcessingTimeMS,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
	if job.Status == constants.JobStatusFailed {
		v.Error = job.ErrorMessage
	}
	if job.Status == constants.JobStatusCompleted {
		v.Result = result
	}
	return v
}
