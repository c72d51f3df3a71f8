package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
)

// Job represents one row of processing_jobs for data transfer between layers.
type Job struct {
	ID               uuid.UUID           `json:"id"`
	ClientID         string              `json:"client_id"`
	JobType          constants.JobType   `json:"job_type"`
	Status           constants.JobStatus `json:"status"`
	Priority         int                 `json:"priority"`
	InputData        json.RawMessage     `json:"input_data,omitempty"`
	OutputData       json.RawMessage     `json:"output_data,omitempty"`
	ErrorMessage     *string             `json:"error_message,omitempty"`
	ProcessingTimeMS *int64              `json:"processing_time_ms,omitempty"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
	LeaseUntil       *time.Time          `json:"lease_until,omitempty"`
	Attempts         int                 `json:"attempts"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

// NewJob prepares a job for insertion. Direct submissions start in
// processing, broker submissions in pending.
func NewJob(clientID string, jobType constants.JobType, status constants.JobStatus, input json.RawMessage) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		ClientID:  clientID,
		JobType:   jobType,
		Status:    status,
		InputData: input,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	ClientID string
	Status   constants.JobStatus
	JobType  constants.JobType
	Limit    int
	Offset   int
}
