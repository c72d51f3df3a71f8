// Package queue moves pending jobs through the Redis-backed broker. The
// producer publishes one task per job and the consumer hands each task to
// the orchestrator, acknowledging only after the outcome is persisted.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// TaskTypeProcess is the broker task type for document jobs.
const TaskTypeProcess = "document:process"

// Message is the task body. The job row stays authoritative; Document is
// carried so a consumer can log what it is about to process.
type Message struct {
	JobID    string              `json:"job_id"`
	JobType  constants.JobType   `json:"job_type"`
	ClientID string              `json:"client_id,omitempty"`
	Document *entity.DocumentRef `json:"document,omitempty"`
}

func NewMessage(job *entity.Job) Message {
	m := Message{JobID: job.ID.String(), JobType: job.JobType, ClientID: job.ClientID}
	if job.JobType == constants.JobTypeInvoice {
		var in entity.InvoiceInput
		if err := json.Unmarshal(job.InputData, &in); err == nil && in.Document.Key != "" {
			m.Document = &in.Document
		}
	}
	return m
}

// DecodeMessage parses a task body and its job id.
func DecodeMessage(body []byte) (Message, uuid.UUID, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return m, uuid.Nil, fmt.Errorf("decode message: %w", err)
	}
	id, err := uuid.Parse(m.JobID)
	if err != nil {
		return m, uuid.Nil, fmt.Errorf("invalid job_id %q: %w", m.JobID, err)
	}
	return m, id, nil
}
