package entity

import (
	"testing"

	"github.com/joseph-ayodele/docflow/constants"
)

func TestNewJobViewOnlyExposesErrorWhenFailed(t *testing.T) {
	msg := "ocr crashed"
	job := NewJob("acme", constants.JobTypeInvoice, constants.JobStatusProcessing, nil)
	job.ErrorMessage = &msg

	v := NewJobView(job, &ExtractionResult{})
	if v.Error != nil {
		t.Errorf("expected no error on processing job, got %q", *v.Error)
	}
	if v.Result != nil {
		t.Errorf("expected no result before completion")
	}
	if v.Message != "Job is being processed" {
		t.Errorf("unexpected message %q", v.Message)
	}

	job.Status = constants.JobStatusFailed
	v = NewJobView(job, nil)
	if v.Error == nil || *v.Error != msg {
		t.Errorf("expected error %q, got %v", msg, v.Error)
	}
	if v.JobID != job.ID.String() {
		t.Errorf("expected job id %s, got %s", job.ID, v.JobID)
	}
}
