package constants

import "strings"

// JobType tags which pipeline handles a job.
type JobType string

const (
	JobTypeEmail   JobType = "email"
	JobTypeInvoice JobType = "invoice"
)

// ParseJobType accepts a job type string in any case.
func ParseJobType(s string) (JobType, bool) {
	switch JobType(lower(s)) {
	case JobTypeEmail:
		return JobTypeEmail, true
	case JobTypeInvoice:
		return JobTypeInvoice, true
	}
	return "", false
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
