package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

const maxSubjectLength = 998

// ValidateInput rejects payloads that must never become jobs.
func ValidateInput(jobType constants.JobType, input any) error {
	switch in := input.(type) {
	case entity.InvoiceInput:
		if jobType != constants.JobTypeInvoice {
			break
		}
		return common.NewValidator().
			Field("document.key", in.Document.Key, common.Required).
			Field("document.filename", in.Document.Filename, common.Required).
			Check(constants.IsAllowedExt(filepath.Ext(in.Document.Filename)), "document.filename", "must be a pdf or image file").
			Err()
	case entity.EmailInput:
		if jobType != constants.JobTypeEmail {
			break
		}
		return common.NewValidator().
			Check(strings.TrimSpace(in.Subject) != "" || strings.TrimSpace(in.Content) != "", "content", "or subject is required").
			Field("subject", in.Subject, common.MaxLength(maxSubjectLength)).
			Field("sender_email", in.SenderEmail, common.Email).
			Field("recipient_emails", in.RecipientEmails, common.EmailList).
			Field("cc_emails", in.CCEmails, common.EmailList).
			Err()
	}
	return common.InvalidInputf("input does not match job type %q", jobType)
}
