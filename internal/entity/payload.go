package entity

// DocumentRef points at an uploaded document in the DocumentStore.
type DocumentRef struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// InvoiceInput is the input payload of an invoice job.
type InvoiceInput struct {
	Document DocumentRef `json:"document"`
}

// EmailInput is the input payload of an email job.
type EmailInput struct {
	Subject         string   `json:"subject"`
	SenderEmail     string   `json:"sender_email,omitempty"`
	SenderName      string   `json:"sender_name,omitempty"`
	RecipientEmails []string `json:"recipient_emails,omitempty"`
	CCEmails        []string `json:"cc_emails,omitempty"`
	Content         string   `json:"content"`
}
