package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
)

// LineItem is one "description - €price x qty = €total" invoice line.
// Total is taken from the document as written.
type LineItem struct {
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Total       float64 `json:"total"`
}

// InvoiceFields holds parsed invoice data. Nil means the field was not found.
type InvoiceFields struct {
	InvoiceNumber *string    `json:"invoice_number"`
	InvoiceDate   *string    `json:"invoice_date"`
	SellerName    *string    `json:"seller_name"`
	SellerKVK     *string    `json:"seller_kvk"`
	SellerIBAN    *string    `json:"seller_iban"`
	BuyerName     *string    `json:"buyer_name"`
	BuyerKVK      *string    `json:"buyer_kvk"`
	TotalAmount   *float64   `json:"total_amount"`
	VATAmount     *float64   `json:"vat_amount"`
	VATRate       *float64   `json:"vat_rate"`
	Currency      string     `json:"currency"`
	LineItems     []LineItem `json:"line_items"`
}

// Entities groups recognised named entities by category.
type Entities struct {
	Persons       []string `json:"persons"`
	Organizations []string `json:"organizations"`
	Dates         []string `json:"dates"`
	Times         []string `json:"times"`
	Money         []string `json:"money"`
	Locations     []string `json:"locations"`
}

// EmailFields holds the analysed email.
type EmailFields struct {
	Subject          string   `json:"subject"`
	SenderEmail      string   `json:"sender_email"`
	SenderName       string   `json:"sender_name"`
	RecipientEmails  []string `json:"recipient_emails"`
	CCEmails         []string `json:"cc_emails"`
	BodyText         string   `json:"body_text"`
	Entities         Entities `json:"entities"`
	Intent           string   `json:"intent"`
	IntentConfidence float64  `json:"intent_confidence"`
	UrgencyScore     float64  `json:"urgency_score"`
	EffortEstimate   int      `json:"effort_estimate"`
}

// ExtractionResult is the structured output for one job. Exactly one of
// Invoice and Email is set, matching JobType.
type ExtractionResult struct {
	JobID              uuid.UUID                  `json:"job_id"`
	JobType            constants.JobType          `json:"job_type"`
	Invoice            *InvoiceFields             `json:"invoice,omitempty"`
	Email              *EmailFields               `json:"email,omitempty"`
	ValidationStatus   constants.ValidationStatus `json:"validation_status"`
	ValidationMessages []string                   `json:"validation_messages"`
	ConfidenceScores   map[string]float64         `json:"confidence_scores"`
	ExtractedText      string                     `json:"-"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}
