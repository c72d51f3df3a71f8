package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	TableJobs     = "processing_jobs"
	TableInvoices = "invoice_extractions"
	TableEmails   = "email_extractions"
)

var (
	// JobsColumns holds the columns for the "processing_jobs" table.
	JobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "client_id", Type: field.TypeString, Size: 255},
		{Name: "job_type", Type: field.TypeString, Size: 32},
		{Name: "status", Type: field.TypeString, Size: 32},
		{Name: "priority", Type: field.TypeInt, Default: 0},
		{Name: "input_data", Type: field.TypeJSON, Nullable: true},
		{Name: "output_data", Type: field.TypeJSON, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "processing_time_ms", Type: field.TypeInt64, Nullable: true},
		{Name: "metadata", Type: field.TypeJSON, Nullable: true},
		{Name: "lease_until", Type: field.TypeTime, Nullable: true},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
	}
	// JobsTable holds the schema information for the "processing_jobs" table.
	JobsTable = &schema.Table{
		Name:       TableJobs,
		Columns:    JobsColumns,
		PrimaryKey: []*schema.Column{JobsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "processingjob_client_id_status_created_at", Columns: []*schema.Column{JobsColumns[1], JobsColumns[3], JobsColumns[12]}},
			{Name: "processingjob_status_lease_until", Columns: []*schema.Column{JobsColumns[3], JobsColumns[10]}},
		},
	}

	// InvoicesColumns holds the columns for the "invoice_extractions" table.
	InvoicesColumns = []*schema.Column{
		{Name: "job_id", Type: field.TypeUUID},
		{Name: "invoice_number", Type: field.TypeString, Size: 255, Nullable: true},
		{Name: "invoice_date", Type: field.TypeString, Size: 32, Nullable: true},
		{Name: "seller_name", Type: field.TypeString, Size: 512, Nullable: true},
		{Name: "seller_kvk", Type: field.TypeString, Size: 16, Nullable: true},
		{Name: "seller_iban", Type: field.TypeString, Size: 64, Nullable: true},
		{Name: "buyer_name", Type: field.TypeString, Size: 512, Nullable: true},
		{Name: "buyer_kvk", Type: field.TypeString, Size: 16, Nullable: true},
		{Name: "total_amount", Type: field.TypeFloat64, Nullable: true},
		{Name: "vat_amount", Type: field.TypeFloat64, Nullable: true},
		{Name: "vat_rate", Type: field.TypeFloat64, Nullable: true},
		{Name: "currency", Type: field.TypeString, Size: 8, Nullable: true},
		{Name: "line_items", Type: field.TypeJSON, Nullable: true},
		{Name: "validation_status", Type: field.TypeString, Size: 16},
		{Name: "validation_messages", Type: field.TypeJSON, Nullable: true},
		{Name: "confidence_scores", Type: field.TypeJSON, Nullable: true},
		{Name: "extracted_text", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// InvoicesTable holds the schema information for the "invoice_extractions" table.
	InvoicesTable = &schema.Table{
		Name:       TableInvoices,
		Columns:    InvoicesColumns,
		PrimaryKey: []*schema.Column{InvoicesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "invoice_extractions_processing_jobs_invoice",
				Columns:    []*schema.Column{InvoicesColumns[0]},
				RefColumns: []*schema.Column{JobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	// EmailsColumns holds the columns for the "email_extractions" table.
	EmailsColumns = []*schema.Column{
		{Name: "job_id", Type: field.TypeUUID},
		{Name: "subject", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "sender_email", Type: field.TypeString, Size: 320, Nullable: true},
		{Name: "sender_name", Type: field.TypeString, Size: 512, Nullable: true},
		{Name: "recipient_emails", Type: field.TypeJSON, Nullable: true},
		{Name: "cc_emails", Type: field.TypeJSON, Nullable: true},
		{Name: "body_text", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "entities", Type: field.TypeJSON, Nullable: true},
		{Name: "intent", Type: field.TypeString, Size: 64, Nullable: true},
		{Name: "intent_confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "urgency_score", Type: field.TypeFloat64, Nullable: true},
		{Name: "effort_estimate", Type: field.TypeInt, Nullable: true},
		{Name: "validation_status", Type: field.TypeString, Size: 16},
		{Name: "validation_messages", Type: field.TypeJSON, Nullable: true},
		{Name: "confidence_scores", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// EmailsTable holds the schema information for the "email_extractions" table.
	EmailsTable = &schema.Table{
		Name:       TableEmails,
		Columns:    EmailsColumns,
		PrimaryKey: []*schema.Column{EmailsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "email_extractions_processing_jobs_email",
				Columns:    []*schema.Column{EmailsColumns[0]},
				RefColumns: []*schema.Column{JobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{JobsTable, InvoicesTable, EmailsTable}
)

func init() {
	InvoicesTable.ForeignKeys[0].RefTable = JobsTable
	EmailsTable.ForeignKeys[0].RefTable = JobsTable
}

// Migrate creates or upgrades the schema.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(db.Driver, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("schema migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("schema migrate: %w", err)
	}
	logger.Info("schema up to date", "tables", len(Tables))
	return nil
}
