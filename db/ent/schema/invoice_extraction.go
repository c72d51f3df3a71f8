package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/db/ent/schema/utils"
)

var validationStatuses = []constants.ValidationStatus{
	constants.ValidationValid,
	constants.ValidationWarning,
	constants.ValidationInvalid,
}

// InvoiceExtraction is keyed by the owning job.
type InvoiceExtraction struct{ ent.Schema }

func (InvoiceExtraction) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "invoice_extractions"},
	}
}

func (InvoiceExtraction) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).StorageKey("job_id").Immutable(),
		field.String("invoice_number").MaxLen(255).Optional().Nillable(),
		field.String("invoice_date").MaxLen(32).Optional().Nillable(),
		field.String("seller_name").MaxLen(512).Optional().Nillable(),
		field.String("seller_kvk").MaxLen(16).Optional().Nillable(),
		field.String("seller_iban").MaxLen(64).Optional().Nillable(),
		field.String("buyer_name").MaxLen(512).Optional().Nillable(),
		field.String("buyer_kvk").MaxLen(16).Optional().Nillable(),
		field.Float("total_amount").Optional().Nillable(),
		field.Float("vat_amount").Optional().Nillable(),
		field.Float("vat_rate").Optional().Nillable(),
		field.String("currency").MaxLen(8).Optional().Nillable(),
		field.JSON("line_items", json.RawMessage{}).Optional(),
		field.String("validation_status").MaxLen(16).
			Validate(utils.EnumValidator(utils.Strings(validationStatuses)...)),
		field.JSON("validation_messages", []string{}).Optional(),
		field.JSON("confidence_scores", map[string]float64{}).Optional(),
		field.String("extracted_text").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}
