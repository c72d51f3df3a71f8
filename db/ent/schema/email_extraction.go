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

	"github.com/joseph-ayodele/docflow/db/ent/schema/utils"
)

type EmailExtraction struct{ ent.Schema }

func (EmailExtraction) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "email_extractions"},
	}
}

func (EmailExtraction) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).StorageKey("job_id").Immutable(),
		field.String("subject").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.String("sender_email").MaxLen(320).Optional().Nillable(),
		field.String("sender_name").MaxLen(512).Optional().Nillable(),
		field.JSON("recipient_emails", []string{}).Optional(),
		field.JSON("cc_emails", []string{}).Optional(),
		field.String("body_text").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.JSON("entities", json.RawMessage{}).Optional(),
		field.String("intent").MaxLen(64).Optional().Nillable(),
		field.Float("intent_confidence").Optional().Nillable(),
		field.Float("urgency_score").Optional().Nillable(),
		field.Int("effort_estimate").Optional().Nillable(),
		field.String("validation_status").MaxLen(16).
			Validate(utils.EnumValidator(utils.Strings(validationStatuses)...)),
		field.JSON("validation_messages", []string{}).Optional(),
		field.JSON("confidence_scores", map[string]float64{}).Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}
