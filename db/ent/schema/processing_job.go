package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/db/ent/schema/utils"
)

type ProcessingJob struct{ ent.Schema }

func (ProcessingJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "processing_jobs"},
	}
}

func (ProcessingJob) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.String("client_id").MaxLen(255).NotEmpty(),
		field.String("job_type").MaxLen(32).
			Validate(utils.EnumValidator(string(constants.JobTypeInvoice), string(constants.JobTypeEmail))),
		field.String("status").MaxLen(32).
			Validate(utils.EnumValidator(utils.Strings(constants.JobStatuses)...)),
		field.Int("priority").Default(0),
		field.JSON("input_data", json.RawMessage{}).Optional(),
		field.JSON("output_data", json.RawMessage{}).Optional(),
		field.String("error_message").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Int64("processing_time_ms").Optional().Nillable(),
		field.JSON("metadata", map[string]any{}).Optional(),
		// lease_until is set while a worker holds the job
		field.Time("lease_until").Optional().Nillable(),
		field.Int("attempts").Default(0),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
		field.Time("completed_at").Optional().Nillable(),
	}
}

func (ProcessingJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("client_id", "status", "created_at"),
		index.Fields("status", "lease_until"),
	}
}
