package repository

import (
	"sort"
	"testing"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql/schema"

	entschema "github.com/joseph-ayodele/docflow/db/ent/schema"
)

func columnNames(t *schema.Table) []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

func fieldNames(fields []ent.Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		d := f.Descriptor()
		name := d.Name
		if d.StorageKey != "" {
			name = d.StorageKey
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func TestTablesMatchEntSchema(t *testing.T) {
	cases := []struct {
		table  *schema.Table
		fields []ent.Field
	}{
		{JobsTable, entschema.ProcessingJob{}.Fields()},
		{InvoicesTable, entschema.InvoiceExtraction{}.Fields()},
		{EmailsTable, entschema.EmailExtraction{}.Fields()},
	}
	for _, tc := range cases {
		t.Run(tc.table.Name, func(t *testing.T) {
			cols, fields := columnNames(tc.table), fieldNames(tc.fields)
			if len(cols) != len(fields) {
				t.Fatalf("expected %d columns, got %d: %v vs %v", len(fields), len(cols), fields, cols)
			}
			for i := range cols {
				if cols[i] != fields[i] {
					t.Errorf("column mismatch: table has %s, schema has %s", cols[i], fields[i])
				}
			}
		})
	}
}

func TestJobStatusFieldValidator(t *testing.T) {
	var validators []func(string) error
	for _, f := range (entschema.ProcessingJob{}).Fields() {
		d := f.Descriptor()
		if d.Name != "status" {
			continue
		}
		for _, v := range d.Validators {
			if fn, ok := v.(func(string) error); ok {
				validators = append(validators, fn)
			}
		}
	}
	if len(validators) == 0 {
		t.Fatal("expected status validators")
	}
	validate := func(s string) error {
		for _, fn := range validators {
			if err := fn(s); err != nil {
				return err
			}
		}
		return nil
	}
	if err := validate("completed"); err != nil {
		t.Errorf("expected completed to be accepted, got %v", err)
	}
	if err := validate("done"); err == nil {
		t.Error("expected done to be rejected")
	}
}
