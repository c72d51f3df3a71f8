// Package validate checks extracted fields and grades them valid, warning
// or invalid.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// Report is the result of one validation pass. Messages keep check order.
type Report struct {
	Status   constants.ValidationStatus
	Messages []string
}

func newReport() *Report {
	return &Report{Status: constants.ValidationValid, Messages: []string{}}
}

// Invalid records msg and downgrades the status to invalid.
func (r *Report) Invalid(msg string) { r.add(constants.ValidationInvalid, msg) }

// Warn records msg and downgrades the status to warning unless it is
// already invalid.
func (r *Report) Warn(msg string) { r.add(constants.ValidationWarning, msg) }

func (r *Report) add(s constants.ValidationStatus, msg string) {
	if s.Severity() > r.Status.Severity() {
		r.Status = s
	}
	r.Messages = append(r.Messages, msg)
}

type Validator struct {
	invoiceSchema *jsonschema.Schema
	emailSchema   *jsonschema.Schema
	log           *slog.Logger
}

func New(log *slog.Logger) (*Validator, error) {
	if log == nil {
		log = slog.Default()
	}
	inv, err := compile("invoice.json", invoiceFormatSchema())
	if err != nil {
		return nil, err
	}
	em, err := compile("email.json", emailFormatSchema())
	if err != nil {
		return nil, err
	}
	return &Validator{invoiceSchema: inv, emailSchema: em, log: log}, nil
}

// Invoice runs the required-field checks in a fixed order, then the format
// checks. A zero total counts as missing.
func (v *Validator) Invoice(inv *entity.InvoiceFields) Report {
	r := newReport()
	if inv == nil {
		inv = &entity.InvoiceFields{}
	}
	if blank(inv.InvoiceNumber) {
		r.Invalid("Missing invoice number")
	}
	if blank(inv.InvoiceDate) {
		r.Invalid("Missing invoice date")
	}
	if blank(inv.SellerName) {
		r.Invalid("Missing seller name")
	}
	if blank(inv.SellerKVK) {
		r.Warn("Missing seller KVK number")
	}
	if zero(inv.TotalAmount) {
		r.Invalid("Missing total amount")
	}
	if zero(inv.VATAmount) && inv.TotalAmount != nil && *inv.TotalAmount > 0 {
		r.Warn("Missing VAT amount")
	}
	v.formatChecks(r, v.invoiceSchema, inv)
	return *r
}

// Email grades an analysed email. Only a message without subject and
// content is invalid.
func (v *Validator) Email(em *entity.EmailFields) Report {
	r := newReport()
	if em == nil {
		em = &entity.EmailFields{}
	}
	if strings.TrimSpace(em.SenderEmail) == "" {
		r.Warn("Missing sender email")
	} else if common.Email("sender_email", em.SenderEmail) != nil {
		r.Warn("Invalid sender email format")
	}
	if len(em.RecipientEmails) == 0 {
		r.Warn("No recipients specified")
	}
	if strings.TrimSpace(em.Subject) == "" && strings.TrimSpace(em.BodyText) == "" {
		r.Invalid("Email has no subject or content")
	}
	v.formatChecks(r, v.emailSchema, em)
	return *r
}

// formatChecks validates doc against schema and adds one warning per
// failing location, sorted by location.
func (v *Validator) formatChecks(r *Report, schema *jsonschema.Schema, doc any) {
	b, err := json.Marshal(doc)
	if err != nil {
		v.log.Error("validate.encode.error", "error", err)
		return
	}
	var data any
	if err := json.Unmarshal(b, &data); err != nil {
		v.log.Error("validate.decode.error", "error", err)
		return
	}
	err = schema.Validate(data)
	if err == nil {
		return
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		v.log.Error("validate.schema.error", "error", err)
		return
	}
	locs := map[string]struct{}{}
	collectLeaves(ve, locs)
	sorted := make([]string, 0, len(locs))
	for loc := range locs {
		sorted = append(sorted, loc)
	}
	sort.Strings(sorted)
	for _, loc := range sorted {
		r.Warn(fmt.Sprintf("Invalid %s format", loc))
	}
}

func collectLeaves(ve *jsonschema.ValidationError, out map[string]struct{}) {
	if len(ve.Causes) == 0 {
		loc := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
		if loc != "" {
			out[loc] = struct{}{}
		}
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

func compile(name string, schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func zero(f *float64) bool {
	return f == nil || *f == 0
}
