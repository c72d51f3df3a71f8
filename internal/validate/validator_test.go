package validate

import (
	"reflect"
	"testing"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/fields"
)

func ptr[T any](v T) *T { return &v }

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return v
}

func completeInvoice() *entity.InvoiceFields {
	return &entity.InvoiceFields{
		InvoiceNumber: ptr("INV-1"),
		InvoiceDate:   ptr("15-03-2024"),
		SellerName:    ptr("Acme BV"),
		SellerKVK:     ptr("12345678"),
		SellerIBAN:    ptr("NL91ABNA0417164300"),
		TotalAmount:   ptr(121.0),
		VATAmount:     ptr(21.0),
		VATRate:       ptr(21.0),
		Currency:      "EUR",
		LineItems:     []entity.LineItem{{Description: "x", UnitPrice: 100, Quantity: 1, Total: 100}},
	}
}

func TestInvoiceValid(t *testing.T) {
	r := newValidator(t).Invoice(completeInvoice())
	if r.Status != constants.ValidationValid || len(r.Messages) != 0 {
		t.Fatalf("expected valid, got %s %v", r.Status, r.Messages)
	}
}

func TestInvoiceMessagesFollowCheckOrder(t *testing.T) {
	r := newValidator(t).Invoice(&entity.InvoiceFields{Currency: "EUR"})
	want := []string{
		"Missing invoice number",
		"Missing invoice date",
		"Missing seller name",
		"Missing seller KVK number",
		"Missing total amount",
	}
	if r.Status != constants.ValidationInvalid {
		t.Errorf("expected invalid, got %s", r.Status)
	}
	if !reflect.DeepEqual(r.Messages, want) {
		t.Errorf("expected %v, got %v", want, r.Messages)
	}
}

func TestWarningNeverOverridesInvalid(t *testing.T) {
	inv := completeInvoice()
	inv.InvoiceNumber = nil
	inv.SellerKVK = nil
	inv.VATAmount = nil

	r := newValidator(t).Invoice(inv)
	if r.Status != constants.ValidationInvalid {
		t.Fatalf("invalid must dominate later warnings, got %s", r.Status)
	}
	want := []string{"Missing invoice number", "Missing seller KVK number", "Missing VAT amount"}
	if !reflect.DeepEqual(r.Messages, want) {
		t.Errorf("expected %v, got %v", want, r.Messages)
	}
}

func TestInvoiceWarnings(t *testing.T) {
	inv := completeInvoice()
	inv.VATAmount = nil
	r := newValidator(t).Invoice(inv)
	if r.Status != constants.ValidationWarning || len(r.Messages) != 1 || r.Messages[0] != "Missing VAT amount" {
		t.Fatalf("got %s %v", r.Status, r.Messages)
	}

	// missing VAT is only reported when there is a positive total
	inv = completeInvoice()
	inv.VATAmount = nil
	inv.TotalAmount = nil
	r = newValidator(t).Invoice(inv)
	want := []string{"Missing total amount"}
	if !reflect.DeepEqual(r.Messages, want) {
		t.Errorf("expected %v, got %v", want, r.Messages)
	}
}

func TestInvoiceFormatWarningsSorted(t *testing.T) {
	inv := completeInvoice()
	inv.SellerIBAN = ptr("NL91")
	inv.Currency = "eur"
	inv.BuyerKVK = ptr("123")

	r := newValidator(t).Invoice(inv)
	want := []string{
		"Invalid buyer_kvk format",
		"Invalid currency format",
		"Invalid seller_iban format",
	}
	if r.Status != constants.ValidationWarning {
		t.Errorf("expected warning, got %s", r.Status)
	}
	if !reflect.DeepEqual(r.Messages, want) {
		t.Errorf("expected %v, got %v", want, r.Messages)
	}
}

func TestParsedInvoiceValidates(t *testing.T) {
	inv := fields.ParseInvoice("Invoice Number: INV-001\nDate: 05-03-2024\nFrom: Shop\nKvK: 12345678\nVAT (21%): €21.00\nTotal: €121.00\n")
	r := newValidator(t).Invoice(inv)
	if r.Status != constants.ValidationValid {
		t.Fatalf("expected valid, got %s %v", r.Status, r.Messages)
	}
}

func TestEmailChecks(t *testing.T) {
	v := newValidator(t)
	cases := []struct {
		name   string
		in     entity.EmailFields
		status constants.ValidationStatus
		msgs   []string
	}{
		{
			name:   "complete",
			in:     entity.EmailFields{Subject: "Hi", BodyText: "body", SenderEmail: "a@b.nl", RecipientEmails: []string{"c@d.nl"}},
			status: constants.ValidationValid,
			msgs:   []string{},
		},
		{
			name:   "missing sender and recipients",
			in:     entity.EmailFields{Subject: "Hi"},
			status: constants.ValidationWarning,
			msgs:   []string{"Missing sender email", "No recipients specified"},
		},
		{
			name:   "bad sender",
			in:     entity.EmailFields{BodyText: "x", SenderEmail: "not-an-email", RecipientEmails: []string{"c@d.nl"}},
			status: constants.ValidationWarning,
			msgs:   []string{"Invalid sender email format"},
		},
		{
			name:   "empty email",
			in:     entity.EmailFields{SenderEmail: "a@b.nl", RecipientEmails: []string{"c@d.nl"}},
			status: constants.ValidationInvalid,
			msgs:   []string{"Email has no subject or content"},
		},
		{
			name:   "bad recipient",
			in:     entity.EmailFields{Subject: "Hi", SenderEmail: "a@b.nl", RecipientEmails: []string{"c@d.nl", "broken"}},
			status: constants.ValidationWarning,
			msgs:   []string{"Invalid recipient_emails.1 format"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := v.Email(&c.in)
			if r.Status != c.status {
				t.Errorf("expected %s, got %s", c.status, r.Status)
			}
			if !reflect.DeepEqual(r.Messages, c.msgs) {
				t.Errorf("expected %v, got %v", c.msgs, r.Messages)
			}
		})
	}
}
