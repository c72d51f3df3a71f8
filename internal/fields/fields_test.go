package fields

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/nlp"
)

const sampleInvoice = `Invoice Number: INV-2024-001
Date: 15-03-2024
From: Acme Supplies BV
KvK: 12345678
IBAN: NL91ABNA0417164300
To: Customer Holding
KvK: 87654321

Widget - €50.00 x 2 = €100.00
Gadget - €10.50 x 3 = €30.00
Subtotal €130.00

VAT (21%): €27.30
Total: €157.30
`

func TestParseInvoiceFull(t *testing.T) {
	inv := ParseInvoice(sampleInvoice)

	checks := map[string]*string{
		"INV-2024-001":       inv.InvoiceNumber,
		"15-03-2024":         inv.InvoiceDate,
		"Acme Supplies BV":   inv.SellerName,
		"12345678":           inv.SellerKVK,
		"NL91ABNA0417164300": inv.SellerIBAN,
		"Customer Holding":   inv.BuyerName,
		"87654321":           inv.BuyerKVK,
	}
	for want, got := range checks {
		if got == nil || *got != want {
			t.Errorf("expected %q, got %v", want, got)
		}
	}
	if inv.TotalAmount == nil || *inv.TotalAmount != 157.30 {
		t.Errorf("total = %v", inv.TotalAmount)
	}
	if inv.VATAmount == nil || *inv.VATAmount != 27.30 || inv.VATRate == nil || *inv.VATRate != 21 {
		t.Errorf("vat = %v rate = %v", inv.VATAmount, inv.VATRate)
	}
	if inv.Currency != "EUR" {
		t.Errorf("currency = %s", inv.Currency)
	}
	if len(inv.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(inv.LineItems))
	}
	if li := inv.LineItems[0]; li.Description != "Widget" || li.UnitPrice != 50 || li.Quantity != 2 || li.Total != 100 {
		t.Errorf("line item 0 = %+v", li)
	}
	// total kept as written even though 10.50 x 3 != 30.00
	if li := inv.LineItems[1]; li.Total != 30.00 {
		t.Errorf("line item total recomputed: %+v", li)
	}
}

func TestParseInvoiceMinimal(t *testing.T) {
	inv := ParseInvoice("Invoice Number: INV-001\nDate: 05-03-2024\nTotal: €123.45\n")

	if inv.InvoiceNumber == nil || *inv.InvoiceNumber != "INV-001" {
		t.Errorf("invoice number = %v", inv.InvoiceNumber)
	}
	if inv.InvoiceDate == nil || *inv.InvoiceDate != "05-03-2024" {
		t.Errorf("invoice date = %v", inv.InvoiceDate)
	}
	if inv.TotalAmount == nil || *inv.TotalAmount != 123.45 {
		t.Errorf("total = %v", inv.TotalAmount)
	}
	if inv.VATAmount != nil || inv.VATRate != nil {
		t.Errorf("expected nil VAT, got %v / %v", inv.VATAmount, inv.VATRate)
	}
	if inv.SellerName != nil || inv.SellerKVK != nil || inv.BuyerKVK != nil || inv.SellerIBAN != nil {
		t.Error("unmatched fields must stay nil")
	}
	if inv.LineItems == nil || len(inv.LineItems) != 0 {
		t.Errorf("expected empty line items, got %v", inv.LineItems)
	}
}

func TestParseInvoiceSingleKVKIsSeller(t *testing.T) {
	inv := ParseInvoice("From: A\nKvK: 11112222\nTo: B\n")
	if inv.SellerKVK == nil || *inv.SellerKVK != "11112222" || inv.BuyerKVK != nil {
		t.Errorf("seller=%v buyer=%v", inv.SellerKVK, inv.BuyerKVK)
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		subject, body, want string
	}{
		{"", "Please help me ASAP", IntentUrgent},
		{"Question", "Can you assist with setup?", IntentSupport},
		{"Invoice 42", "When is payment due?", IntentBilling},
		{"Sync", "Can we schedule a meeting?", IntentMeeting},
		{"", "Thanks a lot for the quick work", IntentAppreciation},
		{"Product", "Some feedback on the new release", IntentFeedback},
		{"Hello", "Just checking in.", IntentGeneral},
		// substring matching: "billing" contains "bill"
		{"Billing", "", IntentBilling},
	}
	for _, c := range cases {
		if got := ClassifyIntent(c.subject, c.body); got != c.want {
			t.Errorf("ClassifyIntent(%q, %q): expected %s, got %s", c.subject, c.body, c.want, got)
		}
	}
}

func TestEstimateEffort(t *testing.T) {
	cases := []struct {
		intent string
		body   string
		want   int
	}{
		{IntentUrgent, "", 30},
		{IntentSupport, "", 20},
		{IntentBilling, strings.Repeat("a", 2000), 15},
		{IntentMeeting, "", 10},
		{IntentGeneral, strings.Repeat("a", 1001), 25},
		{IntentAppreciation, strings.Repeat("a", 501), 15},
		{IntentFeedback, strings.Repeat("a", 500), 10},
	}
	for _, c := range cases {
		if got := EstimateEffort(c.intent, c.body); got != c.want {
			t.Errorf("EstimateEffort(%s, len %d): expected %d, got %d", c.intent, len(c.body), c.want, got)
		}
	}
}

func TestUrgencyScore(t *testing.T) {
	cases := []struct {
		subject, body string
		want          float64
	}{
		{"", "hello", 0.5},
		{"URGENT", "need this today", 1.0},
		{"", "important", 0.7},
		{"", "no rush, whenever", 0.2},
		{"", "urgent but no rush", 0.6},
		{"", "priority for tomorrow", 0.9},
		{"", "asap emergency", 0.9},
	}
	for _, c := range cases {
		got := UrgencyScore(c.subject, c.body)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("UrgencyScore(%q, %q): expected %v, got %v", c.subject, c.body, c.want, got)
		}
		if got < 0 || got > 1 {
			t.Errorf("score out of range: %v", got)
		}
	}
}

type stubRecognizer struct {
	ents []nlp.Entity
	err  error
	text string
}

func (s *stubRecognizer) Recognize(_ context.Context, text string) ([]nlp.Entity, error) {
	s.text = text
	return s.ents, s.err
}

func TestAnalyzeEmail(t *testing.T) {
	rec := &stubRecognizer{ents: []nlp.Entity{{Text: "Alice", Label: "PERSON"}, {Text: "Alice", Label: "PERSON"}}}
	a := NewEmailAnalyzer(rec, nil)

	in := entity.EmailInput{Subject: "Invoice question", SenderEmail: "a@b.nl", Content: "Could you send the invoice today?"}
	f, conf, err := a.Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.text != "Invoice question. Could you send the invoice today?" {
		t.Errorf("recognizer input = %q", rec.text)
	}
	if f.Intent != IntentBilling || f.EffortEstimate != 15 {
		t.Errorf("intent=%s effort=%d", f.Intent, f.EffortEstimate)
	}
	if math.Abs(f.UrgencyScore-0.7) > 1e-9 {
		t.Errorf("urgency = %v", f.UrgencyScore)
	}
	if len(f.Entities.Persons) != 1 {
		t.Errorf("persons = %v", f.Entities.Persons)
	}
	if conf["entity_extraction"] != 0.85 || conf["intent_classification"] != 0.78 ||
		conf["effort_estimation"] != 0.65 || conf["urgency_detection"] != 0.72 {
		t.Errorf("confidence = %v", conf)
	}
	if f.RecipientEmails == nil || f.CCEmails == nil {
		t.Error("recipient lists must be non-nil")
	}
}

func TestAnalyzeEmailRecognizerFailure(t *testing.T) {
	a := NewEmailAnalyzer(&stubRecognizer{err: errors.New("ner down")}, nil)
	f, conf, err := a.Analyze(context.Background(), entity.EmailInput{Subject: "Hi", Content: "thanks"})
	if err == nil {
		t.Fatal("expected entity error to be reported")
	}
	if conf["entity_extraction"] != 0 {
		t.Errorf("entity confidence = %v", conf["entity_extraction"])
	}
	if f.Intent != IntentAppreciation || f.Entities.Persons == nil {
		t.Errorf("unexpected fields %+v", f)
	}
}
