// Package fields turns extracted text into typed invoice fields and email
// analysis results.
package fields

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

// InvoiceCurrency is the only currency the invoice patterns understand.
const InvoiceCurrency = "EUR"

var (
	reInvoiceNumber = regexp.MustCompile(`Invoice Number:\s*([\w-]+)`)
	reInvoiceDate   = regexp.MustCompile(`Date:\s*(\d{1,2}-\d{1,2}-\d{4})`)
	reFrom          = regexp.MustCompile(`From:\s*([^\n]+)`)
	reTo            = regexp.MustCompile(`To:\s*([^\n]+)`)
	reKVK           = regexp.MustCompile(`KvK:\s*(\d{8})`)
	reIBAN          = regexp.MustCompile(`IBAN:\s*([A-Z0-9]+)`)
	reTotal         = regexp.MustCompile(`Total:\s*€(\d+\.\d{2})`)
	reVAT           = regexp.MustCompile(`VAT\s*\((\d+)%\):\s*€(\d+\.\d{2})`)
	reLineItem      = regexp.MustCompile(`€(\d+\.\d{2})\s*x\s*(\d+)\s*=\s*€(\d+\.\d{2})`)
)

// ParseInvoice extracts labelled invoice fields from text. Fields without a
// match stay nil. The first "KvK:" number is the seller's, the second the
// buyer's.
func ParseInvoice(text string) *entity.InvoiceFields {
	inv := &entity.InvoiceFields{
		InvoiceNumber: firstGroup(reInvoiceNumber, text),
		InvoiceDate:   firstGroup(reInvoiceDate, text),
		SellerName:    trimmed(firstGroup(reFrom, text)),
		SellerIBAN:    firstGroup(reIBAN, text),
		BuyerName:     trimmed(firstGroup(reTo, text)),
		TotalAmount:   parseAmount(firstGroup(reTotal, text)),
		Currency:      InvoiceCurrency,
		LineItems:     parseLineItems(text),
	}

	kvks := reKVK.FindAllStringSubmatch(text, 2)
	if len(kvks) > 0 {
		inv.SellerKVK = &kvks[0][1]
	}
	if len(kvks) > 1 {
		inv.BuyerKVK = &kvks[1][1]
	}

	if m := reVAT.FindStringSubmatch(text); m != nil {
		inv.VATRate = parseAmount(&m[1])
		inv.VATAmount = parseAmount(&m[2])
	}
	return inv
}

// parseLineItems reads "description - €price x qty = €total" lines. The
// total is kept as written.
func parseLineItems(text string) []entity.LineItem {
	items := []entity.LineItem{}
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "€") || !strings.Contains(line, "x") || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.Split(line, "-")
		if len(parts) < 2 {
			continue
		}
		m := reLineItem.FindStringSubmatch(parts[1])
		if m == nil {
			continue
		}
		price, err1 := strconv.ParseFloat(m[1], 64)
		qty, err2 := strconv.Atoi(m[2])
		total, err3 := strconv.ParseFloat(m[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		items = append(items, entity.LineItem{
			Description: strings.TrimSpace(parts[0]),
			UnitPrice:   price,
			Quantity:    qty,
			Total:       total,
		})
	}
	return items
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &m[1]
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func parseAmount(s *string) *float64 {
	if s == nil {
		return nil
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &v
}
