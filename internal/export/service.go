package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docflow/internal/repository"
)

const (
	SheetInvoices  = "Invoices"
	SheetLineItems = "Line Items"

	// ContentType is the media type of the produced workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// InvoiceLister is the slice of ResultRepository the exporter reads from.
type InvoiceLister interface {
	ListInvoices(ctx context.Context, clientID string, limit int) ([]repository.InvoiceRecord, error)
}

// Service produces XLSX bytes for invoice exports.
type Service struct {
	invoices InvoiceLister
	logger   *slog.Logger
}

func NewService(invoices InvoiceLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportInvoicesXLSX returns a workbook with the completed invoices of
// clientID (all clients when empty), capped at limit rows.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, clientID string, limit int) ([]byte, error) {
	start := time.Now()

	recs, err := s.invoices.ListInvoices(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	buf, items, err := Workbook(recs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.xlsx.ok",
		"client_id", clientID,
		"rows", len(recs),
		"line_items", items,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

var invoiceHeaders = []string{
	"Job ID",
	"Source File",
	"Invoice Number",
	"Invoice Date",
	"Seller",
	"Seller KvK",
	"Seller IBAN",
	"Buyer",
	"Buyer KvK",
	"Total",
	"VAT",
	"VAT Rate",
	"Currency",
	"Validation",
	"Messages",
	"Completed At",
}

var lineItemHeaders = []string{
	"Job ID",
	"Invoice Number",
	"Description",
	"Unit Price",
	"Quantity",
	"Total",
}

// Workbook renders records into XLSX bytes and reports the number of
// line-item rows written.
func Workbook(recs []repository.InvoiceRecord) ([]byte, int, error) {
	f := excelize.NewFile()
	defer f.Close()

	// The default sheet is renamed rather than left empty.
	if err := f.SetSheetName("Sheet1", SheetInvoices); err != nil {
		return nil, 0, err
	}
	if _, err := f.NewSheet(SheetLineItems); err != nil {
		return nil, 0, err
	}
	idx, _ := f.GetSheetIndex(SheetInvoices)
	f.SetActiveSheet(idx)

	writeHeader(f, SheetInvoices, invoiceHeaders)
	writeHeader(f, SheetLineItems, lineItemHeaders)

	row, itemRow := 2, 2
	for _, r := range recs {
		if r.Job == nil || r.Result == nil || r.Result.Invoice == nil {
			continue
		}
		inv := r.Result.Invoice
		jobID := r.Job.ID.String()

		source := ""
		if v, ok := r.Job.Metadata["source_filename"].(string); ok {
			source = v
		}
		completed := ""
		if r.Job.CompletedAt != nil {
			completed = r.Job.CompletedAt.UTC().Format(time.RFC3339)
		}

		writeRow(f, SheetInvoices, row,
			jobID,
			source,
			str(inv.InvoiceNumber),
			str(inv.InvoiceDate),
			str(inv.SellerName),
			str(inv.SellerKVK),
			str(inv.SellerIBAN),
			str(inv.BuyerName),
			str(inv.BuyerKVK),
			num(inv.TotalAmount),
			num(inv.VATAmount),
			num(inv.VATRate),
			inv.Currency,
			string(r.Result.ValidationStatus),
			truncate(strings.Join(r.Result.ValidationMessages, "; "), 250),
			completed,
		)
		row++

		for _, li := range inv.LineItems {
			writeRow(f, SheetLineItems, itemRow,
				jobID,
				str(inv.InvoiceNumber),
				li.Description,
				li.UnitPrice,
				li.Quantity,
				li.Total,
			)
			itemRow++
		}
	}

	_ = f.SetColWidth(SheetInvoices, "A", "A", 38) // job id
	_ = f.SetColWidth(SheetInvoices, "B", "B", 28)
	_ = f.SetColWidth(SheetInvoices, "C", "I", 18)
	_ = f.SetColWidth(SheetInvoices, "J", "M", 12) // amounts
	_ = f.SetColWidth(SheetInvoices, "O", "O", 60)
	_ = f.SetColWidth(SheetLineItems, "A", "A", 38)
	_ = f.SetColWidth(SheetLineItems, "C", "C", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), itemRow - 2, nil
}

// ReadInvoiceRows opens a workbook produced by Workbook and returns the
// rows of sheet, header included.
func ReadInvoiceRows(data []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()
	return f.GetRows(sheet)
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// num leaves the cell empty for missing amounts.
func num(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
