package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is a vendor bill produced by the upstream OCR/ingestion pipeline.
type Invoice struct {
	ID            int
	VendorID      int
	VenueID       int
	InvoiceNumber string
	InvoiceDate   time.Time
	TotalAmount   decimal.Decimal
	OCRPONumber   *string // PO number printed on the document, if OCR found one
	// Reconciliation fields (set by the Receipt Writer)
	PurchaseOrderID  *int
	MatchConfidence  *string
	AutoApproved     bool
	TotalVariancePct *decimal.Decimal
	VarianceSeverity *string
	ReconciledAt     *time.Time
	CreatedAt        time.Time
	Lines            []InvoiceLine
}

// InvoiceLine is one billed line. ItemID is nil when OCR could not resolve a catalog item.
type InvoiceLine struct {
	ID          int
	InvoiceID   int
	LineNumber  int
	ItemID      *int
	Description string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
}

// InvoiceMatchUpdate is written back to the invoice in the receipt transaction.
type InvoiceMatchUpdate struct {
	PurchaseOrderID  int
	Confidence       Confidence
	AutoApproved     bool
	TotalVariancePct decimal.Decimal
	Severity         Severity
}

// InvoiceStore reads invoices for reconciliation.
type InvoiceStore interface {
	// GetInvoice returns the invoice with its lines in line order.
	// Returns an error wrapping ErrNotFound when the invoice does not exist.
	GetInvoice(ctx context.Context, invoiceID int) (*Invoice, error)
}
