package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt records goods received against a purchase order, linked to the invoice that
// billed them. Auto-generated receipts are never mutated by the reconciler after creation.
type Receipt struct {
	ID              int
	PurchaseOrderID int
	VendorID        int
	VenueID         int
	InvoiceID       int
	AutoGenerated   bool
	Status          string
	CreatedAt       time.Time
	Lines           []ReceiptLine
}

// ReceiptLine is one matched invoice line.
type ReceiptLine struct {
	ID                  int
	ReceiptID           int
	LineNumber          int
	InvoiceLineID       int
	POItemID            int
	ItemID              *int
	QuantityReceived    decimal.Decimal
	UnitCost            decimal.Decimal
	MatchConfidence     Confidence
	PriceVariancePct    decimal.Decimal
	QuantityVariancePct decimal.Decimal
	VarianceNotes       *string
}

// ReconciliationWrite is everything the Receipt Writer persists atomically.
type ReconciliationWrite struct {
	InvoiceID       int
	PurchaseOrderID int
	VendorID        int
	VenueID         int
	Lines           []ReceiptLine
	InvoiceUpdate   InvoiceMatchUpdate
}

// ReceiptStore persists reconciliation receipts.
type ReceiptStore interface {
	// FindAutoReceipt returns the auto-generated receipt for an invoice, or nil, nil.
	FindAutoReceipt(ctx context.Context, invoiceID int) (*Receipt, error)

	// WriteReconciliation inserts the receipt, its lines and the invoice update in a single
	// transaction. On failure nothing is persisted and the returned error is a
	// *ReconcileError coded RECEIPT_CREATE_FAILED, RECEIPT_LINES_FAILED or
	// INVOICE_UPDATE_FAILED.
	WriteReconciliation(ctx context.Context, w ReconciliationWrite) (*Receipt, error)
}
