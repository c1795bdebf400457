package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is an open order that an invoice may be billed against.
type PurchaseOrder struct {
	ID          int
	OrderNumber string
	VendorID    int
	VenueID     int
	OrderDate   time.Time
	Status      string
	Items       []POItem
}

// POItem is one ordered item. RemainingQuantity is maintained by the receiving workflow;
// the reconciler only reads it.
type POItem struct {
	ID                int
	OrderID           int
	ItemID            *int
	SKU               *string
	Name              string
	OrderedQuantity   decimal.Decimal
	RemainingQuantity decimal.Decimal
	UnitPrice         decimal.Decimal
}

// CandidateQuery selects open purchase orders for an invoice.
type CandidateQuery struct {
	VendorID int
	VenueID  int
	From     time.Time // inclusive
	To       time.Time // inclusive
	PONumber *string   // exact order_number filter when set
}

// CandidateWindow returns the inclusive [from, to] date range of days calendar days
// either side of invoiceDate, truncated to whole dates.
func CandidateWindow(invoiceDate time.Time, days int) (time.Time, time.Time) {
	d := time.Date(invoiceDate.Year(), invoiceDate.Month(), invoiceDate.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -days), d.AddDate(0, 0, days)
}

// PurchaseOrderStore is the Candidate Order Finder's view of purchase orders.
type PurchaseOrderStore interface {
	// FindCandidateOrders returns ordered/pending POs for the vendor and venue whose order
	// date falls in the query window, most recent first, each with its items in item order.
	FindCandidateOrders(ctx context.Context, q CandidateQuery) ([]PurchaseOrder, error)
}
