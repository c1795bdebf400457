package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UnmappedItem is a backlog entry for an invoice description that matched no PO item,
// keyed by (VendorID, NormalizedDescription).
type UnmappedItem struct {
	ID                    int             `json:"id"`
	VendorID              int             `json:"vendor_id"`
	NormalizedDescription string          `json:"normalized_description"`
	RawDescription        string          `json:"raw_description"`
	LastInvoiceID         int             `json:"last_invoice_id"`
	LastUnitCost          decimal.Decimal `json:"last_unit_cost"`
	OccurrenceCount       int             `json:"occurrence_count"`
	ReviewStatus          string          `json:"review_status"`
	FirstSeenAt           time.Time       `json:"first_seen_at"`
	LastSeenAt            time.Time       `json:"last_seen_at"`
}

// UnmappedItemInput describes one sighting of an unmatched line.
type UnmappedItemInput struct {
	VendorID              int
	NormalizedDescription string
	RawDescription        string
	InvoiceID             int
	UnitCost              decimal.Decimal
}

// UnmappedItemStore is the Unmapped-Item Tracker's backlog.
type UnmappedItemStore interface {
	// UpsertUnmappedItem inserts the backlog row or, if the key exists, increments its
	// occurrence count and refreshes the last-seen invoice and cost in one atomic statement.
	UpsertUnmappedItem(ctx context.Context, in UnmappedItemInput) (*UnmappedItem, error)

	// ListUnmappedItems returns a vendor's backlog, most frequent first.
	// An empty status returns every review status.
	ListUnmappedItems(ctx context.Context, vendorID int, status string) ([]UnmappedItem, error)
}
