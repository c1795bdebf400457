package app

import (
	"context"
	"io"

	"invoice-reconciler/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples transport from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// ReconcileInvoice matches the invoice to its purchase order and persists the receipt.
	// Failures carry a *core.ReconcileError.
	ReconcileInvoice(ctx context.Context, invoiceID int) (*core.ReconciliationResult, error)

	// PreviewReconciliation computes the same result without writing anything.
	PreviewReconciliation(ctx context.Context, invoiceID int) (*core.ReconciliationResult, error)

	// ListUnmappedItems returns a vendor's unmapped-item backlog, most frequent first.
	ListUnmappedItems(ctx context.Context, req UnmappedItemsRequest) (*UnmappedItemsResult, error)

	// ExportUnmappedItems writes the backlog as an XLSX workbook and returns the row count.
	ExportUnmappedItems(ctx context.Context, req UnmappedItemsRequest, w io.Writer) (int, error)
}
