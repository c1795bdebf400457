package app

import (
	"context"
	"fmt"
	"io"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/report"
)

type appService struct {
	reconciler *core.Reconciler
	unmapped   core.UnmappedItemStore
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(reconciler *core.Reconciler, unmapped core.UnmappedItemStore) ApplicationService {
	return &appService{
		reconciler: reconciler,
		unmapped:   unmapped,
	}
}

func (s *appService) ReconcileInvoice(ctx context.Context, invoiceID int) (*core.ReconciliationResult, error) {
	return s.reconciler.ReconcileInvoice(ctx, invoiceID)
}

func (s *appService) PreviewReconciliation(ctx context.Context, invoiceID int) (*core.ReconciliationResult, error) {
	return s.reconciler.Preview(ctx, invoiceID)
}

func (s *appService) ListUnmappedItems(ctx context.Context, req UnmappedItemsRequest) (*UnmappedItemsResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	items, err := s.unmapped.ListUnmappedItems(ctx, req.VendorID, req.Status)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []core.UnmappedItem{}
	}
	return &UnmappedItemsResult{VendorID: req.VendorID, Status: req.Status, Items: items}, nil
}

func (s *appService) ExportUnmappedItems(ctx context.Context, req UnmappedItemsRequest, w io.Writer) (int, error) {
	res, err := s.ListUnmappedItems(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := report.WriteUnmappedItems(w, res.Items); err != nil {
		return 0, fmt.Errorf("failed to export unmapped items for vendor %d: %w", req.VendorID, err)
	}
	return len(res.Items), nil
}
