package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type toleranceService struct {
	pool *pgxpool.Pool
}

// NewToleranceService constructs a ToleranceStore backed by the vendor_match_tolerances table.
func NewToleranceService(pool *pgxpool.Pool) ToleranceStore {
	return &toleranceService{pool: pool}
}

// GetVendorTolerance returns the vendor's tolerance row, or nil, nil if there is none.
func (s *toleranceService) GetVendorTolerance(ctx context.Context, vendorID int) (*VendorTolerance, error) {
	t := &VendorTolerance{}
	var mode string
	err := s.pool.QueryRow(ctx, `
		SELECT vendor_id, matching_mode, price_tolerance_pct, quantity_tolerance_pct,
		       require_po_number, auto_approval_threshold_pct
		FROM vendor_match_tolerances
		WHERE vendor_id = $1`,
		vendorID,
	).Scan(
		&t.VendorID, &mode, &t.PriceTolerancePct, &t.QuantityTolerancePct,
		&t.RequirePONumber, &t.AutoApprovalThresholdPct,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tolerance for vendor %d: %w", vendorID, err)
	}
	t.MatchingMode = MatchingMode(mode)
	return t, nil
}

// ToleranceResolver picks the vendor's tolerance or the configured default.
type ToleranceResolver struct {
	store    ToleranceStore
	fallback VendorTolerance
}

// NewToleranceResolver returns a resolver that falls back to def when a vendor has no row.
func NewToleranceResolver(store ToleranceStore, def VendorTolerance) *ToleranceResolver {
	return &ToleranceResolver{store: store, fallback: def}
}

// Resolve never treats a missing vendor row as an error.
func (r *ToleranceResolver) Resolve(ctx context.Context, vendorID int) (VendorTolerance, error) {
	t, err := r.store.GetVendorTolerance(ctx, vendorID)
	if err != nil {
		return VendorTolerance{}, err
	}
	if t == nil {
		return r.fallback, nil
	}
	return *t, nil
}
