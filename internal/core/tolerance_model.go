package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// VendorTolerance governs how much price/quantity drift a vendor's invoices may carry
// and how complete a match must be before it is approved without review.
type VendorTolerance struct {
	VendorID                 *int // nil for the system default
	MatchingMode             MatchingMode
	PriceTolerancePct        decimal.Decimal
	QuantityTolerancePct     decimal.Decimal
	RequirePONumber          bool
	AutoApprovalThresholdPct decimal.Decimal
}

// DefaultVendorTolerance is the tolerance applied when a vendor has no configuration row.
func DefaultVendorTolerance() VendorTolerance {
	return VendorTolerance{
		MatchingMode:             MatchingModeFlexible,
		PriceTolerancePct:        decimal.NewFromInt(3),
		QuantityTolerancePct:     decimal.NewFromInt(5),
		RequirePONumber:          false,
		AutoApprovalThresholdPct: decimal.NewFromInt(90),
	}
}

// ToleranceStore reads per-vendor matching configuration.
type ToleranceStore interface {
	// GetVendorTolerance returns nil, nil when the vendor has no configuration.
	GetVendorTolerance(ctx context.Context, vendorID int) (*VendorTolerance, error)
}
