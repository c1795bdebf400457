package core

import "github.com/shopspring/decimal"

// MatchResult is the per-line outcome of one reconciliation run. It is never persisted
// as its own entity.
type MatchResult struct {
	InvoiceLineID       int             `json:"invoice_line_id"`
	LineNumber          int             `json:"line_number"`
	Description         string          `json:"description"`
	POItemID            *int            `json:"po_item_id,omitempty"`
	ItemID              *int            `json:"item_id,omitempty"`
	QuantityToReceive   decimal.Decimal `json:"quantity_to_receive"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	PriceVariancePct    decimal.Decimal `json:"price_variance_pct"`
	QuantityVariancePct decimal.Decimal `json:"quantity_variance_pct"`
	Confidence          Confidence      `json:"confidence"`
	Notes               []string        `json:"notes,omitempty"`
}

// Matched reports whether the line was paired with a PO item.
func (m MatchResult) Matched() bool {
	return m.Confidence != ConfidenceUnmapped && m.POItemID != nil
}

// Rounded returns a copy with percentages at reporting precision.
func (m MatchResult) Rounded() MatchResult {
	m.PriceVariancePct = RoundPct(m.PriceVariancePct)
	m.QuantityVariancePct = RoundPct(m.QuantityVariancePct)
	return m
}

// VarianceSummary is the Variance Aggregator's roll-up for a whole invoice.
type VarianceSummary struct {
	MatchedAmount     decimal.Decimal `json:"matched_amount"`
	MatchPct          decimal.Decimal `json:"match_pct"`
	TotalVariancePct  decimal.Decimal `json:"total_variance_pct"`
	OverallConfidence Confidence      `json:"overall_confidence"`
	Severity          Severity        `json:"severity"`
	CriticalVariances int             `json:"critical_variances"`
	WarningVariances  int             `json:"warning_variances"`
}

// Rounded returns a copy with percentages at reporting precision.
func (s VarianceSummary) Rounded() VarianceSummary {
	s.MatchPct = RoundPct(s.MatchPct)
	s.TotalVariancePct = RoundPct(s.TotalVariancePct)
	return s
}

// ReconciliationResult is returned by Reconciler.ReconcileInvoice and Reconciler.Preview.
type ReconciliationResult struct {
	InvoiceID       int             `json:"invoice_id"`
	ReceiptID       *int            `json:"receipt_id,omitempty"` // nil for a preview
	PurchaseOrderID int             `json:"purchase_order_id"`
	PONumber        string          `json:"po_number"`
	MatchedLines    int             `json:"matched_lines"`
	UnmappedLines   int             `json:"unmapped_lines"`
	UnmappedLineIDs []int           `json:"unmapped_line_ids"`
	AutoApproved    bool            `json:"auto_approved"`
	DryRun          bool            `json:"dry_run"`
	Summary         VarianceSummary `json:"summary"`
	Lines           []MatchResult   `json:"lines"`
}
