package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultCandidateWindowDays is how far either side of the invoice date a PO may be dated.
const DefaultCandidateWindowDays = 10

// ReconcilerDeps wires the reconciler to its stores. Locker and Logger are optional.
type ReconcilerDeps struct {
	Invoices   InvoiceStore
	Orders     PurchaseOrderStore
	Tolerances *ToleranceResolver
	Receipts   ReceiptStore
	Unmapped   UnmappedItemStore
	Variances  VarianceStore
	Locker     Locker
	Logger     *zap.Logger
	WindowDays int
}

// Reconciler matches an invoice to its purchase order and records the outcome.
type Reconciler struct {
	invoices   InvoiceStore
	orders     PurchaseOrderStore
	tolerances *ToleranceResolver
	receipts   ReceiptStore
	unmapped   UnmappedItemStore
	variances  VarianceStore
	locker     Locker
	log        *zap.Logger
	windowDays int
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		invoices:   d.Invoices,
		orders:     d.Orders,
		tolerances: d.Tolerances,
		receipts:   d.Receipts,
		unmapped:   d.Unmapped,
		variances:  d.Variances,
		locker:     d.Locker,
		log:        d.Logger,
		windowDays: d.WindowDays,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.windowDays <= 0 {
		r.windowDays = DefaultCandidateWindowDays
	}
	return r
}

// LockKey is the distributed lock key for an invoice's reconciliation run.
func LockKey(invoiceID int) string {
	return fmt.Sprintf("lock:reconcile:invoice:%d", invoiceID)
}

// plan is a fully matched and scored invoice, not yet persisted.
type plan struct {
	invoice   *Invoice
	order     PurchaseOrder
	tolerance VendorTolerance
	results   []MatchResult
	summary   VarianceSummary
	approved  bool
}

// ReconcileInvoice runs the full pipeline for one invoice and persists the receipt, its
// lines and the invoice update atomically. Unmapped-item and variance records are written
// afterwards on a best-effort basis.
func (r *Reconciler) ReconcileInvoice(ctx context.Context, invoiceID int) (*ReconciliationResult, error) {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, LockKey(invoiceID))
		if err != nil {
			if errors.Is(err, ErrLockNotObtained) {
				return nil, NewReconcileError(CodeReconciliationInProgress,
					fmt.Sprintf("invoice %d is being reconciled", invoiceID), err)
			}
			return nil, NewReconcileError(CodeStoreError, "failed to acquire reconciliation lock", err)
		}
		defer release()
	}

	log := r.log.With(zap.Int("invoice_id", invoiceID))
	log.Info("reconciliation started")

	inv, err := r.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	existing, err := r.receipts.FindAutoReceipt(ctx, invoiceID)
	if err != nil {
		return nil, NewReconcileError(CodeStoreError, "failed to check existing receipt", err)
	}
	if existing != nil {
		return nil, NewReconcileError(CodeAlreadyReconciled,
			fmt.Sprintf("invoice %d already reconciled by receipt %d", invoiceID, existing.ID), nil)
	}

	p, err := r.buildPlan(ctx, inv)
	if err != nil {
		return nil, err
	}

	receipt, err := r.receipts.WriteReconciliation(ctx, ReconciliationWrite{
		InvoiceID:       inv.ID,
		PurchaseOrderID: p.order.ID,
		VendorID:        inv.VendorID,
		VenueID:         inv.VenueID,
		Lines:           receiptLines(p.results),
		InvoiceUpdate: InvoiceMatchUpdate{
			PurchaseOrderID:  p.order.ID,
			Confidence:       p.summary.OverallConfidence,
			AutoApproved:     p.approved,
			TotalVariancePct: RoundPct(p.summary.TotalVariancePct),
			Severity:         p.summary.Severity,
		},
	})
	if err != nil {
		if _, ok := AsReconcileError(err); ok {
			return nil, err
		}
		return nil, NewReconcileError(CodeReceiptCreateFailed, "failed to write receipt", err)
	}

	r.recordUnmapped(ctx, log, inv, p.results)
	r.recordVariances(ctx, log, inv.ID, p)

	res := p.result()
	res.ReceiptID = &receipt.ID

	log.Info("reconciliation finished",
		zap.Int("receipt_id", receipt.ID),
		zap.String("po_number", p.order.OrderNumber),
		zap.Int("matched_lines", res.MatchedLines),
		zap.Int("unmapped_lines", res.UnmappedLines),
		zap.String("match_pct", res.Summary.MatchPct.String()),
		zap.String("severity", string(res.Summary.Severity)),
		zap.Bool("auto_approved", res.AutoApproved),
	)
	return res, nil
}

// Preview matches and scores an invoice without taking the lock or writing anything.
func (r *Reconciler) Preview(ctx context.Context, invoiceID int) (*ReconciliationResult, error) {
	inv, err := r.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	p, err := r.buildPlan(ctx, inv)
	if err != nil {
		return nil, err
	}
	res := p.result()
	res.DryRun = true
	return res, nil
}

func (r *Reconciler) loadInvoice(ctx context.Context, invoiceID int) (*Invoice, error) {
	inv, err := r.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewReconcileError(CodeInvoiceNotFound,
				fmt.Sprintf("invoice %d not found", invoiceID), err)
		}
		return nil, NewReconcileError(CodeStoreError, "failed to load invoice", err)
	}
	return inv, nil
}

func (r *Reconciler) buildPlan(ctx context.Context, inv *Invoice) (*plan, error) {
	tol, err := r.tolerances.Resolve(ctx, inv.VendorID)
	if err != nil {
		return nil, NewReconcileError(CodeStoreError, "failed to resolve vendor tolerance", err)
	}

	order, err := r.findBestOrder(ctx, inv, tol)
	if err != nil {
		return nil, err
	}

	results := make([]MatchResult, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		item, conf := MatchLine(line, order.Items)
		if item == nil {
			r.log.Debug("invoice line unmapped",
				zap.Int("invoice_id", inv.ID),
				zap.Int("line_number", line.LineNumber),
				zap.String("description", line.Description),
			)
			results = append(results, UnmappedResult(line))
			continue
		}
		results = append(results, ScoreMatch(line, *item, tol, conf))
	}

	summary := Aggregate(results, inv.TotalAmount)
	return &plan{
		invoice:   inv,
		order:     order,
		tolerance: tol,
		results:   results,
		summary:   summary,
		approved:  DecideAutoApproval(summary, tol),
	}, nil
}

// findBestOrder returns the most recent candidate order. Only the first candidate is used.
func (r *Reconciler) findBestOrder(ctx context.Context, inv *Invoice, tol VendorTolerance) (PurchaseOrder, error) {
	poNumber := ocrPONumber(inv)
	if poNumber == nil && tol.RequirePONumber {
		return PurchaseOrder{}, noMatchingPO(inv, "vendor requires a PO number and none was read from the invoice")
	}

	from, to := CandidateWindow(inv.InvoiceDate, r.windowDays)
	orders, err := r.orders.FindCandidateOrders(ctx, CandidateQuery{
		VendorID: inv.VendorID,
		VenueID:  inv.VenueID,
		From:     from,
		To:       to,
		PONumber: poNumber,
	})
	if err != nil {
		return PurchaseOrder{}, NewReconcileError(CodeStoreError, "failed to find candidate orders", err)
	}
	if len(orders) == 0 {
		return PurchaseOrder{}, noMatchingPO(inv, "no open purchase order found for invoice")
	}
	return orders[0], nil
}

func noMatchingPO(inv *Invoice, msg string) *ReconcileError {
	e := NewReconcileError(CodeNoMatchingPO, fmt.Sprintf("invoice %d: %s", inv.ID, msg), nil)
	e.Fallback = FallbackNonPOInvoice
	return e
}

// ocrPONumber returns the trimmed OCR PO number, or nil when absent or blank.
func ocrPONumber(inv *Invoice) *string {
	if inv.OCRPONumber == nil {
		return nil
	}
	s := strings.TrimSpace(*inv.OCRPONumber)
	if s == "" {
		return nil
	}
	return &s
}

func receiptLines(results []MatchResult) []ReceiptLine {
	var lines []ReceiptLine
	for _, m := range results {
		if !m.Matched() {
			continue
		}
		rl := ReceiptLine{
			LineNumber:          m.LineNumber,
			InvoiceLineID:       m.InvoiceLineID,
			POItemID:            *m.POItemID,
			ItemID:              m.ItemID,
			QuantityReceived:    m.QuantityToReceive,
			UnitCost:            m.UnitCost,
			MatchConfidence:     m.Confidence,
			PriceVariancePct:    RoundPct(m.PriceVariancePct),
			QuantityVariancePct: RoundPct(m.QuantityVariancePct),
		}
		if len(m.Notes) > 0 {
			notes := strings.Join(m.Notes, "; ")
			rl.VarianceNotes = &notes
		}
		lines = append(lines, rl)
	}
	return lines
}

// recordUnmapped upserts every unmapped line into the vendor backlog. Failures are logged.
func (r *Reconciler) recordUnmapped(ctx context.Context, log *zap.Logger, inv *Invoice, results []MatchResult) {
	for _, m := range results {
		if m.Matched() {
			continue
		}
		_, err := r.unmapped.UpsertUnmappedItem(ctx, UnmappedItemInput{
			VendorID:              inv.VendorID,
			NormalizedDescription: NormalizeDescription(m.Description),
			RawDescription:        m.Description,
			InvoiceID:             inv.ID,
			UnitCost:              m.UnitCost,
		})
		if err != nil {
			log.Warn("failed to record unmapped item",
				zap.Int("invoice_line_id", m.InvoiceLineID),
				zap.Error(err),
			)
		}
	}
}

// recordVariances writes the audit summaries when severity is not none. Failures are logged.
func (r *Reconciler) recordVariances(ctx context.Context, log *zap.Logger, invoiceID int, p *plan) {
	records := BuildVarianceRecords(invoiceID, p.results, p.summary.Severity)
	if len(records) == 0 {
		return
	}
	if err := r.variances.CreateVarianceRecords(ctx, records); err != nil {
		log.Warn("failed to record variances", zap.Int("records", len(records)), zap.Error(err))
	}
}

func (p *plan) result() *ReconciliationResult {
	res := &ReconciliationResult{
		InvoiceID:       p.invoice.ID,
		PurchaseOrderID: p.order.ID,
		PONumber:        p.order.OrderNumber,
		AutoApproved:    p.approved,
		Summary:         p.summary.Rounded(),
		Lines:           make([]MatchResult, 0, len(p.results)),
		UnmappedLineIDs: []int{},
	}
	for _, m := range p.results {
		res.Lines = append(res.Lines, m.Rounded())
		if m.Matched() {
			res.MatchedLines++
		} else {
			res.UnmappedLines++
			res.UnmappedLineIDs = append(res.UnmappedLineIDs, m.InvoiceLineID)
		}
	}
	return res
}
