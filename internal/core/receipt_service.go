package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type receiptService struct {
	pool *pgxpool.Pool
}

// NewReceiptService constructs a ReceiptStore backed by PostgreSQL.
func NewReceiptService(pool *pgxpool.Pool) ReceiptStore {
	return &receiptService{pool: pool}
}

func (s *receiptService) FindAutoReceipt(ctx context.Context, invoiceID int) (*Receipt, error) {
	var r Receipt
	err := s.pool.QueryRow(ctx, `
		SELECT id, purchase_order_id, vendor_id, venue_id, invoice_id, auto_generated, status, created_at
		FROM receipts
		WHERE invoice_id = $1 AND auto_generated = true`,
		invoiceID,
	).Scan(&r.ID, &r.PurchaseOrderID, &r.VendorID, &r.VenueID, &r.InvoiceID,
		&r.AutoGenerated, &r.Status, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up receipt for invoice %d: %w", invoiceID, err)
	}
	return &r, nil
}

// WriteReconciliation persists the receipt header, its lines and the invoice update
// atomically. Lines are inserted in the order given.
func (s *receiptService) WriteReconciliation(ctx context.Context, w ReconciliationWrite) (*Receipt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, NewReconcileError(CodeStoreError, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	r := Receipt{
		PurchaseOrderID: w.PurchaseOrderID,
		VendorID:        w.VendorID,
		VenueID:         w.VenueID,
		InvoiceID:       w.InvoiceID,
		AutoGenerated:   true,
		Status:          ReceiptStatusAutoGenerated,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO receipts (purchase_order_id, vendor_id, venue_id, invoice_id, auto_generated, status)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING id, created_at`,
		r.PurchaseOrderID, r.VendorID, r.VenueID, r.InvoiceID, r.Status,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, NewReconcileError(CodeAlreadyReconciled,
				fmt.Sprintf("invoice %d already has an auto-generated receipt", w.InvoiceID), err)
		}
		return nil, NewReconcileError(CodeReceiptCreateFailed, "failed to create receipt", err)
	}

	for _, line := range w.Lines {
		line.ReceiptID = r.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO receipt_lines (receipt_id, line_number, invoice_line_id, po_item_id, item_id,
			                           quantity_received, unit_cost, match_confidence,
			                           price_variance_pct, quantity_variance_pct, variance_notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			line.ReceiptID, line.LineNumber, line.InvoiceLineID, line.POItemID, line.ItemID,
			line.QuantityReceived, line.UnitCost, string(line.MatchConfidence),
			line.PriceVariancePct, line.QuantityVariancePct, line.VarianceNotes,
		).Scan(&line.ID)
		if err != nil {
			return nil, NewReconcileError(CodeReceiptLinesFailed,
				fmt.Sprintf("failed to create receipt line for invoice line %d", line.InvoiceLineID), err)
		}
		r.Lines = append(r.Lines, line)
	}

	if err := updateInvoiceMatchTx(ctx, tx, w.InvoiceID, w.InvoiceUpdate); err != nil {
		return nil, NewReconcileError(CodeInvoiceUpdateFailed, "failed to update invoice", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, NewReconcileError(CodeStoreError, "failed to commit reconciliation", err)
	}
	return &r, nil
}
