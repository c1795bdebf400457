package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type invoiceService struct {
	pool *pgxpool.Pool
}

// NewInvoiceService constructs an InvoiceStore backed by PostgreSQL.
func NewInvoiceService(pool *pgxpool.Pool) InvoiceStore {
	return &invoiceService{pool: pool}
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID int) (*Invoice, error) {
	var inv Invoice
	err := s.pool.QueryRow(ctx, `
		SELECT id, vendor_id, venue_id, invoice_number, invoice_date, total_amount, ocr_po_number,
		       purchase_order_id, match_confidence, auto_approved, total_variance_pct,
		       variance_severity, reconciled_at, created_at
		FROM invoices
		WHERE id = $1`,
		invoiceID,
	).Scan(
		&inv.ID, &inv.VendorID, &inv.VenueID, &inv.InvoiceNumber, &inv.InvoiceDate,
		&inv.TotalAmount, &inv.OCRPONumber,
		&inv.PurchaseOrderID, &inv.MatchConfidence, &inv.AutoApproved, &inv.TotalVariancePct,
		&inv.VarianceSeverity, &inv.ReconciledAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d: %w", invoiceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get invoice %d: %w", invoiceID, err)
	}

	lines, err := s.fetchLines(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

func (s *invoiceService) fetchLines(ctx context.Context, invoiceID int) ([]InvoiceLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, line_number, item_id, description, quantity, unit_cost
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_number, id`,
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNumber, &l.ItemID, &l.Description,
			&l.Quantity, &l.UnitCost); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// updateInvoiceMatchTx writes the reconciliation outcome onto the invoice inside tx.
func updateInvoiceMatchTx(ctx context.Context, tx pgx.Tx, invoiceID int, u InvoiceMatchUpdate) error {
	tag, err := tx.Exec(ctx, `
		UPDATE invoices
		SET purchase_order_id = $1,
		    match_confidence = $2,
		    auto_approved = $3,
		    total_variance_pct = $4,
		    variance_severity = $5,
		    reconciled_at = NOW()
		WHERE id = $6`,
		u.PurchaseOrderID, string(u.Confidence), u.AutoApproved, u.TotalVariancePct,
		string(u.Severity), invoiceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice %d: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d: %w", invoiceID, ErrNotFound)
	}
	return nil
}
