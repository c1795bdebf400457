package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type unmappedItemService struct {
	pool *pgxpool.Pool
}

// NewUnmappedItemService constructs an UnmappedItemStore backed by PostgreSQL.
func NewUnmappedItemService(pool *pgxpool.Pool) UnmappedItemStore {
	return &unmappedItemService{pool: pool}
}

const unmappedItemColumns = `id, vendor_id, normalized_description, raw_description, last_invoice_id,
	last_unit_cost, occurrence_count, review_status, first_seen_at, last_seen_at`

func (s *unmappedItemService) UpsertUnmappedItem(ctx context.Context, in UnmappedItemInput) (*UnmappedItem, error) {
	var u UnmappedItem
	err := s.pool.QueryRow(ctx, `
		INSERT INTO unmapped_items (vendor_id, normalized_description, raw_description,
		                            last_invoice_id, last_unit_cost, occurrence_count, review_status)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (vendor_id, normalized_description) DO UPDATE
		SET occurrence_count = unmapped_items.occurrence_count + 1,
		    raw_description  = EXCLUDED.raw_description,
		    last_invoice_id  = EXCLUDED.last_invoice_id,
		    last_unit_cost   = EXCLUDED.last_unit_cost,
		    last_seen_at     = NOW()
		RETURNING `+unmappedItemColumns,
		in.VendorID, in.NormalizedDescription, in.RawDescription, in.InvoiceID, in.UnitCost,
		ReviewStatusPending,
	).Scan(
		&u.ID, &u.VendorID, &u.NormalizedDescription, &u.RawDescription, &u.LastInvoiceID,
		&u.LastUnitCost, &u.OccurrenceCount, &u.ReviewStatus, &u.FirstSeenAt, &u.LastSeenAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert unmapped item %q for vendor %d: %w",
			in.NormalizedDescription, in.VendorID, err)
	}
	return &u, nil
}

func (s *unmappedItemService) ListUnmappedItems(ctx context.Context, vendorID int, status string) ([]UnmappedItem, error) {
	query := `SELECT ` + unmappedItemColumns + `
		FROM unmapped_items
		WHERE vendor_id = $1`
	args := []any{vendorID}
	if status != "" {
		query += " AND review_status = $2"
		args = append(args, status)
	}
	query += " ORDER BY occurrence_count DESC, last_seen_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmapped items for vendor %d: %w", vendorID, err)
	}
	defer rows.Close()

	var items []UnmappedItem
	for rows.Next() {
		var u UnmappedItem
		if err := rows.Scan(
			&u.ID, &u.VendorID, &u.NormalizedDescription, &u.RawDescription, &u.LastInvoiceID,
			&u.LastUnitCost, &u.OccurrenceCount, &u.ReviewStatus, &u.FirstSeenAt, &u.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan unmapped item: %w", err)
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
