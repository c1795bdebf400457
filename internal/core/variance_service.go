package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type varianceService struct {
	pool *pgxpool.Pool
}

// NewVarianceService constructs a VarianceStore backed by PostgreSQL.
func NewVarianceService(pool *pgxpool.Pool) VarianceStore {
	return &varianceService{pool: pool}
}

// CreateVarianceRecords inserts all records or none.
func (s *varianceService) CreateVarianceRecords(ctx context.Context, records []InvoiceVariance) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_variances (invoice_id, variance_type, severity, affected_lines, description)
			VALUES ($1, $2, $3, $4, $5)`,
			v.InvoiceID, string(v.Type), string(v.Severity), v.AffectedLines, v.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s variance for invoice %d: %w", v.Type, v.InvoiceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit variance records: %w", err)
	}
	return nil
}
