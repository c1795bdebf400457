package core

import (
	"context"
	"time"
)

// InvoiceVariance is an audit summary of one variance dimension on an invoice.
type InvoiceVariance struct {
	ID            int
	InvoiceID     int
	Type          VarianceType
	Severity      Severity // warning or critical
	AffectedLines int
	Description   string
	CreatedAt     time.Time
}

// VarianceStore persists variance summaries for audit and reporting.
type VarianceStore interface {
	CreateVarianceRecords(ctx context.Context, records []InvoiceVariance) error
}
