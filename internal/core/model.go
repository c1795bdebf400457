package core

import (
	"context"
	"errors"
)

// Confidence expresses how certain the matcher is that an invoice line belongs to a PO item.
type Confidence string

const (
	ConfidenceHigh     Confidence = "high"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceLow      Confidence = "low"
	ConfidenceUnmapped Confidence = "unmapped"
)

// Severity is the aggregate risk classification of an invoice's variances.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// VarianceType identifies which dimension an InvoiceVariance summarises.
type VarianceType string

const (
	VarianceTypePrice    VarianceType = "price"
	VarianceTypeQuantity VarianceType = "quantity"
)

// MatchingMode is informational; the matcher behaves identically in every mode.
type MatchingMode string

const (
	MatchingModeStrict   MatchingMode = "strict"
	MatchingModeFlexible MatchingMode = "flexible"
)

const (
	ReceiptStatusAutoGenerated = "auto_generated"

	ReviewStatusPending = "pending"
	ReviewStatusMapped  = "mapped"
	ReviewStatusIgnored = "ignored"

	POStatusOrdered = "ordered"
	POStatusPending = "pending"

	FallbackNonPOInvoice = "non_po_invoice"
)

// ErrNotFound is wrapped by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrLockNotObtained is returned by a Locker when another holder owns the key.
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker serialises reconciliation runs for the same invoice across processes.
type Locker interface {
	// Acquire obtains key or returns ErrLockNotObtained. release must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}
