package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, caller-visible reconciliation failure code.
type ErrorCode string

const (
	CodeInvoiceNotFound          ErrorCode = "INVOICE_NOT_FOUND"
	CodeNoMatchingPO             ErrorCode = "NO_MATCHING_PO"
	CodeReceiptCreateFailed      ErrorCode = "RECEIPT_CREATE_FAILED"
	CodeReceiptLinesFailed       ErrorCode = "RECEIPT_LINES_FAILED"
	CodeInvoiceUpdateFailed      ErrorCode = "INVOICE_UPDATE_FAILED"
	CodeAlreadyReconciled        ErrorCode = "ALREADY_RECONCILED"
	CodeReconciliationInProgress ErrorCode = "RECONCILIATION_IN_PROGRESS"
	CodeStoreError               ErrorCode = "STORE_ERROR"
)

// ReconcileError carries a stable code and an HTTP-equivalent status so transport
// layers can route failures without inspecting messages.
type ReconcileError struct {
	Code     ErrorCode
	Message  string
	Status   int
	Fallback string // routing hint for the caller, e.g. "non_po_invoice"
	Err      error
}

func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// NewReconcileError builds a ReconcileError whose Status is derived from code.
func NewReconcileError(code ErrorCode, message string, err error) *ReconcileError {
	return &ReconcileError{
		Code:    code,
		Message: message,
		Status:  statusForCode(code),
		Err:     err,
	}
}

// AsReconcileError unwraps err to a *ReconcileError if one is in its chain.
func AsReconcileError(err error) (*ReconcileError, bool) {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func statusForCode(code ErrorCode) int {
	switch code {
	case CodeInvoiceNotFound, CodeNoMatchingPO:
		return http.StatusNotFound
	case CodeAlreadyReconciled, CodeReconciliationInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
