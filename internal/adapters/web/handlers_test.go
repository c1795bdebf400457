package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-reconciler/internal/adapters/web"
	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/core"
)

type fakeService struct {
	reconcileErr error
	lastReq      app.UnmappedItemsRequest
	reconciled   []int
	previewed    []int
}

func (f *fakeService) ReconcileInvoice(_ context.Context, id int) (*core.ReconciliationResult, error) {
	f.reconciled = append(f.reconciled, id)
	if f.reconcileErr != nil {
		return nil, f.reconcileErr
	}
	receiptID := 900
	return &core.ReconciliationResult{InvoiceID: id, ReceiptID: &receiptID, PONumber: "PO-1", UnmappedLineIDs: []int{}}, nil
}

func (f *fakeService) PreviewReconciliation(_ context.Context, id int) (*core.ReconciliationResult, error) {
	f.previewed = append(f.previewed, id)
	return &core.ReconciliationResult{InvoiceID: id, DryRun: true, UnmappedLineIDs: []int{}}, nil
}

func (f *fakeService) ListUnmappedItems(_ context.Context, req app.UnmappedItemsRequest) (*app.UnmappedItemsResult, error) {
	f.lastReq = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &app.UnmappedItemsResult{
		VendorID: req.VendorID,
		Status:   req.Status,
		Items:    []core.UnmappedItem{{ID: 1, VendorID: req.VendorID, NormalizedDescription: "fuel surcharge", OccurrenceCount: 3}},
	}, nil
}

func (f *fakeService) ExportUnmappedItems(_ context.Context, req app.UnmappedItemsRequest, w io.Writer) (int, error) {
	f.lastReq = req
	if err := req.Validate(); err != nil {
		return 0, err
	}
	_, err := io.WriteString(w, "xlsx-bytes")
	return 1, err
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	h := web.NewHandler(&fakeService{}, "", nil)
	rec := serve(t, h, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReconcileInvoice_Created(t *testing.T) {
	svc := &fakeService{}
	h := web.NewHandler(svc, "", nil)

	rec := serve(t, h, http.MethodPost, "/api/invoices/42/reconcile")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 42, body["invoice_id"])
	assert.EqualValues(t, 900, body["receipt_id"])
	assert.Equal(t, []int{42}, svc.reconciled)
}

func TestReconcileInvoice_InvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-3"} {
		t.Run(id, func(t *testing.T) {
			svc := &fakeService{}
			rec := serve(t, web.NewHandler(svc, "", nil), http.MethodPost, "/api/invoices/"+id+"/reconcile")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_ID", decodeBody(t, rec)["code"])
			assert.Empty(t, svc.reconciled)
		})
	}
}

func TestReconcileInvoice_ErrorMapping(t *testing.T) {
	noPO := core.NewReconcileError(core.CodeNoMatchingPO, "no open purchase order found", nil)
	noPO.Fallback = core.FallbackNonPOInvoice

	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		fallback any
		message  string
	}{
		{"no matching po", noPO, http.StatusNotFound, "NO_MATCHING_PO", "non_po_invoice", "no open purchase order found"},
		{"not found", core.NewReconcileError(core.CodeInvoiceNotFound, "invoice 7 not found", nil),
			http.StatusNotFound, "INVOICE_NOT_FOUND", nil, "invoice 7 not found"},
		{"already reconciled", core.NewReconcileError(core.CodeAlreadyReconciled, "already reconciled", nil),
			http.StatusConflict, "ALREADY_RECONCILED", nil, "already reconciled"},
		{"in progress", core.NewReconcileError(core.CodeReconciliationInProgress, "busy", core.ErrLockNotObtained),
			http.StatusConflict, "RECONCILIATION_IN_PROGRESS", nil, "busy"},
		{"write failure", fmt.Errorf("wrapped: %w",
			core.NewReconcileError(core.CodeReceiptLinesFailed, "failed to create receipt line", errors.New("pq: secret detail"))),
			http.StatusInternalServerError, "RECEIPT_LINES_FAILED", nil, "failed to create receipt line"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", nil, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := web.NewHandler(&fakeService{reconcileErr: tt.err}, "", nil)
			rec := serve(t, h, http.MethodPost, "/api/invoices/7/reconcile")

			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.fallback, body["fallback"])
			assert.Equal(t, tt.message, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestPreviewReconciliation(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, web.NewHandler(svc, "", nil), http.MethodGet, "/api/invoices/5/reconcile/preview")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["dry_run"])
	assert.Equal(t, []int{5}, svc.previewed)
	assert.Empty(t, svc.reconciled)
}

func TestListUnmappedItems(t *testing.T) {
	svc := &fakeService{}
	h := web.NewHandler(svc, "", nil)

	rec := serve(t, h, http.MethodGet, "/api/vendors/3/unmapped-items?status=pending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.UnmappedItemsRequest{VendorID: 3, Status: "pending"}, svc.lastReq)
	items := decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "fuel surcharge", items[0].(map[string]any)["normalized_description"])

	rec = serve(t, h, http.MethodGet, "/api/vendors/3/unmapped-items?status=archived")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["code"])
}

func TestExportUnmappedItems(t *testing.T) {
	h := web.NewHandler(&fakeService{}, "", nil)

	rec := serve(t, h, http.MethodGet, "/api/vendors/3/unmapped-items/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "unmapped_items_vendor_3.xlsx")
	assert.Equal(t, "xlsx-bytes", rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/api/vendors/3/unmapped-items/export?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCORS(t *testing.T) {
	h := web.NewHandler(&fakeService{}, "https://ops.example.com, https://admin.example.com", nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/invoices/1/reconcile", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_CallerSupplied(t *testing.T) {
	h := web.NewHandler(&fakeService{}, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
}
