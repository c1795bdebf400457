package core_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-reconciler/internal/core"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeInvoices struct {
	invoices map[int]*core.Invoice
	err      error
}

func (f *fakeInvoices) GetInvoice(_ context.Context, id int) (*core.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, core.ErrNotFound)
	}
	return inv, nil
}

type fakeOrders struct {
	orders  []core.PurchaseOrder
	err     error
	queries []core.CandidateQuery
}

func (f *fakeOrders) FindCandidateOrders(_ context.Context, q core.CandidateQuery) ([]core.PurchaseOrder, error) {
	f.queries = append(f.queries, q)
	return f.orders, f.err
}

type fakeTolerances struct {
	byVendor map[int]*core.VendorTolerance
	err      error
}

func (f *fakeTolerances) GetVendorTolerance(_ context.Context, vendorID int) (*core.VendorTolerance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byVendor[vendorID], nil
}

type fakeReceipts struct {
	existing *core.Receipt
	findErr  error
	writeErr error
	writes   []core.ReconciliationWrite
}

func (f *fakeReceipts) FindAutoReceipt(context.Context, int) (*core.Receipt, error) {
	return f.existing, f.findErr
}

func (f *fakeReceipts) WriteReconciliation(_ context.Context, w core.ReconciliationWrite) (*core.Receipt, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.writes = append(f.writes, w)
	return &core.Receipt{ID: 500 + len(f.writes), InvoiceID: w.InvoiceID, Lines: w.Lines}, nil
}

type fakeUnmapped struct {
	inputs []core.UnmappedItemInput
	err    error
}

func (f *fakeUnmapped) UpsertUnmappedItem(_ context.Context, in core.UnmappedItemInput) (*core.UnmappedItem, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &core.UnmappedItem{VendorID: in.VendorID, NormalizedDescription: in.NormalizedDescription, OccurrenceCount: 1}, nil
}

func (f *fakeUnmapped) ListUnmappedItems(context.Context, int, string) ([]core.UnmappedItem, error) {
	return nil, nil
}

type fakeVariances struct {
	records []core.InvoiceVariance
	err     error
}

func (f *fakeVariances) CreateVarianceRecords(_ context.Context, records []core.InvoiceVariance) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquired []string
	err      error
}

func (f *fakeLocker) Acquire(_ context.Context, key string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.held[key] {
		return nil, core.ErrLockNotObtained
	}
	f.held[key] = true
	f.acquired = append(f.acquired, key)
	return func() { delete(f.held, key) }, nil
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	invoices   *fakeInvoices
	orders     *fakeOrders
	tolerances *fakeTolerances
	receipts   *fakeReceipts
	unmapped   *fakeUnmapped
	variances  *fakeVariances
	locker     *fakeLocker
	defaultTol core.VendorTolerance
}

var invoiceDate = time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

// newFixture seeds invoice 1 with an exact line, a fuzzy line and an unmatched line
// against PO-1001.
func newFixture() *fixture {
	inv := &core.Invoice{
		ID: 1, VendorID: 7, VenueID: 3, InvoiceNumber: "INV-88", InvoiceDate: invoiceDate,
		TotalAmount: dec("140.00"),
		Lines: []core.InvoiceLine{
			{ID: 11, LineNumber: 1, ItemID: intPtr(42), Description: "Roma Tomatoes", Quantity: dec("10"), UnitCost: dec("5.00")},
			{ID: 12, LineNumber: 2, Description: "Green Apples 5lb", Quantity: dec("6"), UnitCost: dec("10.00")},
			{ID: 13, LineNumber: 3, Description: "  Fuel Surcharge ", Quantity: dec("1"), UnitCost: dec("30.00")},
		},
	}
	po := core.PurchaseOrder{
		ID: 900, OrderNumber: "PO-1001", VendorID: 7, VenueID: 3, OrderDate: invoiceDate.AddDate(0, 0, -2),
		Status: core.POStatusOrdered,
		Items: []core.POItem{
			{ID: 1, OrderID: 900, ItemID: intPtr(42), Name: "Tomatoes, Roma", RemainingQuantity: dec("10"), UnitPrice: dec("5.00")},
			{ID: 2, OrderID: 900, ItemID: intPtr(55), Name: "Apples, Green", RemainingQuantity: dec("6"), UnitPrice: dec("10.00")},
		},
	}
	return &fixture{
		invoices:   &fakeInvoices{invoices: map[int]*core.Invoice{1: inv}},
		orders:     &fakeOrders{orders: []core.PurchaseOrder{po}},
		tolerances: &fakeTolerances{byVendor: map[int]*core.VendorTolerance{}},
		receipts:   &fakeReceipts{},
		unmapped:   &fakeUnmapped{},
		variances:  &fakeVariances{},
		locker:     &fakeLocker{held: map[string]bool{}},
		defaultTol: core.DefaultVendorTolerance(),
	}
}

func (f *fixture) reconciler() *core.Reconciler {
	return core.NewReconciler(core.ReconcilerDeps{
		Invoices:   f.invoices,
		Orders:     f.orders,
		Tolerances: core.NewToleranceResolver(f.tolerances, f.defaultTol),
		Receipts:   f.receipts,
		Unmapped:   f.unmapped,
		Variances:  f.variances,
		Locker:     f.locker,
	})
}

func requireCode(t *testing.T, err error, code core.ErrorCode) *core.ReconcileError {
	t.Helper()
	require.Error(t, err)
	re, ok := core.AsReconcileError(err)
	require.True(t, ok, "expected *ReconcileError, got %T: %v", err, err)
	assert.Equal(t, code, re.Code)
	return re
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestReconcileInvoice_MixedLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.reconciler().ReconcileInvoice(ctx, 1)
	require.NoError(t, err)

	require.NotNil(t, res.ReceiptID)
	assert.Equal(t, 501, *res.ReceiptID)
	assert.Equal(t, "PO-1001", res.PONumber)
	assert.Equal(t, 900, res.PurchaseOrderID)
	assert.Equal(t, 2, res.MatchedLines)
	assert.Equal(t, 1, res.UnmappedLines)
	assert.Equal(t, []int{13}, res.UnmappedLineIDs)
	assert.False(t, res.DryRun)

	// 50 + 60 of 140 matched.
	assert.True(t, res.Summary.MatchPct.Equal(dec("78.5714")), "got %s", res.Summary.MatchPct)
	assert.Equal(t, core.SeverityNone, res.Summary.Severity)
	assert.Equal(t, core.ConfidenceLow, res.Summary.OverallConfidence)
	assert.False(t, res.AutoApproved)

	require.Len(t, res.Lines, 3)
	assert.Equal(t, core.ConfidenceHigh, res.Lines[0].Confidence)
	assert.Equal(t, core.ConfidenceMedium, res.Lines[1].Confidence)
	assert.Equal(t, core.ConfidenceUnmapped, res.Lines[2].Confidence)

	require.Len(t, f.receipts.writes, 1)
	w := f.receipts.writes[0]
	assert.Equal(t, 1, w.InvoiceID)
	assert.Equal(t, 900, w.PurchaseOrderID)
	assert.Equal(t, 7, w.VendorID)
	assert.Equal(t, 3, w.VenueID)
	require.Len(t, w.Lines, 2)
	assert.Equal(t, 11, w.Lines[0].InvoiceLineID)
	assert.Equal(t, 1, w.Lines[0].POItemID)
	assert.Equal(t, 12, w.Lines[1].InvoiceLineID)
	assert.Equal(t, 2, w.Lines[1].POItemID)
	assert.Equal(t, 900, w.InvoiceUpdate.PurchaseOrderID)
	assert.Equal(t, core.ConfidenceLow, w.InvoiceUpdate.Confidence)
	assert.True(t, w.InvoiceUpdate.TotalVariancePct.Equal(dec("21.4286")))

	require.Len(t, f.unmapped.inputs, 1)
	assert.Equal(t, core.UnmappedItemInput{
		VendorID:              7,
		NormalizedDescription: "fuel surcharge",
		RawDescription:        "  Fuel Surcharge ",
		InvoiceID:             1,
		UnitCost:              dec("30.00"),
	}, f.unmapped.inputs[0])

	assert.Empty(t, f.variances.records)
	assert.Equal(t, []string{core.LockKey(1)}, f.locker.acquired)
	assert.Empty(t, f.locker.held, "lock must be released")
}

func TestReconcileInvoice_EveryLineIsReceiptedOrUnmapped(t *testing.T) {
	f := newFixture()
	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)

	receipted := map[int]bool{}
	for _, l := range f.receipts.writes[0].Lines {
		receipted[l.InvoiceLineID] = true
		assert.NotEqual(t, core.ConfidenceUnmapped, l.MatchConfidence)
	}
	unmapped := map[string]bool{}
	for _, in := range f.unmapped.inputs {
		unmapped[in.NormalizedDescription] = true
	}
	for _, line := range f.invoices.invoices[1].Lines {
		inReceipt := receipted[line.ID]
		inBacklog := unmapped[core.NormalizeDescription(line.Description)]
		assert.True(t, inReceipt != inBacklog, "line %d receipted=%v unmapped=%v", line.ID, inReceipt, inBacklog)
	}
}

func TestReconcileInvoice_ExactMatchAutoApproved(t *testing.T) {
	f := newFixture()
	inv := f.invoices.invoices[1]
	inv.Lines = inv.Lines[:1]
	inv.TotalAmount = dec("50.00")

	res, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Summary.MatchPct.Equal(dec("100")))
	assert.Equal(t, core.ConfidenceHigh, res.Summary.OverallConfidence)
	assert.True(t, res.AutoApproved)
	assert.True(t, f.receipts.writes[0].InvoiceUpdate.AutoApproved)
}

func TestReconcileInvoice_CriticalVarianceRecorded(t *testing.T) {
	f := newFixture()
	inv := f.invoices.invoices[1]
	inv.Lines = []core.InvoiceLine{
		{ID: 11, LineNumber: 1, ItemID: intPtr(42), Description: "Roma Tomatoes", Quantity: dec("10"), UnitCost: dec("6.00")},
	}
	inv.TotalAmount = dec("60.00")

	res, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, core.SeverityCritical, res.Summary.Severity)
	assert.False(t, res.AutoApproved)

	require.Len(t, f.variances.records, 1)
	assert.Equal(t, core.VarianceTypePrice, f.variances.records[0].Type)
	assert.Equal(t, core.SeverityCritical, f.variances.records[0].Severity)
	assert.Equal(t, 1, f.variances.records[0].InvoiceID)
}

func TestReconcileInvoice_NoMatchingPO(t *testing.T) {
	f := newFixture()
	f.orders.orders = nil

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	re := requireCode(t, err, core.CodeNoMatchingPO)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Equal(t, core.FallbackNonPOInvoice, re.Fallback)
	assert.Empty(t, f.receipts.writes)
	assert.Empty(t, f.unmapped.inputs)
	assert.Empty(t, f.locker.held)
}

func TestReconcileInvoice_InvoiceNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.reconciler().ReconcileInvoice(context.Background(), 404)
	re := requireCode(t, err, core.CodeInvoiceNotFound)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReconcileInvoice_CandidateQuery(t *testing.T) {
	f := newFixture()
	f.invoices.invoices[1].OCRPONumber = strPtr("  PO-1001 ")

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, f.orders.queries, 1)
	q := f.orders.queries[0]
	assert.Equal(t, 7, q.VendorID)
	assert.Equal(t, 3, q.VenueID)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), q.From)
	assert.Equal(t, time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC), q.To)
	require.NotNil(t, q.PONumber)
	assert.Equal(t, "PO-1001", *q.PONumber)
}

func TestReconcileInvoice_BlankOCRNumberIgnored(t *testing.T) {
	f := newFixture()
	f.invoices.invoices[1].OCRPONumber = strPtr("   ")

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, f.orders.queries[0].PONumber)
}

func TestReconcileInvoice_VendorRequiresPONumber(t *testing.T) {
	f := newFixture()
	tol := core.DefaultVendorTolerance()
	tol.RequirePONumber = true
	f.tolerances.byVendor[7] = &tol

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	re := requireCode(t, err, core.CodeNoMatchingPO)
	assert.Equal(t, core.FallbackNonPOInvoice, re.Fallback)
	assert.Empty(t, f.orders.queries, "orders must not be searched without a PO number")
}

func TestReconcileInvoice_FirstCandidateWins(t *testing.T) {
	f := newFixture()
	older := f.orders.orders[0]
	older.ID, older.OrderNumber = 800, "PO-0999"
	f.orders.orders = append(f.orders.orders, older)

	r := f.reconciler()
	for i := 0; i < 2; i++ {
		res, err := r.Preview(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "PO-1001", res.PONumber)
	}
}

func TestReconcileInvoice_AlreadyReconciled(t *testing.T) {
	f := newFixture()
	f.receipts.existing = &core.Receipt{ID: 77, InvoiceID: 1, AutoGenerated: true}

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	re := requireCode(t, err, core.CodeAlreadyReconciled)
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Empty(t, f.receipts.writes)
	assert.Empty(t, f.orders.queries)
}

func TestReconcileInvoice_LockHeld(t *testing.T) {
	f := newFixture()
	f.locker.held[core.LockKey(1)] = true

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	re := requireCode(t, err, core.CodeReconciliationInProgress)
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.ErrorIs(t, err, core.ErrLockNotObtained)
	assert.Empty(t, f.receipts.writes)
}

func TestReconcileInvoice_LockBackendError(t *testing.T) {
	f := newFixture()
	f.locker.err = errors.New("redis down")

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	requireCode(t, err, core.CodeStoreError)
}

func TestReconcileInvoice_WriteFailureSkipsAuditRecords(t *testing.T) {
	for _, code := range []core.ErrorCode{
		core.CodeReceiptCreateFailed, core.CodeReceiptLinesFailed, core.CodeInvoiceUpdateFailed,
	} {
		t.Run(string(code), func(t *testing.T) {
			f := newFixture()
			f.receipts.writeErr = core.NewReconcileError(code, "boom", errors.New("db"))

			_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
			re := requireCode(t, err, code)
			assert.Equal(t, http.StatusInternalServerError, re.Status)
			assert.Empty(t, f.unmapped.inputs)
			assert.Empty(t, f.variances.records)
			assert.Empty(t, f.locker.held)
		})
	}
}

func TestReconcileInvoice_UncodedWriteFailure(t *testing.T) {
	f := newFixture()
	f.receipts.writeErr = errors.New("connection reset")

	_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	requireCode(t, err, core.CodeReceiptCreateFailed)
}

func TestReconcileInvoice_AuditFailuresAreBestEffort(t *testing.T) {
	f := newFixture()
	f.invoices.invoices[1].Lines[0].UnitCost = dec("6.00") // 20% price variance
	f.unmapped.err = errors.New("unmapped insert failed")
	f.variances.err = errors.New("variance insert failed")

	res, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, res.ReceiptID)
	assert.Len(t, f.unmapped.inputs, 1)
	assert.Len(t, f.receipts.writes, 1)
}

func TestReconcileInvoice_StoreErrors(t *testing.T) {
	t.Run("invoice", func(t *testing.T) {
		f := newFixture()
		f.invoices.err = errors.New("timeout")
		_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
		requireCode(t, err, core.CodeStoreError)
	})
	t.Run("tolerance", func(t *testing.T) {
		f := newFixture()
		f.tolerances.err = errors.New("timeout")
		_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
		requireCode(t, err, core.CodeStoreError)
	})
	t.Run("orders", func(t *testing.T) {
		f := newFixture()
		f.orders.err = errors.New("timeout")
		_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
		requireCode(t, err, core.CodeStoreError)
	})
	t.Run("existing receipt", func(t *testing.T) {
		f := newFixture()
		f.receipts.findErr = errors.New("timeout")
		_, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
		requireCode(t, err, core.CodeStoreError)
	})
}

func TestReconcileInvoice_InjectedDefaultTolerance(t *testing.T) {
	f := newFixture()
	f.defaultTol.AutoApprovalThresholdPct = dec("75")

	res, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.AutoApproved, "78.57%% meets a 75%% default threshold")
}

func TestReconcileInvoice_VendorToleranceOverridesDefault(t *testing.T) {
	f := newFixture()
	f.defaultTol.AutoApprovalThresholdPct = dec("75")
	vendorTol := core.DefaultVendorTolerance()
	vendorTol.AutoApprovalThresholdPct = dec("95")
	f.tolerances.byVendor[7] = &vendorTol

	res, err := f.reconciler().ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.AutoApproved)
}

func TestPreview_WritesNothing(t *testing.T) {
	f := newFixture()
	f.receipts.existing = &core.Receipt{ID: 77}
	r := f.reconciler()

	first, err := r.Preview(context.Background(), 1)
	require.NoError(t, err)
	second, err := r.Preview(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, first.DryRun)
	assert.Nil(t, first.ReceiptID)
	assert.Equal(t, first, second)
	assert.Empty(t, f.receipts.writes)
	assert.Empty(t, f.unmapped.inputs)
	assert.Empty(t, f.variances.records)
	assert.Empty(t, f.locker.acquired)
}

func TestPreview_NoMatchingPO(t *testing.T) {
	f := newFixture()
	f.orders.orders = nil

	_, err := f.reconciler().Preview(context.Background(), 1)
	requireCode(t, err, core.CodeNoMatchingPO)
}

func TestReconcileInvoice_WithoutLocker(t *testing.T) {
	f := newFixture()
	r := core.NewReconciler(core.ReconcilerDeps{
		Invoices:   f.invoices,
		Orders:     f.orders,
		Tolerances: core.NewToleranceResolver(f.tolerances, f.defaultTol),
		Receipts:   f.receipts,
		Unmapped:   f.unmapped,
		Variances:  f.variances,
	})
	_, err := r.ReconcileInvoice(context.Background(), 1)
	require.NoError(t, err)
}

func strPtr(s string) *string { return &s }
