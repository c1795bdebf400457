package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"invoice-reconciler/internal/app"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc app.ApplicationService
	log *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Post("/api/invoices/{id}/reconcile", h.reconcileInvoice)
		r.Get("/api/invoices/{id}/reconcile/preview", h.previewReconciliation)

		r.Get("/api/vendors/{vendorID}/unmapped-items", h.listUnmappedItems)
		r.Get("/api/vendors/{vendorID}/unmapped-items/export", h.exportUnmappedItems)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reconcileInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invoice")
	if !ok {
		return
	}
	res, err := h.svc.ReconcileInvoice(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) previewReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invoice")
	if !ok {
		return
	}
	res, err := h.svc.PreviewReconciliation(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listUnmappedItems(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := pathID(w, r, "vendorID", "vendor")
	if !ok {
		return
	}
	res, err := h.svc.ListUnmappedItems(r.Context(), app.UnmappedItemsRequest{
		VendorID: vendorID,
		Status:   r.URL.Query().Get("status"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) exportUnmappedItems(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := pathID(w, r, "vendorID", "vendor")
	if !ok {
		return
	}
	req := app.UnmappedItemsRequest{VendorID: vendorID, Status: r.URL.Query().Get("status")}

	var buf bytes.Buffer
	if _, err := h.svc.ExportUnmappedItems(r.Context(), req, &buf); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=unmapped_items_vendor_%d.xlsx", vendorID))
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn("unmapped export write failed", requestField(r), zap.Error(err))
	}
}

// pathID parses a positive integer URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, param, label string) (int, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeError(w, r, fmt.Sprintf("invalid %s id %q", label, raw), "INVALID_ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
