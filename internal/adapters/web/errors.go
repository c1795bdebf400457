package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Fallback  string `json:"fallback,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, errorResponse{Error: message, Code: code}, status)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, resp errorResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp.RequestID = requestIDFromContext(r.Context())
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a service failure onto the response. Reconciliation errors keep
// their code, status and fallback hint; internal details of 5xx errors are not exposed.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if re, ok := core.AsReconcileError(err); ok {
		if re.Status >= http.StatusInternalServerError {
			h.log.Error("reconciliation failed", requestField(r), zap.String("code", string(re.Code)), zap.Error(err))
		}
		writeErrorResponse(w, r, errorResponse{
			Error:    re.Message,
			Code:     string(re.Code),
			Fallback: re.Fallback,
		}, re.Status)
		return
	}
	if errors.Is(err, app.ErrInvalidRequest) {
		writeError(w, r, err.Error(), "INVALID_REQUEST", http.StatusBadRequest)
		return
	}
	h.log.Error("request failed", requestField(r), zap.Error(err))
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
