package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"quoteflow/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps a service error to an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvoiceNotFound):
		return http.StatusNotFound, "INVOICE_NOT_FOUND"
	case errors.Is(err, core.ErrUnknownCustomer):
		return http.StatusNotFound, "CUSTOMER_NOT_FOUND"
	case errors.Is(err, core.ErrStaleTransition):
		return http.StatusConflict, "STALE_TRANSITION"
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, core.ErrMissingSignature):
		return http.StatusUnprocessableEntity, "MISSING_SIGNATURE"
	case errors.Is(err, core.ErrRateUnavailable):
		return http.StatusUnprocessableEntity, "RATE_UNAVAILABLE"
	case errors.Is(err, core.ErrUnknownSKU):
		return http.StatusUnprocessableEntity, "UNKNOWN_SKU"
	case errors.Is(err, core.ErrInvalidConfiguration):
		return http.StatusBadRequest, "INVALID_CONFIGURATION"
	case errors.Is(err, core.ErrInvalidCharge):
		return http.StatusBadRequest, "INVALID_CHARGE"
	case errors.Is(err, core.ErrInvalidLineItem):
		return http.StatusBadRequest, "INVALID_LINE_ITEM"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeServiceError writes err with the status errorStatus assigns it.
// Internal errors are not echoed to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zapRequest(r, err)...)
		msg = "internal server error"
	}
	writeError(w, r, msg, code, status)
}
