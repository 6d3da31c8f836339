package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quoteflow/internal/app"
)

// invoiceRef extracts the {ref} URL parameter: a UUID or an invoice number.
func invoiceRef(r *http.Request) string {
	return chi.URLParam(r, "ref")
}

// apiListInvoices handles GET /api/invoices?status=PENDING_APPROVAL.
func (h *Handler) apiListInvoices(w http.ResponseWriter, r *http.Request) {
	var status *string
	if s := r.URL.Query().Get("status"); s != "" {
		status = &s
	}
	res, err := h.svc.ListInvoices(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiCreateDraft handles POST /api/invoices.
func (h *Handler) apiCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req app.DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CreateDraft(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, res)
}

// apiGetInvoice handles GET /api/invoices/{ref}?currency=USD.
func (h *Handler) apiGetInvoice(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetInvoice(r.Context(), invoiceRef(r), r.URL.Query().Get("currency"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiUpdateDraft handles PUT /api/invoices/{ref}.
func (h *Handler) apiUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req app.DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.UpdateDraft(r.Context(), invoiceRef(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiInvoiceHistory handles GET /api/invoices/{ref}/history.
func (h *Handler) apiInvoiceHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetInvoiceHistory(r.Context(), invoiceRef(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiTransition handles POST /api/invoices/{ref}/transitions/{action}.
// The body is optional; an empty body applies the action with no context.
func (h *Handler) apiTransition(w http.ResponseWriter, r *http.Request) {
	var req app.TransitionRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	req.Ref = invoiceRef(r)
	req.Action = chi.URLParam(r, "action")

	res, err := h.svc.TransitionInvoice(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// ── Stale quotes ─────────────────────────────────────────────────────────────

type staleCheckRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// apiListStale handles GET /api/stale-quotes.
func (h *Handler) apiListStale(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListStaleQuotes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiCheckStale handles POST /api/stale-quotes/check. The session may also be
// given in the X-User-ID and X-Session-ID headers.
func (h *Handler) apiCheckStale(w http.ResponseWriter, r *http.Request) {
	req := staleCheckRequest{
		UserID:    r.Header.Get("X-User-ID"),
		SessionID: r.Header.Get("X-Session-ID"),
	}
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	res, err := h.svc.CheckStaleQuotes(r.Context(), req.UserID, req.SessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiResolveStale handles POST /api/stale-quotes/resolve.
func (h *Handler) apiResolveStale(w http.ResponseWriter, r *http.Request) {
	var req app.ResolveStaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ResolveStaleQuotes(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiEndSession handles DELETE /api/sessions/{userID}/{sessionID}.
func (h *Handler) apiEndSession(w http.ResponseWriter, r *http.Request) {
	h.svc.EndSession(chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}
