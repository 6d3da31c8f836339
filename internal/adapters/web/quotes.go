package web

import (
	"net/http"

	"quoteflow/internal/app"
)

// apiPriceQuote handles POST /api/quotes/price.
func (h *Handler) apiPriceQuote(w http.ResponseWriter, r *http.Request) {
	var req app.PriceQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.PriceQuote(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiComputeTotals handles POST /api/quotes/totals.
func (h *Handler) apiComputeTotals(w http.ResponseWriter, r *http.Request) {
	var req app.TotalsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ComputeTotals(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiConvert handles POST /api/convert.
func (h *Handler) apiConvert(w http.ResponseWriter, r *http.Request) {
	var req app.ConvertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ConvertAmount(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiStock handles GET /api/stock?sku=A&sku=B.
func (h *Handler) apiStock(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetStockLevels(r.Context(), r.URL.Query()["sku"]...)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
