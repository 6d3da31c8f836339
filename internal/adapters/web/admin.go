package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quoteflow/internal/app"
	"quoteflow/internal/core"
)

// ── Configuration ────────────────────────────────────────────────────────────

// apiGetSettings handles GET /api/settings.
func (h *Handler) apiGetSettings(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetPricingSettings(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSaveSettings handles PUT /api/settings.
func (h *Handler) apiSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req core.PricingSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.SavePricingSettings(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiListTaxRules handles GET /api/tax-rules.
func (h *Handler) apiListTaxRules(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListTaxRules(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSaveTaxRule handles PUT /api/tax-rules/{id}.
func (h *Handler) apiSaveTaxRule(w http.ResponseWriter, r *http.Request) {
	var req core.TaxRule
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	res, err := h.svc.SaveTaxRule(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiListRates handles GET /api/rates.
func (h *Handler) apiListRates(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListExchangeRates(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSetRate handles PUT /api/rates/{month} with {"usd_to_ghs": "15.25"}.
func (h *Handler) apiSetRate(w http.ResponseWriter, r *http.Request) {
	var req app.ExchangeRateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Month = chi.URLParam(r, "month")
	res, err := h.svc.SetExchangeRate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiListCatalog handles GET /api/catalog?sku=A&sku=B.
func (h *Handler) apiListCatalog(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListCatalogItems(r.Context(), r.URL.Query()["sku"]...)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSaveCatalogItem handles PUT /api/catalog/{sku}.
func (h *Handler) apiSaveCatalogItem(w http.ResponseWriter, r *http.Request) {
	var req core.CatalogItem
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SKU = chi.URLParam(r, "sku")
	res, err := h.svc.SaveCatalogItem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// ── Parties ──────────────────────────────────────────────────────────────────

// apiGetCustomer handles GET /api/customers/{ref}.
func (h *Handler) apiGetCustomer(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetCustomer(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSaveCustomer handles PUT /api/customers/{ref}.
func (h *Handler) apiSaveCustomer(w http.ResponseWriter, r *http.Request) {
	var req core.Customer
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Ref = chi.URLParam(r, "ref")
	res, err := h.svc.SaveCustomer(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiGetSignature handles GET /api/signatures/{id}.
func (h *Handler) apiGetSignature(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetSignature(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSaveSignature handles PUT /api/signatures/{id}.
func (h *Handler) apiSaveSignature(w http.ResponseWriter, r *http.Request) {
	var req core.Signature
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	res, err := h.svc.SaveSignature(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiAdjustStock handles PUT /api/stock/{sku}.
func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockAdjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SKU = chi.URLParam(r, "sku")
	res, err := h.svc.AdjustStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
