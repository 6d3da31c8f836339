package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quoteflow/internal/app"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
	log    *zap.Logger
}

// NewHandler creates and wires the chi router with all routes. metrics, when
// non-nil, is mounted at /metrics.
func NewHandler(svc app.ApplicationService, allowedOrigins []string, metrics http.Handler, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	// ── Health and metrics ────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Pricing ───────────────────────────────────────────────────────────
		r.Post("/api/quotes/price", h.apiPriceQuote)
		r.Post("/api/quotes/totals", h.apiComputeTotals)
		r.Post("/api/convert", h.apiConvert)

		// ── Invoices ──────────────────────────────────────────────────────────
		r.Get("/api/invoices", h.apiListInvoices)
		r.Post("/api/invoices", h.apiCreateDraft)
		r.Get("/api/invoices/{ref}", h.apiGetInvoice)
		r.Put("/api/invoices/{ref}", h.apiUpdateDraft)
		r.Get("/api/invoices/{ref}/history", h.apiInvoiceHistory)
		r.Post("/api/invoices/{ref}/transitions/{action}", h.apiTransition)

		// ── Inventory ─────────────────────────────────────────────────────────
		r.Get("/api/stock", h.apiStock)
		r.Put("/api/stock/{sku}", h.apiAdjustStock)

		// ── Configuration ─────────────────────────────────────────────────────
		r.Get("/api/settings", h.apiGetSettings)
		r.Put("/api/settings", h.apiSaveSettings)
		r.Get("/api/tax-rules", h.apiListTaxRules)
		r.Put("/api/tax-rules/{id}", h.apiSaveTaxRule)
		r.Get("/api/rates", h.apiListRates)
		r.Put("/api/rates/{month}", h.apiSetRate)
		r.Get("/api/catalog", h.apiListCatalog)
		r.Put("/api/catalog/{sku}", h.apiSaveCatalogItem)

		// ── Parties ───────────────────────────────────────────────────────────
		r.Get("/api/customers/{ref}", h.apiGetCustomer)
		r.Put("/api/customers/{ref}", h.apiSaveCustomer)
		r.Get("/api/signatures/{id}", h.apiGetSignature)
		r.Put("/api/signatures/{id}", h.apiSaveSignature)

		// ── Stale quotes ──────────────────────────────────────────────────────
		r.Get("/api/stale-quotes", h.apiListStale)
		r.Post("/api/stale-quotes/check", h.apiCheckStale)
		r.Post("/api/stale-quotes/resolve", h.apiResolveStale)
		r.Delete("/api/sessions/{userID}/{sessionID}", h.apiEndSession)

		// ── Schemas ───────────────────────────────────────────────────────────
		r.Get("/api/schemas/{name}", h.apiSchema)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// apiSchema handles GET /api/schemas/{name}.
func (h *Handler) apiSchema(w http.ResponseWriter, r *http.Request) {
	schema := app.PayloadSchema(chi.URLParam(r, "name"))
	if schema == nil {
		writeError(w, r, "unknown schema; available: "+strings.Join(app.PayloadSchemaNames(), ", "), "NOT_FOUND", http.StatusNotFound)
		return
	}
	writeJSON(w, schema)
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

func zapRequest(r *http.Request, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	}
}
