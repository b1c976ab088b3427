package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stationerypos/internal/domain"
	"stationerypos/internal/logger"
	"stationerypos/internal/service"
)

type Options struct {
	Logger        *logger.Logger
	AllowedOrigin string
	// Gatherer backs GET /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer
}

type API struct {
	service       *service.Service
	log           *logger.Logger
	allowedOrigin string
	gatherer      prometheus.Gatherer
}

func New(svc *service.Service, opts Options) *API {
	return &API{
		service:       svc,
		log:           opts.Logger,
		allowedOrigin: opts.AllowedOrigin,
		gatherer:      opts.Gatherer,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		a.recoverer,
		a.requestID,
		a.logging,
		a.cors(),
		a.securityHeaders,
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.handleListProducts)
		r.Post("/", a.handleCreateProduct)
		r.Get("/{id}", a.handleGetProduct)
		r.Patch("/{id}", a.handleUpdateProduct)
		r.Delete("/{id}", a.handleDeleteProduct)
	})

	r.Post("/sales", a.handleCheckout)
	r.Get("/sales/{saleId}", a.handleGetSale)
	r.Get("/reports", a.handleReports)
	r.Get("/dashboard", a.handleDashboard)
	r.Delete("/reset/sales", a.handleResetSales)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Ping(r.Context()); err != nil {
		a.log.Warn(a.log.WithField(r.Context(), "error", err.Error()), "health.ping_failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "store unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.respondError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		a.respondError(w, r, err, "")
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.respondError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Product added successfully",
		"product": product,
	})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		a.respondError(w, r, err, "")
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.respondError(w, r, err, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.respondError(w, r, err, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Product deleted"})
}

// handleCheckout accepts extra per-item fields such as a display name, which
// POS clients send along with the line.
func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.respondError(w, r, err, "")
		return
	}

	sale, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.respondError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Sale created successfully",
		"sale":    sale,
	})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		a.respondError(w, r, err, "Sale not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleReports(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.service.Reports(r.Context())
	if err != nil {
		a.respondError(w, r, err, "")
		return
	}
	if summaries == nil {
		summaries = []domain.DailySummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.respondError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handleResetSales(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.service.ResetSales(r.Context())
	if err != nil {
		a.respondError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "All sales data has been deleted successfully.",
		"deletedCount": deleted,
	})
}
