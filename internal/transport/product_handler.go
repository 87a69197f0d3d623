package transport

import (
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProductHandler serves the catalog
type ProductHandler struct {
	catalog service.CatalogService
	sync    SyncStatuses
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, sync SyncStatuses, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, sync: sync, logger: logger}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/highlights/{view}", h.Highlighted)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Post("/backup", h.Backup)
			r.Post("/restore", h.Restore)
			r.Get("/export", h.Export)
		})
	})
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to list products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Get resolves an id across every catalog source
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err, "failed to get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Highlighted(w http.ResponseWriter, r *http.Request) {
	view, ok := domain.ParseHighlightView(urlParam(r, "view"))
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "unknown highlight view")
		return
	}
	products, err := h.catalog.Highlighted(r.Context(), view)
	if err != nil {
		respondError(w, h.logger, err, "failed to list highlighted products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.Product
	if !decode(w, r, &in) {
		return
	}
	created, err := h.catalog.Create(r.Context(), &in)
	if err != nil {
		respondError(w, h.logger, err, "failed to create product")
		return
	}

	h.logger.Info("Product created", zap.String("id", created.ID.String()))
	setSyncState(w, h.sync, service.CollectionProducts, created.ID.String())
	middleware.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.Product
	if !decode(w, r, &in) {
		return
	}
	updated, err := h.catalog.Update(r.Context(), urlParam(r, "id"), &in)
	if err != nil {
		respondError(w, h.logger, err, "failed to update product")
		return
	}

	setSyncState(w, h.sync, service.CollectionProducts, updated.ID.String())
	middleware.RespondWithJSON(w, http.StatusOK, updated)
}

// Delete answers 204 whether or not the id existed
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "failed to delete product")
		return
	}
	setSyncState(w, h.sync, service.CollectionProducts, domain.ProductID(id).Canonical().String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) Backup(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.Backup(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to back up products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *ProductHandler) Restore(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.Restore(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to restore products")
		return
	}
	h.logger.Info("Products restored from backup", zap.Int("count", n))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Export streams the canonical collection as a dated JSON attachment
func (h *ProductHandler) Export(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.catalog.Export(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to export products")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
