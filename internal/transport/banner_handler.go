package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BannerHandler serves the banner lanes and the announcement strips
type BannerHandler struct {
	banners     service.BannerService
	strips      service.StripService
	collections map[string]string
	sync        SyncStatuses
	logger      *zap.Logger
}

// NewBannerHandler creates a new BannerHandler
func NewBannerHandler(banners service.BannerService, strips service.StripService, sync SyncStatuses, logger *zap.Logger) *BannerHandler {
	collections := make(map[string]string)
	for _, l := range service.DefaultLanes() {
		collections[l.Name] = l.Collection
	}
	return &BannerHandler{banners: banners, strips: strips, collections: collections, sync: sync, logger: logger}
}

// RegisterRoutes registers banner and strip routes
func (h *BannerHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/api/banners/{lane}", func(r chi.Router) {
		r.Get("/", h.List)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/sync", h.Sync)
			r.Put("/{id}/media", h.ReplaceMedia)
			r.Put("/{id}/crop", h.SetCrop)
			r.Put("/{id}/overlay", h.SetOverlay)
			r.Delete("/{id}", h.Delete)
		})
	})

	r.Route("/api/strips/{family}", func(r chi.Router) {
		r.Get("/", h.GetStrip)
		r.With(admin).Put("/", h.UpsertStrip)
	})
}

func (h *BannerHandler) List(w http.ResponseWriter, r *http.Request) {
	banners, err := h.banners.List(r.Context(), urlParam(r, "lane"))
	if err != nil {
		respondError(w, h.logger, err, "failed to list banners")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, banners)
}

// Sync reconciles the lane with the remote collection on demand
func (h *BannerHandler) Sync(w http.ResponseWriter, r *http.Request) {
	lane := urlParam(r, "lane")
	changed, err := h.banners.Reconcile(r.Context(), lane)
	if err != nil {
		respondError(w, h.logger, err, "failed to sync banners")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]any{"lane": lane, "changed": changed})
}

func (h *BannerHandler) ReplaceMedia(w http.ResponseWriter, r *http.Request) {
	var in service.Media
	if !decode(w, r, &in) {
		return
	}
	h.respondBanner(w, r, "failed to replace banner media", func(lane, id string) (*domain.Banner, error) {
		return h.banners.ReplaceMedia(r.Context(), lane, id, in)
	})
}

func (h *BannerHandler) SetCrop(w http.ResponseWriter, r *http.Request) {
	var in domain.CropMetadata
	if !decode(w, r, &in) {
		return
	}
	h.respondBanner(w, r, "failed to crop banner", func(lane, id string) (*domain.Banner, error) {
		return h.banners.SetCrop(r.Context(), lane, id, in)
	})
}

func (h *BannerHandler) SetOverlay(w http.ResponseWriter, r *http.Request) {
	var in domain.OverlaySettings
	if !decode(w, r, &in) {
		return
	}
	h.respondBanner(w, r, "failed to set banner overlay", func(lane, id string) (*domain.Banner, error) {
		return h.banners.SetOverlay(r.Context(), lane, id, in)
	})
}

func (h *BannerHandler) respondBanner(w http.ResponseWriter, r *http.Request, fallback string, fn func(lane, id string) (*domain.Banner, error)) {
	lane, id := urlParam(r, "lane"), urlParam(r, "id")
	banner, err := fn(lane, id)
	if err != nil {
		respondError(w, h.logger, err, fallback)
		return
	}
	setSyncState(w, h.sync, h.collections[lane], banner.ID)
	middleware.RespondWithJSON(w, http.StatusOK, banner)
}

// Delete refuses hero slots and answers 204 for unknown ids
func (h *BannerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	lane, id := urlParam(r, "lane"), urlParam(r, "id")
	if err := h.banners.Delete(r.Context(), lane, id); err != nil {
		respondError(w, h.logger, err, "failed to delete banner")
		return
	}
	setSyncState(w, h.sync, h.collections[lane], id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *BannerHandler) GetStrip(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.strips.Get(r.Context(), urlParam(r, "family"))
	if err != nil {
		respondError(w, h.logger, err, "failed to load strip")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cfg)
}

func (h *BannerHandler) UpsertStrip(w http.ResponseWriter, r *http.Request) {
	var in domain.StripConfig
	if !decode(w, r, &in) {
		return
	}
	family := urlParam(r, "family")
	cfg, err := h.strips.Upsert(r.Context(), family, in)
	if err != nil {
		respondError(w, h.logger, err, "failed to save strip")
		return
	}
	setSyncState(w, h.sync, service.CollectionStrips, family)
	middleware.RespondWithJSON(w, http.StatusOK, cfg)
}
