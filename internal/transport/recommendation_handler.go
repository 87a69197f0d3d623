package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecommendationHandler serves the recommendation rail and its admin list
type RecommendationHandler struct {
	recs   service.RecommendationService
	sync   SyncStatuses
	logger *zap.Logger
}

// NewRecommendationHandler creates a new RecommendationHandler
func NewRecommendationHandler(recs service.RecommendationService, sync SyncStatuses, logger *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{recs: recs, sync: sync, logger: logger}
}

// RegisterRoutes registers all recommendation routes
func (h *RecommendationHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/api/recommendations", func(r chi.Router) {
		r.Get("/", h.Rail)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Get("/all", h.List)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// Rail returns what the storefront displays, at most 12 entries
func (h *RecommendationHandler) Rail(w http.ResponseWriter, r *http.Request) {
	rail, err := h.recs.Rail(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to load recommendations")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, rail)
}

func (h *RecommendationHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.recs.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "failed to list recommendations")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, recs)
}

func (h *RecommendationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.Recommendation
	if !decode(w, r, &in) {
		return
	}
	created, err := h.recs.Create(r.Context(), &in)
	if err != nil {
		respondError(w, h.logger, err, "failed to create recommendation")
		return
	}

	h.logger.Info("Recommendation created", zap.String("id", created.ID.String()))
	setSyncState(w, h.sync, service.CollectionContent, service.RecommendationsContentID)
	middleware.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *RecommendationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.Recommendation
	if !decode(w, r, &in) {
		return
	}
	updated, err := h.recs.Update(r.Context(), urlParam(r, "id"), &in)
	if err != nil {
		respondError(w, h.logger, err, "failed to update recommendation")
		return
	}
	setSyncState(w, h.sync, service.CollectionContent, service.RecommendationsContentID)
	middleware.RespondWithJSON(w, http.StatusOK, updated)
}

func (h *RecommendationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.recs.Delete(r.Context(), urlParam(r, "id")); err != nil {
		respondError(w, h.logger, err, "failed to delete recommendation")
		return
	}
	setSyncState(w, h.sync, service.CollectionContent, service.RecommendationsContentID)
	w.WriteHeader(http.StatusNoContent)
}
