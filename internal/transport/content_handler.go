package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ContentStore is the part of the document store editable content needs
type ContentStore interface {
	Get(ctx context.Context, collection, id string) (*domain.Document, error)
	Put(ctx context.Context, collection, id string, data json.RawMessage) error
}

// ContentRequest replaces one editable content document
type ContentRequest struct {
	ID   string          `json:"id" validate:"required,max=200"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// ContentHandler passes editable content through to the remote collection
type ContentHandler struct {
	store   ContentStore
	bus     service.Publisher
	timeout time.Duration
	logger  *zap.Logger
}

// NewContentHandler creates a new ContentHandler
func NewContentHandler(store ContentStore, bus service.Publisher, timeout time.Duration, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{store: store, bus: bus, timeout: timeout, logger: logger}
}

// RegisterRoutes registers the content routes
func (h *ContentHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/api/content", h.Get)
	r.With(admin).Post("/api/content", h.Put)
}

func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "missing id query parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	doc, err := h.store.Get(ctx, service.CollectionContent, id)
	if err != nil {
		if !errors.Is(err, repository.ErrDocumentNotFound) {
			err = fmt.Errorf("%w: %v", service.ErrRemoteUnavailable, err)
		}
		respondError(w, h.logger, err, "failed to load content")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, doc)
}

// Put writes through to the remote store. The recommendation document is
// owned by the recommendation service and cannot be replaced here.
func (h *ContentHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := middleware.DecodeAndValidate(w, r, &req); err != nil {
		if fields := middleware.FormatValidationErrors(err); len(fields) > 0 {
			middleware.RespondWithValidationErrors(w, fields)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == service.RecommendationsContentID {
		middleware.RespondWithError(w, http.StatusForbidden, "document is managed by the recommendations API")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Put(ctx, service.CollectionContent, req.ID, req.Data); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", service.ErrRemoteUnavailable, err), "failed to save content")
		return
	}

	h.bus.Publish(events.EditableContentsUpdated, map[string]any{"id": req.ID})
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}
