package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// SyncHandler reports the outbox state of every written record
type SyncHandler struct {
	sync SyncStatuses
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync SyncStatuses) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// RegisterRoutes registers the sync status route
func (h *SyncHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.With(admin).Get("/api/sync/status", h.Status)
}

// Status lists records, optionally only those in ?state=
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	statuses := h.sync.Statuses()
	if state := domain.SyncState(r.URL.Query().Get("state")); state != "" {
		filtered := statuses[:0]
		for _, s := range statuses {
			if s.State == state {
				filtered = append(filtered, s)
			}
		}
		statuses = filtered
	}
	middleware.RespondWithJSON(w, http.StatusOK, statuses)
}
