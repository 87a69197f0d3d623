package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/media"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SyncStatuses exposes the remote sync state of written records
type SyncStatuses interface {
	Status(collection, id string) (domain.SyncStatus, bool)
	Statuses() []domain.SyncStatus
}

// SyncStateHeader carries the remote sync state of the record a mutation wrote
const SyncStateHeader = "X-Sync-State"

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrRecommendationNotFound),
		errors.Is(err, service.ErrBannerNotFound),
		errors.Is(err, service.ErrNoBackup),
		errors.Is(err, service.ErrUnknownLane),
		errors.Is(err, service.ErrUnknownStripFamily),
		errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateProduct),
		errors.Is(err, service.ErrDuplicateRecommendation),
		errors.Is(err, repository.ErrCategoryAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrProtectedBanner):
		return http.StatusForbidden
	case errors.Is(err, kvstore.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, media.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrMediaTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured error body for err. Unexpected
// errors are logged and reported as fallback.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		middleware.RespondWithValidationErrors(w, verr.Fields)
		return
	}

	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, status, fallback)
		return
	}
	logger.Debug(fallback, zap.Error(err), zap.Int("status", status))
	middleware.RespondWithError(w, status, err.Error())
}

// decode reads a JSON body and answers 400 itself on failure
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := middleware.DecodeJSON(w, r, v); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// setSyncState reports the outbox state of a record just written
func setSyncState(w http.ResponseWriter, sync SyncStatuses, collection, id string) {
	if sync == nil {
		return
	}
	if st, ok := sync.Status(collection, id); ok {
		w.Header().Set(SyncStateHeader, string(st.State))
	}
}

// AdminChain runs auth before the admin role check
func AdminChain(auth, requireAdmin func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return auth(requireAdmin(next))
	}
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
