package transport

import (
	"errors"
	"net/http"

	"storefront/internal/media"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// uploadOverhead leaves room for multipart framing above the video ceiling
const uploadOverhead = 1 << 20

// UploadHandler accepts banner media
type UploadHandler struct {
	uploader media.Uploader
	logger   *zap.Logger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(uploader media.Uploader, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, logger: logger}
}

// RegisterRoutes registers the upload route behind admin and the rate limiter
func (h *UploadHandler) RegisterRoutes(r chi.Router, admin, limit func(http.Handler) http.Handler) {
	r.With(admin, limit).Post("/api/uploads", h.Upload)
}

// Upload reads the multipart field "file", sniffs its type and stores it
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxVideoBytes+uploadOverhead)
	if err := r.ParseMultipartForm(media.MaxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, media.ErrMediaTooLarge.Error())
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	uploaded, err := media.Store(r.Context(), h.uploader, uuid.NewString(), file, header.Size)
	if err != nil {
		respondError(w, h.logger, err, "failed to store upload")
		return
	}

	h.logger.Info("Media uploaded",
		zap.String("url", uploaded.URL),
		zap.String("mime", uploaded.MIME),
		zap.Int64("size", uploaded.Size),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, uploaded)
}
