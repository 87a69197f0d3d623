package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// LoggingMiddleware logs each completed request. Probe and scrape paths are
// logged at debug level.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if subject, ok := GetSubject(r.Context()); ok {
				fields = append(fields, zap.String("subject", subject))
			}

			switch {
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				logger.Debug("Request completed", fields...)
			case ww.Status() >= http.StatusInternalServerError:
				logger.Error("Request completed", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
		})
	}
}
