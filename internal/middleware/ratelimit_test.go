package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func limited(t *testing.T, limit int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mw := RateLimitMiddleware(client, RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:upload",
	}, zap.NewNop())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), mr
}

// Feature: storefront-sync, Property: exactly the configured number of requests pass per window
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("excess requests get 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler, mr := limited(t, limit)
			defer mr.FlushAll()

			ok, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				req := httptest.NewRequest("POST", "/api/uploads", nil)
				req.RemoteAddr = "192.168.1.100"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				switch w.Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					blocked++
				}
			}
			return ok == limit && blocked == excess
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitMiddleware_Headers(t *testing.T) {
	handler, mr := limited(t, 2)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/uploads", nil)
		req.RemoteAddr = "10.0.0.1"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := send()
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	send()
	third := send()
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header().Get("X-RateLimit-Remaining"))
	retry, err := strconv.Atoi(third.Header().Get("Retry-After"))
	assert.NoError(t, err)
	assert.Positive(t, retry)

	// the window resets once the key expires
	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, send().Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	handler, mr := limited(t, 1)
	mr.Close()

	req := httptest.NewRequest("POST", "/api/uploads", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
