package idempotency

import (
	"bytes"
	"net/http"
	"time"
)

// HeaderKey is the standard idempotency key header.
const HeaderKey = "Idempotency-Key"

// DefaultTTL is how long a cached response is replayed.
const DefaultTTL = 24 * time.Hour

// responseRecorder wraps http.ResponseWriter to capture status and body for caching.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Middleware replays cached responses for repeated Idempotency-Key values.
// Requests without the header pass through untouched. Only 2xx responses are
// cached, so a failed create can be retried with the same key.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Scope by method and path so a key cannot collide across endpoints.
			key := r.Method + ":" + r.URL.Path + ":" + rawKey

			if cached, found := store.Get(r.Context(), key); found {
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				w.Write(cached.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 200 && rec.statusCode < 300 {
				headers := make(map[string]string)
				for k := range rec.Header() {
					headers[k] = rec.Header().Get(k)
				}
				store.Set(r.Context(), key, &Response{
					StatusCode: rec.statusCode,
					Headers:    headers,
					Body:       rec.body.Bytes(),
					CachedAt:   time.Now(),
				}, ttl)
			}
		})
	}
}
